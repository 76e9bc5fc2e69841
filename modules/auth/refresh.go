package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/guarzo/mystuff/common"
)

const refreshKey = "refresh"

// refresh runs one token refresh, sharing it with concurrent callers when
// coalescing is enabled. A shared refresh is detached from any single
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (r *Reauthenticator) refresh(ctx context.Context) common.RefreshOutcome {
	if r.group == nil {
		return r.awaitRefresh(ctx)
	}
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (interface{}, error) {
		return r.awaitRefresh(shared), nil
	})
	select {
	case res := <-ch:
		return res.Val.(common.RefreshOutcome)
	case <-ctx.Done():
		return canceled(ctx)
	}
}

// awaitRefresh blocks until the provider's callback fires, the refresh
// timeout elapses or ctx is done, whichever comes first.
func (r *Reauthenticator) awaitRefresh(ctx context.Context) common.RefreshOutcome {
	if r.provider == nil {
		return common.RefreshFailure(false, "no token provider configured")
	}

	rctx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
	defer cancel()

	result := make(chan common.RefreshOutcome, 1)
	var once sync.Once
	r.provider.PerformActionWithFreshTokens(rctx, func(o common.RefreshOutcome) {
		once.Do(func() { result <- o })
	})

	select {
	case o := <-result:
		return o
	case <-rctx.Done():
	}

	// the callback may have raced the deadline
	select {
	case o := <-result:
		return o
	default:
	}

	if ctx.Err() != nil {
		return canceled(ctx)
	}
	return common.RefreshOutcome{Err: &common.RefreshError{
		Description: fmt.Sprintf("no answer from token provider within %s", r.refreshTimeout),
		Cause:       ErrRefreshTimeout,
	}}
}

func canceled(ctx context.Context) common.RefreshOutcome {
	return common.RefreshOutcome{Err: &common.RefreshError{
		Description: "token refresh canceled",
		Cause:       ctx.Err(),
	}}
}
