package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxLoggedBody   = 2048
)

// loggingTransport logs every attempt that reaches the network. Bodies are
// only captured when the logger is at trace level.
type loggingTransport struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

func newLoggingTransport(next http.RoundTripper, logger zerolog.Logger) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: logger}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}
	traceBodies := t.logger.GetLevel() <= zerolog.TraceLevel && zerolog.GlobalLevel() <= zerolog.TraceLevel

	ev := t.logger.Debug().
		Str("request_id", reqID).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Bool("authorized", req.Header.Get("Authorization") != "")
	if traceBodies && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			ev = ev.Str("body", snippet(body))
		}
	}
	ev.Msg("--> request")

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Warn().Err(err).
			Str("request_id", reqID).
			Dur("elapsed", elapsed).
			Msg("<-- request failed")
		return nil, err
	}

	ev = t.logger.Debug().
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed)
	if traceBodies && resp.Body != nil {
		prefix, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody+1))
		resp.Body = readCloser{
			Reader: io.MultiReader(bytes.NewReader(prefix), resp.Body),
			Closer: resp.Body,
		}
		if readErr == nil {
			ev = ev.Str("body", truncate(prefix))
		}
	}
	ev.Msg("<-- response")
	return resp, nil
}

// readCloser puts an already consumed prefix back in front of a body.
type readCloser struct {
	io.Reader
	io.Closer
}

func snippet(r io.ReadCloser) string {
	defer r.Close()
	data, _ := io.ReadAll(io.LimitReader(r, maxLoggedBody+1))
	return truncate(data)
}

func truncate(data []byte) string {
	if len(data) > maxLoggedBody {
		return string(data[:maxLoggedBody]) + "...(truncated)"
	}
	return string(data)
}
