package common_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/guarzo/mystuff/common"
)

func TestLogEventSink_ForwardsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	var got []string

	sink := common.LogEventSink{
		Logger: zerolog.New(&buf),
		Next:   common.EventSinkFunc(func(reason string) { got = append(got, reason) }),
	}
	sink.NotifyReauthRequired(common.InvalidRefreshTokenDescription)

	assert.Equal(t, []string{common.InvalidRefreshTokenDescription}, got)
	assert.Contains(t, buf.String(), `"reason":"Invalid refresh_token"`)
}

func TestRefreshError_Message(t *testing.T) {
	invalid := common.RefreshFailure(true, "Invalid refresh_token")
	assert.False(t, invalid.Succeeded())
	assert.Contains(t, invalid.Err.Error(), "refresh token invalid")

	ok := common.RefreshSuccess("access", "id")
	assert.True(t, ok.Succeeded())
	assert.Equal(t, "access", ok.AccessToken)
	assert.Equal(t, "id", ok.IDToken)
}
