package common

import (
	"github.com/rs/zerolog"
)

// EventSink tells the rest of the application that the user must log in again.
// Implementations must not block.
type EventSink interface {
	NotifyReauthRequired(reason string)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(reason string)

func (f EventSinkFunc) NotifyReauthRequired(reason string) {
	f(reason)
}

// LogEventSink records re-login requests in the log and forwards them to Next, if set.
type LogEventSink struct {
	Logger zerolog.Logger
	Next   EventSink
}

func (s LogEventSink) NotifyReauthRequired(reason string) {
	s.Logger.Warn().Str("reason", reason).Msg("refresh token invalid, new login required")
	if s.Next != nil {
		s.Next.NotifyReauthRequired(reason)
	}
}
