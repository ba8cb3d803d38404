// Package notify defines the narrow contract the Trade Executor and
// Agent Brain use to surface alert-only decisions and trade outcomes to
// an operator, plus a logging default implementation. Grounded on spec
// §6's external notification channel; the teacher's own chat-command
// surface lives in the excluded internal/signal HTTP glue, so no
// teacher code is adapted here beyond its zerolog logging conventions.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Channel is satisfied by anything the executor can push a one-line
// alert to. It matches trading.Notifier structurally.
type Channel interface {
	Notify(ctx context.Context, message string) error
}

// LogChannel logs every notification instead of delivering it anywhere,
// the default when no authorized chat id is configured.
type LogChannel struct{}

func NewLogChannel() *LogChannel { return &LogChannel{} }

func (LogChannel) Notify(_ context.Context, message string) error {
	log.Info().Str("channel", "log").Msg(message)
	return nil
}

// AuthorizedChannel wraps another Channel, forwarding every message
// when an authorized chat id is configured and silently dropping every
// message when it is empty; no per-caller chat id is compared.
// The underlying transport (Telegram, Slack, etc) is left to a future
// wire-up; only LogChannel is constructed when the authorized chat id
// is set, since no pack dependency covers a chat transport.
type AuthorizedChannel struct {
	underlying       Channel
	authorizedChatID string
}

func NewAuthorizedChannel(underlying Channel, authorizedChatID string) *AuthorizedChannel {
	return &AuthorizedChannel{underlying: underlying, authorizedChatID: authorizedChatID}
}

func (a *AuthorizedChannel) Notify(ctx context.Context, message string) error {
	if a.authorizedChatID == "" {
		return nil
	}
	return a.underlying.Notify(ctx, message)
}
