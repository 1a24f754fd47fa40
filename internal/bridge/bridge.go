// Package bridge hands claimed collectibles to the host chat.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// ClaimPayload describes a collectible the user asked to receive outside
// the app.
type ClaimPayload struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	RecordID  string    `json:"record_id"`
	PrizeID   string    `json:"prize_id"`
	PrizeName string    `json:"prize_name"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Sender is the part of *tele.Bot the bridge needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Bridge posts claim payloads to a Telegram chat. A delivered message is
// the acknowledgement.
type Bridge struct {
	sender  Sender
	chat    tele.ChatID
	timeout time.Duration
}

// New creates a bridge posting to chatID. chatID 0 disables claims.
func New(sender Sender, chatID int64, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{sender: sender, chat: tele.ChatID(chatID), timeout: timeout}
}

// SendClaim delivers the payload and reports whether the host accepted it.
func (b *Bridge) SendClaim(ctx context.Context, p ClaimPayload) bool {
	if b.chat == 0 {
		log.Warn().Str("record_id", p.RecordID).Msg("Claims chat not configured, rejecting claim")
		return false
	}

	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("record_id", p.RecordID).Msg("Failed to encode claim")
		return false
	}
	text := fmt.Sprintf("🎁 <b>Claim</b> %s for user <code>%d</code>\n<pre>%s</pre>",
		html.EscapeString(p.PrizeName), p.UserID, html.EscapeString(string(body)))

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := b.sender.Send(b.chat, text, tele.ModeHTML)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Str("record_id", p.RecordID).Msg("Claim not delivered")
			return false
		}
		log.Info().
			Int64("user_id", p.UserID).
			Str("record_id", p.RecordID).
			Str("prize", p.PrizeName).
			Msg("Claim delivered")
		return true
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("record_id", p.RecordID).Msg("Claim delivery timed out")
		return false
	}
}
