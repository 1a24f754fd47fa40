package handler

import (
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
)

// Sender is the part of *tele.Bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// RevealNotifier messages users when their wheel stops.
type RevealNotifier struct {
	sender Sender
}

// NewRevealNotifier creates a notifier.
func NewRevealNotifier(sender Sender) *RevealNotifier {
	return &RevealNotifier{sender: sender}
}

// Notify sends the win message with a claim button. It matches
// session.RevealFunc.
func (n *RevealNotifier) Notify(userID int64, p prize.Prize) {
	text := fmt.Sprintf("🎉 You won %s!\nTap Claim to collect it.", FormatPrize(session.NewPrizeView(p)))
	if _, err := n.sender.Send(&tele.User{ID: userID}, text, BuildRevealPanel()); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Str("prize_id", p.ID()).Msg("Failed to send reveal notification")
	}
}
