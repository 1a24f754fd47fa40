// Package handler provides Telegram bot command and callback handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
	"telegram-daily-spin/internal/spin"
)

const requestTimeout = 10 * time.Second

// Wheel is the session side the bot drives.
type Wheel interface {
	Open(ctx context.Context, userID int64, username string) error
	Spin(ctx context.Context, userID int64) (session.View, error)
	Claim(ctx context.Context, userID int64) (session.ClaimResult, error)
	Balance(ctx context.Context, userID int64) (committed, displayed int64, err error)
	Records(ctx context.Context, userID int64, cat prize.Category) ([]ledger.InventoryRecord, error)
	Stats(ctx context.Context, userID int64) (ledger.Stats, error)
	Convert(ctx context.Context, userID int64, recordID string) (session.ConvertResult, error)
	Remove(ctx context.Context, userID int64, recordID string) error
	ClaimExternal(ctx context.Context, userID int64, username string, recordID string) (ledger.InventoryRecord, error)
	Credit(ctx context.Context, userID int64, amount int64, reason string) (int64, error)
}

// AccountHandler handles /start, /balance, /spin and the claim button.
type AccountHandler struct {
	wheel     Wheel
	webAppURL string
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(wheel Wheel, webAppURL string) *AccountHandler {
	return &AccountHandler{wheel: wheel, webAppURL: webAppURL}
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// HandleStart opens the user's session and offers the web app.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	name := displayName(sender)
	if err := h.wheel.Open(ctx, sender.ID, name); err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to open session")
		return c.Reply("❌ Something went wrong, please try again later")
	}
	balance, _, err := h.wheel.Balance(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Something went wrong, please try again later")
	}

	msg := fmt.Sprintf(
		"👋 Welcome, %s!\n\n"+
			"💰 Balance: %d coins\n\n"+
			"Commands:\n"+
			"/spin - spin the wheel\n"+
			"/balance - show your balance\n"+
			"/bag - your collectibles",
		name, balance,
	)
	if chat := c.Chat(); chat != nil && chat.Type == tele.ChatPrivate {
		if markup := BuildStartPanel(h.webAppURL); markup != nil {
			return c.Send(msg, markup)
		}
	}
	return c.Reply(msg)
}

// HandleBalance shows the committed balance.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	balance, _, err := h.wheel.Balance(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not load your balance, please try again later")
	}
	return c.Reply(fmt.Sprintf("💰 Balance: %d coins", balance))
}

// HandleSpin starts a spin. The result arrives as a reveal notification.
func (h *AccountHandler) HandleSpin(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err := h.wheel.Spin(ctx, sender.ID)
	switch {
	case errors.Is(err, spin.ErrSpinInFlight):
		return c.Reply("⏳ Your wheel is already spinning. Claim your last prize first.")
	case errors.Is(err, spin.ErrNoSlots):
		return c.Reply("🚧 The wheel is not available right now")
	case err != nil:
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Spin failed")
		return c.Reply("❌ Spin failed, please try again later")
	}
	return c.Reply("🎡 Spinning...")
}

// HandleClaimCallback claims the revealed prize from the notification.
func (h *AccountHandler) HandleClaimCallback(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	res, err := h.wheel.Claim(ctx, sender.ID)
	if errors.Is(err, spin.ErrNothingRevealed) {
		return c.Respond(&tele.CallbackResponse{Text: "Already claimed"})
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Claim failed")
		return c.Respond(&tele.CallbackResponse{Text: "❌ Claim failed, try again", ShowAlert: true})
	}

	if err := c.Respond(); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}
	return c.Edit(FormatClaim(res))
}
