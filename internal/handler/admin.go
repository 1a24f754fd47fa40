package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

var errCreditUsage = errors.New("❌ Usage: /credit <user_id> <amount> [reason]\nExample: /credit 123456789 100 giveaway")

// AdminHandler handles admin-only commands. Access is checked by
// middleware.
type AdminHandler struct {
	wheel Wheel
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(wheel Wheel) *AdminHandler {
	return &AdminHandler{wheel: wheel}
}

// HandleCredit handles /credit <user_id> <amount> [reason].
func (h *AdminHandler) HandleCredit(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, reason, err := parseCreditArgs(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if reason == "" {
		reason = fmt.Sprintf("admin %d", sender.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	balance, err := h.wheel.Credit(ctx, targetID, amount, reason)
	if err != nil {
		log.Error().Err(err).Int64("target_id", targetID).Msg("Admin credit failed")
		return c.Reply("❌ Credit failed")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Int64("new_balance", balance).
		Msg("Admin credited coins")

	return c.Reply(fmt.Sprintf("✅ Credited %d coins to %d\n💰 New balance: %d", amount, targetID, balance))
}

func parseCreditArgs(args []string) (targetID, amount int64, reason string, err error) {
	if len(args) < 2 {
		return 0, 0, "", errCreditUsage
	}
	targetID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, "", errors.New("❌ User id must be a number")
	}
	amount, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, "", errors.New("❌ Amount must be a positive integer")
	}
	return targetID, amount, strings.Join(args[2:], " "), nil
}
