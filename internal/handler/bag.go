package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
)

// BagHandler shows the inventory and handles its buttons.
type BagHandler struct {
	wheel   Wheel
	catalog *prize.Catalog
}

// NewBagHandler creates a new BagHandler.
func NewBagHandler(wheel Wheel, catalog *prize.Catalog) *BagHandler {
	return &BagHandler{wheel: wheel, catalog: catalog}
}

func (h *BagHandler) render(ctx context.Context, userID int64, cat prize.Category) (string, *tele.ReplyMarkup, error) {
	recs, err := h.wheel.Records(ctx, userID, cat)
	if err != nil {
		return "", nil, err
	}
	stats, err := h.wheel.Stats(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return FormatBag(recs, stats, cat, h.catalog), BuildBagPanel(recs, cat), nil
}

// HandleBag handles /bag [all|telegram|nft|rare].
func (h *BagHandler) HandleBag(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	cat := prize.CategoryAll
	if args := c.Args(); len(args) > 0 {
		cat = prize.ParseCategory(args[0])
	}

	msg, markup, err := h.render(ctx, sender.ID, cat)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to load bag")
		return c.Reply("❌ Could not load your bag, please try again later")
	}
	return c.Send(msg, markup)
}

// HandleCallback handles the filter, convert, send and remove buttons.
func (h *BagHandler) HandleCallback(c tele.Context) error {
	sender := c.Sender()
	cb := c.Callback()
	if sender == nil || cb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	unique, payload := ParseCallback(cb.Data)
	cat := prize.CategoryAll
	var notice string

	switch unique {
	case CallbackBag:
		cat = prize.ParseCategory(payload)

	case CallbackConvert:
		res, err := h.wheel.Convert(ctx, sender.ID, payload)
		if err != nil {
			return h.respondError(c, sender.ID, err)
		}
		notice = fmt.Sprintf("💱 %s → %d coins", res.Record.PrizeName, res.Credited)

	case CallbackSend:
		rec, err := h.wheel.ClaimExternal(ctx, sender.ID, displayName(sender), payload)
		if err != nil {
			return h.respondError(c, sender.ID, err)
		}
		notice = fmt.Sprintf("📤 %s sent", rec.PrizeName)

	case CallbackRemove:
		if err := h.wheel.Remove(ctx, sender.ID, payload); err != nil {
			return h.respondError(c, sender.ID, err)
		}
		notice = "🗑 Removed"

	default:
		return nil
	}

	msg, markup, err := h.render(ctx, sender.ID, cat)
	if err != nil {
		return h.respondError(c, sender.ID, err)
	}
	if err := c.Respond(&tele.CallbackResponse{Text: notice}); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}
	return c.Edit(msg, markup)
}

func (h *BagHandler) respondError(c tele.Context, userID int64, err error) error {
	text := "❌ Something went wrong, try again"
	switch {
	case errors.Is(err, session.ErrRecordNotFound):
		text = "This item is no longer in your bag"
	case errors.Is(err, session.ErrClaimPending):
		text = "⏳ This item is being sent"
	case errors.Is(err, session.ErrClaimRejected):
		text = "📭 Could not deliver the item. It is still in your bag."
	default:
		log.Error().Err(err).Int64("user_id", userID).Msg("Bag action failed")
	}
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
}
