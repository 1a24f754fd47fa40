package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
)

// Callback uniques. Telebot encodes a button as "\f<unique>|<data>".
const (
	CallbackClaim   = "claim"
	CallbackBag     = "bag"
	CallbackConvert = "conv"
	CallbackSend    = "send"
	CallbackRemove  = "del"
)

// maxBagButtons caps the per-record rows in the bag panel.
const maxBagButtons = 8

var bagFilters = []struct {
	label string
	cat   prize.Category
}{
	{"All", prize.CategoryAll},
	{"Telegram", prize.CategoryTelegram},
	{"NFT", prize.CategoryNFT},
	{"Rare", prize.CategoryRare},
}

// ParseCallback splits telebot callback data into unique and payload.
func ParseCallback(data string) (unique, payload string) {
	data = strings.TrimPrefix(data, "\f")
	unique, payload, _ = strings.Cut(data, "|")
	return unique, payload
}

// BuildStartPanel offers the web app. An empty url gives no markup.
func BuildStartPanel(webAppURL string) *tele.ReplyMarkup {
	if webAppURL == "" {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.WebApp("🎡 Open Daily Spin", &tele.WebApp{URL: webAppURL})))
	return markup
}

// BuildRevealPanel is the claim button under a reveal notification.
func BuildRevealPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("✅ Claim", CallbackClaim)))
	return markup
}

// BuildBagPanel lists actions for the first records and the filter row.
func BuildBagPanel(records []ledger.InventoryRecord, current prize.Category) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row

	for i, rec := range records {
		if i == maxBagButtons {
			break
		}
		rows = append(rows, markup.Row(
			markup.Data(fmt.Sprintf("💱 %d. %s", i+1, rec.PrizeName), CallbackConvert, rec.RecordID),
			markup.Data("📤 Send", CallbackSend, rec.RecordID),
			markup.Data("🗑", CallbackRemove, rec.RecordID),
		))
	}

	var filters []tele.Btn
	for _, f := range bagFilters {
		label := f.label
		if f.cat == current {
			label = "• " + label
		}
		filters = append(filters, markup.Data(label, CallbackBag, string(f.cat)))
	}
	rows = append(rows, markup.Row(filters...))

	markup.Inline(rows...)
	return markup
}

// FormatBag renders the inventory listing.
func FormatBag(records []ledger.InventoryRecord, stats ledger.Stats, cat prize.Category, catalog *prize.Catalog) string {
	var b strings.Builder
	b.WriteString("🎒 Your bag")
	if cat != prize.CategoryAll {
		fmt.Fprintf(&b, " (%s)", cat)
	}
	b.WriteString("\n━━━━━━━━━━━━━━━\n")

	if len(records) == 0 {
		b.WriteString("Nothing here yet. Spin the wheel!\n")
	}
	for i, rec := range records {
		tag := ""
		if catalog.IsRare(rec.PrizeName) {
			tag = " 💎"
		}
		fmt.Fprintf(&b, "%d. %s%s · %d coins\n", i+1, rec.PrizeName, tag, catalog.CoinValue(rec.PrizeName))
	}

	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Items: %d · Rare: %d · Value: %d coins", stats.Total, stats.Rare, stats.Value)
	return b.String()
}

// FormatPrize describes a prize in one line.
func FormatPrize(p *session.PrizeView) string {
	if p == nil {
		return "nothing"
	}
	if p.Amount > 0 {
		return fmt.Sprintf("%d coins", p.Amount)
	}
	return "🎁 " + p.Label
}

// FormatClaim reports a claim result.
func FormatClaim(res session.ClaimResult) string {
	if res.Record != nil {
		return fmt.Sprintf("✅ %s added to your bag.\n💰 Balance: %d", res.Record.PrizeName, res.Balance)
	}
	return fmt.Sprintf("✅ +%d coins\n💰 Balance: %d", res.Credited, res.Balance)
}
