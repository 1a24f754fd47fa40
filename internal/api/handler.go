package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/pkg/token"
	"telegram-daily-spin/internal/prize"
)

type authRequest struct {
	InitData string `json:"init_data"`
}

type authResponse struct {
	Token string        `json:"token"`
	User  token.Profile `json:"user"`
}

type balanceResponse struct {
	Balance   int64 `json:"balance"`
	Displayed int64 `json:"displayed_balance"`
}

type recordView struct {
	ledger.InventoryRecord
	Value int64 `json:"value"`
	Rare  bool  `json:"rare"`
	NFT   bool  `json:"nft"`
}

type recordsResponse struct {
	Category prize.Category `json:"category"`
	Records  []recordView   `json:"records"`
}

type historyEntry struct {
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type settingBody struct {
	Value string `json:"value"`
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Health answers liveness checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth exchanges web app init data for a session token and opens the
// user's session.
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[authRequest](r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	profile, err := token.ValidateInitData(payload.InitData, h.botToken, h.initDataMaxAge, h.now())
	if err != nil {
		log.Info().Err(err).Msg("Init data rejected")
		writeError(w, r, err)
		return
	}

	if err := h.wheel.Open(r.Context(), profile.ID, profile.Username); err != nil {
		writeError(w, r, err)
		return
	}

	tok, err := h.tokens.Generate(profile.ID, profile.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("user_id", profile.ID).Str("username", profile.Username).Msg("Web app session started")
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: profile})
}

// State returns the wheel, reveal and balance.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	v, err := h.wheel.State(r.Context(), c.ID, c.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Balance returns the committed and displayed balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	committed, displayed, err := h.wheel.Balance(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: committed, Displayed: displayed})
}

// Spin starts a spin.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	v, err := h.wheel.Spin(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

// Claim commits the revealed prize.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	res, err := h.wheel.Claim(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Dismiss closes the reveal, awarding the prize.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	res, err := h.wheel.Dismiss(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Records lists inventory filtered by ?filter=all|telegram|nft|rare.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	cat := prize.ParseCategory(r.URL.Query().Get("filter"))

	recs, err := h.wheel.Records(r.Context(), c.ID, cat)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := recordsResponse{Category: cat, Records: make([]recordView, 0, len(recs))}
	for _, rec := range recs {
		v := recordView{InventoryRecord: rec}
		if h.catalog != nil {
			v.Value = h.catalog.CoinValue(rec.PrizeName)
			v.Rare = h.catalog.IsRare(rec.PrizeName)
			v.NFT = h.catalog.IsNFT(rec.PrizeName)
		}
		out.Records = append(out.Records, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// Stats summarizes the inventory.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	st, err := h.wheel.Stats(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// History lists recent balance changes. ?limit= caps the result.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []historyEntry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	c := callerFrom(r.Context())
	txs, err := h.history.History(r.Context(), c.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]historyEntry, 0, len(txs))
	for _, tx := range txs {
		e := historyEntry{Amount: tx.Amount, Type: tx.Type, CreatedAt: tx.CreatedAt}
		if tx.Description != nil {
			e.Description = *tx.Description
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// Convert turns a record into coins.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	res, err := h.wheel.Convert(r.Context(), c.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Remove deletes a record without payout.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if err := h.wheel.Remove(r.Context(), c.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClaimExternal sends a record to the claims chat.
func (h *Handler) ClaimExternal(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	rec, err := h.wheel.ClaimExternal(r.Context(), c.ID, c.Username, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetSetting reads a per-user setting.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	key := chi.URLParam(r, "key")
	val, err := h.settings.Get(c.ID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: string(val)})
}

// PutSetting writes a per-user setting.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	key := chi.URLParam(r, "key")

	body, err := decode[settingBody](r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}
	if err := h.settings.Set(c.ID, key, []byte(body.Value)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: body.Value})
}
