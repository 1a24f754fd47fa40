package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-daily-spin/internal/kv"
	"telegram-daily-spin/internal/ledger"
	"telegram-daily-spin/internal/model"
	"telegram-daily-spin/internal/pkg/token"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/session"
	"telegram-daily-spin/internal/spin"
)

const botToken = "123456:test-token"

type fakeWheel struct {
	mu       sync.Mutex
	opened   []int64
	spinning bool
	balance  int64
	records  []ledger.InventoryRecord
	claimOK  bool
	lastCat  prize.Category
}

func (f *fakeWheel) Open(ctx context.Context, userID int64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, userID)
	return nil
}

func (f *fakeWheel) State(ctx context.Context, userID int64, username string) (session.View, error) {
	return session.View{Phase: "idle", Balance: f.balance, Displayed: f.balance}, nil
}

func (f *fakeWheel) Spin(ctx context.Context, userID int64) (session.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spinning {
		return session.View{}, spin.ErrSpinInFlight
	}
	f.spinning = true
	return session.View{Phase: "spinning", Spinning: true}, nil
}

func (f *fakeWheel) Claim(ctx context.Context, userID int64) (session.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.spinning {
		return session.ClaimResult{}, spin.ErrNothingRevealed
	}
	f.spinning = false
	f.balance += 5
	return session.ClaimResult{
		Prize:    session.NewPrizeView(prize.CurrencyPrize{Key: "coin5", Amount: 5}),
		Credited: 5,
		Balance:  f.balance,
	}, nil
}

func (f *fakeWheel) Dismiss(ctx context.Context, userID int64) (session.ClaimResult, error) {
	return f.Claim(ctx, userID)
}

func (f *fakeWheel) Balance(ctx context.Context, userID int64) (int64, int64, error) {
	return f.balance, f.balance, nil
}

func (f *fakeWheel) Records(ctx context.Context, userID int64, cat prize.Category) ([]ledger.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCat = cat
	return f.records, nil
}

func (f *fakeWheel) Stats(ctx context.Context, userID int64) (ledger.Stats, error) {
	return ledger.Stats{Total: len(f.records)}, nil
}

func (f *fakeWheel) take(recordID string) (ledger.InventoryRecord, bool) {
	for i, r := range f.records {
		if r.RecordID == recordID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return r, true
		}
	}
	return ledger.InventoryRecord{}, false
}

func (f *fakeWheel) Convert(ctx context.Context, userID int64, recordID string) (session.ConvertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.take(recordID)
	if !ok {
		return session.ConvertResult{}, session.ErrRecordNotFound
	}
	f.balance += 25
	return session.ConvertResult{Record: rec, Credited: 25, Balance: f.balance}, nil
}

func (f *fakeWheel) Remove(ctx context.Context, userID int64, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.take(recordID); !ok {
		return session.ErrRecordNotFound
	}
	return nil
}

func (f *fakeWheel) ClaimExternal(ctx context.Context, userID int64, username string, recordID string) (ledger.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.claimOK {
		return ledger.InventoryRecord{}, session.ErrClaimRejected
	}
	rec, ok := f.take(recordID)
	if !ok {
		return ledger.InventoryRecord{}, session.ErrRecordNotFound
	}
	return rec, nil
}

type memSettings struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memSettings) Get(userID int64, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[strconv.FormatInt(userID, 10)+"/"+key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return v, nil
}

func (m *memSettings) Set(userID int64, key string, value []byte) error {
	if strings.ContainsAny(key, "-. ") {
		return kv.ErrBadKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[strconv.FormatInt(userID, 10)+"/"+key] = value
	return nil
}

type fakeHistory struct {
	mu  sync.Mutex
	txs map[int64][]*model.Transaction
}

func (f *fakeHistory) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.txs[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

type harness struct {
	t       *testing.T
	wheel   *fakeWheel
	history *fakeHistory
	handler *Handler
	server  *httptest.Server
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &fakeWheel{balance: 100, claimOK: true}
	hist := &fakeHistory{txs: map[int64][]*model.Transaction{}}
	h := NewHandler(HandlerDeps{
		Wheel:          w,
		Settings:       &memSettings{data: map[string][]byte{}},
		History:        hist,
		Catalog:        prize.DefaultCatalog(),
		Tokens:         token.NewIssuer([]byte("jwt-secret"), time.Hour),
		BotToken:       botToken,
		InitDataMaxAge: 24 * time.Hour,
		Now:            func() time.Time { return now },
	})
	srv := httptest.NewServer(h.Router(nil))
	t.Cleanup(srv.Close)
	return &harness{t: t, wheel: w, history: hist, handler: h, server: srv, now: now}
}

func (h *harness) do(method, path, bearer string, body string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(h.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) login(userID int64) string {
	h.t.Helper()
	initData := token.SignInitData(url.Values{
		"auth_date": {strconv.FormatInt(h.now.Add(-time.Minute).Unix(), 10)},
		"user":      {`{"id":` + strconv.FormatInt(userID, 10) + `,"first_name":"Ann","username":"ann"}`},
	}, botToken)
	body, err := json.Marshal(authRequest{InitData: initData})
	require.NoError(h.t, err)

	resp := h.do(http.MethodPost, "/api/auth", "", string(body))
	require.Equal(h.t, http.StatusOK, resp.StatusCode)

	var out authResponse
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(h.t, userID, out.User.ID)
	return out.Token
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.handler.ping = func(context.Context) error { return errors.New("db down") }
	resp = h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuth_OpensSessionAndIssuesToken(t *testing.T) {
	h := newHarness(t)
	tok := h.login(42)
	assert.NotEmpty(t, tok)
	assert.Equal(t, []int64{42}, h.wheel.opened)
}

func TestAuth_RejectsForgedInitData(t *testing.T) {
	h := newHarness(t)
	initData := token.SignInitData(url.Values{
		"auth_date": {strconv.FormatInt(h.now.Unix(), 10)},
		"user":      {`{"id":42,"first_name":"Ann"}`},
	}, "another-bot")
	body, _ := json.Marshal(authRequest{InitData: initData})

	resp := h.do(http.MethodPost, "/api/auth", "", string(body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, h.wheel.opened)
}

func TestAuth_BadBody(t *testing.T) {
	h := newHarness(t)
	resp := h.do(http.MethodPost, "/api/auth", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/state", "/api/balance", "/api/records"} {
		resp := h.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := h.do(http.MethodGet, "/api/state", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSpinClaimFlow(t *testing.T) {
	h := newHarness(t)
	tok := h.login(7)

	resp := h.do(http.MethodPost, "/api/claim", tok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing revealed yet")

	resp = h.do(http.MethodPost, "/api/spin", tok, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	v := decodeBody[session.View](t, resp)
	assert.True(t, v.Spinning)

	resp = h.do(http.MethodPost, "/api/spin", tok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second spin while in flight")

	resp = h.do(http.MethodPost, "/api/dismiss", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[session.ClaimResult](t, resp)
	assert.Equal(t, int64(5), res.Credited)
	assert.Equal(t, int64(105), res.Balance)

	resp = h.do(http.MethodGet, "/api/balance", tok, "")
	bal := decodeBody[balanceResponse](t, resp)
	assert.Equal(t, int64(105), bal.Balance)
}

func TestRecordsEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.login(9)
	h.wheel.records = []ledger.InventoryRecord{
		{RecordID: "r1", PrizeID: "giftRing", PrizeName: "Ring"},
		{RecordID: "r2", PrizeID: "giftBear", PrizeName: "Bear"},
		{RecordID: "r3", PrizeID: "giftRose", PrizeName: "Rose"},
	}

	resp := h.do(http.MethodGet, "/api/records?filter=rare", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[recordsResponse](t, resp)
	assert.Equal(t, prize.CategoryRare, list.Category)
	assert.Equal(t, prize.CategoryRare, h.wheel.lastCat)
	require.Len(t, list.Records, 3)
	assert.True(t, list.Records[0].Rare)
	assert.Equal(t, "r1", list.Records[0].RecordID)

	resp = h.do(http.MethodPost, "/api/records/r1/convert", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv := decodeBody[session.ConvertResult](t, resp)
	assert.Equal(t, "r1", conv.Record.RecordID)
	assert.Equal(t, int64(125), conv.Balance)

	resp = h.do(http.MethodPost, "/api/records/r1/convert", tok, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(http.MethodDelete, "/api/records/r2", tok, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	h.wheel.claimOK = false
	resp = h.do(http.MethodPost, "/api/records/r3/claim", tok, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	er := decodeBody[errorResponse](t, resp)
	assert.NotEmpty(t, er.Notice)

	h.wheel.claimOK = true
	resp = h.do(http.MethodPost, "/api/records/r3/claim", tok, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodGet, "/api/records/stats", tok, "")
	st := decodeBody[ledger.Stats](t, resp)
	assert.Equal(t, 0, st.Total)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	tok := h.login(3)

	resp := h.do(http.MethodGet, "/api/settings/sound", tok, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(http.MethodPut, "/api/settings/sound", tok, `{"value":"off"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodGet, "/api/settings/sound", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[settingResponse](t, resp)
	assert.Equal(t, "off", got.Value)

	resp = h.do(http.MethodPut, "/api/settings/bad.key", tok, `{"value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	other := h.login(4)
	resp = h.do(http.MethodGet, "/api/settings/sound", other, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "settings are per user")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrClaimPending))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(session.ErrClosed))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(kv.ErrValueTooLarge))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	tok := h.login(11)

	desc := "Diamond"
	h.history.txs[11] = []*model.Transaction{
		{Amount: 750, Type: model.TxTypeConvert, Description: &desc, CreatedAt: h.now},
		{Amount: 25, Type: model.TxTypeSpinCurrency, CreatedAt: h.now.Add(-time.Hour)},
	}

	resp := h.do(http.MethodGet, "/api/history", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]historyEntry](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, "Diamond", list[0].Description)
	assert.Empty(t, list[1].Description)

	resp = h.do(http.MethodGet, "/api/history?limit=1", tok, "")
	assert.Len(t, decodeBody[[]historyEntry](t, resp), 1)

	resp = h.do(http.MethodGet, "/api/history", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
