package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Init data errors.
var (
	ErrInitDataSignature = errors.New("init data signature mismatch")
	ErrInitDataExpired   = errors.New("init data expired")
	ErrInitDataMalformed = errors.New("init data malformed")
)

// Profile is the Telegram user the web app was opened by.
type Profile struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// DisplayName prefers the username and falls back to the full name.
func (p Profile) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ValidateInitData checks the web app launch parameters against the bot
// token and returns the user. maxAge zero skips the freshness check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (Profile, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInitDataMalformed, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return Profile{}, fmt.Errorf("%w: missing hash", ErrInitDataMalformed)
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: bad hash", ErrInitDataMalformed)
	}
	if !hmac.Equal(signInitData(values, botToken), want) {
		return Profile{}, ErrInitDataSignature
	}

	if maxAge > 0 {
		sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: bad auth_date", ErrInitDataMalformed)
		}
		if now.Sub(time.Unix(sec, 0)) > maxAge {
			return Profile{}, ErrInitDataExpired
		}
	}

	var p Profile
	if err := json.Unmarshal([]byte(values.Get("user")), &p); err != nil || p.ID == 0 {
		return Profile{}, fmt.Errorf("%w: bad user", ErrInitDataMalformed)
	}
	return p, nil
}

// signInitData computes the expected hash: HMAC over the sorted
// key=value lines, keyed by HMAC("WebAppData", botToken).
func signInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}

// SignInitData builds a signed init data string. The web app never needs
// it; tests and local tools do.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		signed[k] = v
	}
	signed.Set("hash", hex.EncodeToString(signInitData(values, botToken)))
	return signed.Encode()
}
