package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// HMACAuth holds the L2 credentials required for HMAC-authenticated requests
// against the CLOB.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64 or base64url
	Passphrase string // API passphrase
}

// NewHMACAuth builds an HMACAuth from derived credentials.
func NewHMACAuth(c domain.Credentials) *HMACAuth {
	return &HMACAuth{Key: c.APIKey, Secret: c.Secret, Passphrase: c.Passphrase}
}

// L2Headers returns the HTTP headers for an L2 (CLOB) API request stamped
// with the current time.
//
// Returned header keys:
//   - POLY_ADDRESS
//   - POLY_API_KEY
//   - POLY_TIMESTAMP
//   - POLY_PASSPHRASE
//   - POLY_SIGNATURE
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is like L2Headers but lets the caller supply the Unix
// timestamp.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  Sign(h.Secret, ts+method+path+body),
	}
}

// Sign computes the url-safe base64 HMAC-SHA256 of message keyed with the
// decoded secret. Padding is kept.
func Sign(secret, message string) string {
	key, err := base64.StdEncoding.DecodeString(sanitizeSecret(secret))
	if err != nil {
		// Fall back to raw bytes so the caller gets an obviously-wrong
		// signature rather than a panic.
		key = []byte(secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// sanitizeSecret accepts base64url input, drops characters outside the
// base64 alphabet and restores padding.
func sanitizeSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	secret = strings.NewReplacer("-", "+", "_", "/").Replace(secret)

	var b strings.Builder
	b.Grow(len(secret) + 3)
	for i := 0; i < len(secret); i++ {
		c := secret[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '+' || c == '/' || c == '=':
			b.WriteByte(c)
		}
	}
	out := b.String()
	if rem := len(out) % 4; rem != 0 {
		out += strings.Repeat("=", 4-rem)
	}
	return out
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
