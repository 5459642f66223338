package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the L2 API credentials of a CLOB account.
type HMACAuth struct {
	Key        string
	Secret     string // base64 (URL-safe) encoded
	Passphrase string
}

// Valid reports whether all three credential parts are present.
func (h *HMACAuth) Valid() bool {
	return h != nil && h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// L2Headers returns the authentication headers for a CLOB request signed at
// the current time. path must include any query string.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers at a fixed Unix timestamp. The signature is
// HMAC-SHA256 over timestamp+method+path+body keyed with the decoded
// secret, URL-safe base64 encoded.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	mac := hmac.New(sha256.New, decodeSecret(h.Secret))
	mac.Write([]byte(ts + method + path + body))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
	}
}

// decodeSecret accepts URL-safe or standard base64, padded or not. A secret
// that is not base64 at all is used as raw bytes.
func decodeSecret(secret string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
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
