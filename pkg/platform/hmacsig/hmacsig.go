// Package hmacsig signs and verifies HTTP bodies with timestamped
// HMAC-SHA256 headers of the form "t=<unix>,v1=<hex>".
package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrMalformed = errors.New("malformed signature header")
	ErrMismatch  = errors.New("signature mismatch")
	ErrExpired   = errors.New("signature timestamp outside tolerance")
)

// Sign returns the header value for body signed at ts.
func Sign(key []byte, ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + mac(key, unix, body)
}

// Verify checks header against body. A zero tolerance skips the timestamp
// window check.
func Verify(key []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var unix, sig string
	for part := range strings.SplitSeq(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformed
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			sig = v
		}
	}
	if unix == "" || sig == "" {
		return ErrMalformed
	}
	ts, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if !hmac.Equal([]byte(sig), []byte(mac(key, unix, body))) {
		return ErrMismatch
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrExpired
		}
	}
	return nil
}

// DeriveKey expands a root secret into a 32-byte key bound to info.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func mac(key []byte, unix string, body []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(unix))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
