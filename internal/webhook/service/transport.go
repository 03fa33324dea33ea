package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"

	"likeness/internal/webhook/models"
	"likeness/pkg/platform/hmacsig"
)

const (
	HeaderSignature = "X-Likeness-Signature"
	HeaderEventID   = "X-Likeness-Event-Id"
	HeaderEventType = "X-Likeness-Event-Type"
	HeaderAttempt   = "X-Likeness-Attempt"
)

// NewHTTPClient returns the client used to reach subscribers. Unless
// allowPrivate is set, requests to loopback, private and link-local
// addresses are refused after DNS resolution.
func NewHTTPClient(timeout time.Duration, allowPrivate bool) *http.Client {
	if allowPrivate {
		return &http.Client{Timeout: timeout}
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443, 8080, 8443).
		Build()
	return safeurl.Client(cfg).Client
}

// KeyRing derives one signing key per subscriber family from the root
// secret, so a leaked subscriber key cannot forge another family's events.
type KeyRing struct {
	secret []byte
}

func NewKeyRing(secret string) *KeyRing {
	return &KeyRing{secret: []byte(secret)}
}

// KeyFor returns the signing key handed to the subscriber of family.
func (k *KeyRing) KeyFor(family string) ([]byte, error) {
	return hmacsig.DeriveKey(k.secret, "likeness/webhook/"+family)
}

// poster sends one signed envelope.
type poster struct {
	client *http.Client
	keys   *KeyRing
	now    func() time.Time
}

// StatusError reports a non-2xx subscriber response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "subscriber responded " + strconv.Itoa(e.Code)
}

func (p *poster) post(ctx context.Context, target, family string, msg models.Message, body []byte) error {
	key, err := p.keys.KeyFor(family)
	if err != nil {
		return fmt.Errorf("derive signing key: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "likeness-webhooks/1")
	req.Header.Set(HeaderEventID, msg.ID.String())
	req.Header.Set(HeaderEventType, msg.EventType)
	req.Header.Set(HeaderAttempt, strconv.Itoa(msg.Attempts+1))
	req.Header.Set(HeaderSignature, hmacsig.Sign(key, p.now(), body))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
