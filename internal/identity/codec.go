// Package identity issues and verifies agent identity tokens.
//
// Token format: "it_" + base64url(JSON payload) + "." + base64url(HMAC-SHA256)
// Payload: {"agentId":"...","agentName":"...","agentStatus":"probation","iatMs":0,"expMs":0}
//
// The MAC covers the exact JSON bytes that were encoded, so the payload is
// decoded with strict base64 before the signature is recomputed.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/pkg/models"
)

// TokenPrefix marks a string as an identity token rather than an API key.
const TokenPrefix = "it_"

// DefaultSecret is the development signing secret. Never use it in production.
const DefaultSecret = "dev-identity-secret"

var (
	ErrMalformed    = errors.New("identity token malformed")
	ErrBadSignature = errors.New("identity token signature mismatch")
	ErrBadPayload   = errors.New("identity token payload invalid")
	ErrExpired      = errors.New("identity token expired")
)

var b64 = base64.RawURLEncoding.Strict()

// Codec mints and verifies identity tokens with a process-wide secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	clock  clock.Clock
}

// NewCodec creates a codec. An empty secret is rejected.
func NewCodec(secret string, clk clock.Clock) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity secret must not be empty")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Codec{secret: []byte(secret), clock: clk}, nil
}

// InsecureDefault reports whether the codec signs with DefaultSecret.
func (c *Codec) InsecureDefault() bool {
	return hmac.Equal(c.secret, []byte(DefaultSecret))
}

// IsIdentityToken reports whether s carries the identity token prefix.
func (c *Codec) IsIdentityToken(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), TokenPrefix)
}

// Mint signs a token for subject valid for ttl (clamped to at least 1ms).
func (c *Codec) Mint(subject models.AgentIdentity, ttl time.Duration) (string, error) {
	if subject.AgentID == "" || subject.AgentName == "" || !subject.AgentStatus.Valid() {
		return "", fmt.Errorf("mint identity token: incomplete subject %+v", subject)
	}

	ttlMs := ttl.Milliseconds()
	if ttlMs < 1 {
		ttlMs = 1
	}
	now := c.clock.Now().UnixMilli()
	payload := models.IdentityPayload{
		AgentID:     subject.AgentID,
		AgentName:   subject.AgentName,
		AgentStatus: subject.AgentStatus,
		IssuedAtMs:  now,
		ExpiresAtMs: now + ttlMs,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode identity payload: %w", err)
	}
	return TokenPrefix + b64.EncodeToString(body) + "." + b64.EncodeToString(c.sign(body)), nil
}

// wirePayload detects missing fields, which a plain struct would zero-fill.
type wirePayload struct {
	AgentID     *string `json:"agentId"`
	AgentName   *string `json:"agentName"`
	AgentStatus *string `json:"agentStatus"`
	IssuedAtMs  *int64  `json:"iatMs"`
	ExpiresAtMs *int64  `json:"expMs"`
}

// Verify checks prefix, structure, signature, payload shape and expiry.
// Any failure yields a nil payload and one of the package errors.
func (c *Codec) Verify(token string) (*models.IdentityPayload, error) {
	t := strings.TrimSpace(token)
	if !strings.HasPrefix(t, TokenPrefix) {
		return nil, ErrMalformed
	}

	parts := strings.Split(t[len(TokenPrefix):], ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}

	body, err := b64.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", ErrMalformed)
	}
	sig, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding", ErrMalformed)
	}

	// hmac.Equal is constant time and rejects length mismatches.
	if !hmac.Equal(sig, c.sign(body)) {
		return nil, ErrBadSignature
	}

	var wp wirePayload
	if err := json.Unmarshal(body, &wp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if wp.AgentID == nil || *wp.AgentID == "" ||
		wp.AgentName == nil || *wp.AgentName == "" ||
		wp.AgentStatus == nil || !models.AgentStatus(*wp.AgentStatus).Valid() ||
		wp.IssuedAtMs == nil || wp.ExpiresAtMs == nil {
		return nil, ErrBadPayload
	}

	if c.clock.Now().UnixMilli() > *wp.ExpiresAtMs {
		return nil, ErrExpired
	}

	return &models.IdentityPayload{
		AgentID:     *wp.AgentID,
		AgentName:   *wp.AgentName,
		AgentStatus: models.AgentStatus(*wp.AgentStatus),
		IssuedAtMs:  *wp.IssuedAtMs,
		ExpiresAtMs: *wp.ExpiresAtMs,
	}, nil
}

func (c *Codec) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
