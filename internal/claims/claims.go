// Package claims decodes the claim set carried in a bearer credential.
//
// Decoding is a display and authorization hint only: signatures are never
// verified, the API server re-validates the credential on every call.
package claims

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"opsconsole/pkg/logger"
)

// Claims is the decoded payload of a credential.
type Claims map[string]any

var (
	ErrSegments = errors.New("credential must have three dot-separated segments")
	ErrEncoding = errors.New("credential payload is not base64url")
	ErrUTF8     = errors.New("credential payload is not valid UTF-8")
	ErrNotJSON  = errors.New("credential payload is not a JSON object")
)

// Parse decodes the payload segment of a header.payload.signature credential.
func Parse(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrSegments, len(parts))
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, ErrUTF8
	}
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if c == nil {
		return nil, ErrNotJSON
	}
	return c, nil
}

// decodeSegment maps the URL-safe alphabet onto the standard one and decodes
// with or without padding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	seg = strings.TrimRight(seg, "=")
	raw, err := base64.RawStdEncoding.DecodeString(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return raw, nil
}

// Decoder turns credentials into claim sets and never fails: malformed input
// yields no claims and a diagnostic log line.
type Decoder struct {
	log *zap.SugaredLogger
}

func NewDecoder(log *zap.SugaredLogger) *Decoder {
	return &Decoder{log: logger.OrNop(log)}
}

// Decode returns the claim set of token, or false when token is empty or
// malformed.
func (d *Decoder) Decode(token string) (Claims, bool) {
	if token == "" {
		return nil, false
	}
	c, err := Parse(token)
	if err != nil {
		if d != nil && d.log != nil {
			d.log.Warnw("credential decode failed", "err", err)
		}
		return nil, false
	}
	return c, true
}

// Registered is the subset of standard claims shown to operators.
type Registered struct {
	Subject   string    `json:"sub,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

// Expired reports whether the credential carries an expiry that has passed.
func (r Registered) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// InspectRegistered extracts registered claims without verifying or
// validating the credential.
func InspectRegistered(token string) (Registered, error) {
	t, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return Registered{}, fmt.Errorf("inspect credential: %w", err)
	}
	return Registered{
		Subject:   t.Subject(),
		Issuer:    t.Issuer(),
		IssuedAt:  t.IssuedAt(),
		ExpiresAt: t.Expiration(),
	}, nil
}
