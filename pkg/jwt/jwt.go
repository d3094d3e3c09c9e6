package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

// Header is the fixed JOSE header written into every token.
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// Validator is implemented by claims that carry temporal fields.
type Validator interface {
	Validate(now time.Time) error
}

// RegisteredClaims holds the subset of RFC 7519 claims used by this module.
// Zero timestamps are treated as unset.
type RegisteredClaims struct {
	Subject   string `json:"sub,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Validate reports ErrExpiredToken once now has passed the expiry.
func (c RegisteredClaims) Validate(now time.Time) error {
	if c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt {
		return ErrExpiredToken
	}
	return nil
}

// Service signs and verifies tokens with a single HMAC-SHA256 key.
type Service struct {
	signingKey []byte
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for claim validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service. The key should be at least 32 bytes.
func New(signingKey []byte, opts ...Option) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	s := &Service{
		signingKey: signingKey,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromString is New for string keys loaded from configuration.
func NewFromString(signingKey string, opts ...Option) (*Service, error) {
	return New([]byte(signingKey), opts...)
}

// Generate serializes claims and signs them.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	headerJSON, err := json.Marshal(Header{Algorithm: HeaderAlgorithm, Type: HeaderType})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	signingInput := encode(headerJSON) + "." + encode(claimsJSON)
	return signingInput + "." + s.sign(signingInput), nil
}

// Parse verifies the token signature and algorithm, decodes the claims into
// dst and runs Validate when dst implements Validator.
func (s *Service) Parse(token string, dst any) error {
	parts, err := split(token)
	if err != nil {
		return err
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}

	if err := decodeHeader(parts[0]); err != nil {
		return err
	}

	if err := decodeClaims(parts[1], dst); err != nil {
		return err
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(s.now()); err != nil {
			return err
		}
	}

	return nil
}

// Decode extracts claims without verifying the signature or expiry.
// The result must not be used for authorization.
func Decode(token string, dst any) error {
	parts, err := split(token)
	if err != nil {
		return err
	}
	if err := decodeHeader(parts[0]); err != nil {
		return err
	}
	return decodeClaims(parts[1], dst)
}

func (s *Service) sign(signingInput string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(signingInput))
	return encode(h.Sum(nil))
}

func split(token string) ([]string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrInvalidToken
	}
	return parts, nil
}

func decodeHeader(segment string) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return fmt.Errorf("%w: header encoding: %v", ErrInvalidToken, err)
	}

	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}

	// Anything but HS256 is rejected to prevent algorithm confusion.
	if h.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}
	return nil
}

func decodeClaims(segment string, dst any) error {
	if dst == nil {
		return ErrMissingClaims
	}

	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return fmt.Errorf("%w: claims encoding: %v", ErrInvalidToken, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
