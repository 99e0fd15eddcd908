package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// MinSigningKeyLength is the smallest HS256 key accepted, in bytes.
	MinSigningKeyLength = 32
	// DefaultAccessTokenTTL applies when no TTL is configured.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultIssuer is embedded in the iss claim when none is configured.
	DefaultIssuer = "bearer-auth-service"
)

var (
	ErrSigningKey       = errors.New("signing key unavailable or too short")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpiredToken     = errors.New("token expired")
)

// reservedClaims are always written by the codec and never taken from callers.
var reservedClaims = []string{"sub", "iss", "iat", "exp"}

var signingMethod = jwt.SigningMethodHS256

// DecodedToken is the verified content of a bearer token.
type DecodedToken struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Claims holds custom claims only; reserved claims are stripped. Values
	// come back as JSON types, except that integral numbers decode as int64
	// and other numbers as float64.
	Claims map[string]any
}

// Expired reports whether the token is no longer valid at now.
func (d *DecodedToken) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// TokenCodec issues and verifies HS256 signed tokens. It holds only immutable
// state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// NewTokenCodec builds a codec. It fails with ErrSigningKey when the secret is
// shorter than MinSigningKeyLength.
func NewTokenCodec(secret, issuer string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSigningKey, MinSigningKeyLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	tc := &TokenCodec{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc, nil
}

// TTL returns the lifetime given to issued tokens.
func (tc *TokenCodec) TTL() time.Duration {
	return tc.ttl
}

// Now returns the codec's current time.
func (tc *TokenCodec) Now() time.Time {
	return tc.now()
}

// Encode signs a token for subject. Custom claims are copied first and the
// reserved claims are written over them.
func (tc *TokenCodec) Encode(subject string, claims map[string]any) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject must not be empty")
	}
	if len(tc.secret) < MinSigningKeyLength {
		return "", time.Time{}, ErrSigningKey
	}

	issuedAt := tc.now()
	expiresAt := issuedAt.Add(tc.ttl)

	payload := make(jwt.MapClaims, len(claims)+len(reservedClaims))
	for k, v := range claims {
		payload[k] = v
	}
	payload["sub"] = subject
	payload["iss"] = tc.issuer
	payload["iat"] = jwt.NewNumericDate(issuedAt)
	payload["exp"] = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(signingMethod, payload).SignedString(tc.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, expiresAt, nil
}

// Decode verifies the signature, issuer and expiry of raw and returns its content.
func (tc *TokenCodec) Decode(raw string) (*DecodedToken, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(tc.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tc.now),
		jwt.WithJSONNumber(),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return tc.secret, nil
	}); err != nil {
		return nil, classify(err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrMalformedToken
	}
	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, ErrMalformedToken
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, ErrMalformedToken
	}

	custom := make(map[string]any, len(claims))
	for k, v := range claims {
		custom[k] = normalizeNumbers(v)
	}
	for _, k := range reservedClaims {
		delete(custom, k)
	}

	return &DecodedToken{
		Subject:   subject,
		Issuer:    tc.issuer,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
		Claims:    custom,
	}, nil
}

// normalizeNumbers replaces json.Number values, including nested ones, with
// int64 when the number is integral and float64 otherwise.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}

// classify collapses jwt library errors into the codec's error set. Signature
// checks run before claim validation, so a tampered expired token reports
// ErrInvalidSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
