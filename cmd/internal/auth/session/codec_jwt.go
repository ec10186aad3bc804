package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type accessClaims struct {
	jwt.RegisteredClaims
	Email        string      `json:"email"`
	UserType     int64       `json:"userType"`
	UserTypeName string      `json:"userTypeName"`
	Permissions  Permissions `json:"permissions"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
}

// JWTCodec implements Codec with HS256 JWTs and two independent secrets.
type JWTCodec struct {
	issuer     string
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
}

var _ Codec = (*JWTCodec)(nil)

// NewJWTCodec builds a codec from cfg. Secrets are validated by cfg.Validate.
func NewJWTCodec(cfg Config) (*JWTCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTCodec{
		issuer:     cfg.Issuer,
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     cfg.ClockSkew,
	}, nil
}

func (c *JWTCodec) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

// IssueAccessToken signs cl with the access secret.
func (c *JWTCodec) IssueAccessToken(cl Claims, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(cl.UserID) == "" {
		return "", time.Time{}, errors.New("session: access token without subject")
	}

	claims := accessClaims{
		RegisteredClaims: c.registered(cl.UserID, now, c.accessTTL),
		Email:            cl.Email,
		UserType:         cl.UserType,
		UserTypeName:     cl.UserTypeName,
		Permissions:      cl.Permissions,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefreshToken signs a subject-only token with the refresh secret.
func (c *JWTCodec) IssueRefreshToken(userID string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("session: refresh token without subject")
	}

	claims := refreshClaims{RegisteredClaims: c.registered(userID, now, c.refreshTTL)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccessToken validates signature, issuer and expiry and returns the claims.
func (c *JWTCodec) VerifyAccessToken(tok string, now time.Time) (Claims, error) {
	var ac accessClaims
	if err := c.parse(tok, c.accessKey, &ac, now); err != nil {
		return Claims{}, err
	}
	return Claims{
		UserID:       ac.Subject,
		Email:        ac.Email,
		UserType:     ac.UserType,
		UserTypeName: ac.UserTypeName,
		Permissions:  ac.Permissions,
	}, nil
}

// VerifyRefreshToken validates a refresh token and returns its subject.
func (c *JWTCodec) VerifyRefreshToken(tok string, now time.Time) (string, error) {
	var rc refreshClaims
	if err := c.parse(tok, c.refreshKey, &rc, now); err != nil {
		return "", err
	}
	return rc.Subject, nil
}

// parse maps every jwt failure onto ErrTokenExpired or ErrTokenInvalid.
// The signature is checked before the claims, so a forged expired token is
// reported as invalid.
func (c *JWTCodec) parse(tok string, key []byte, dst jwt.Claims, now time.Time) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	parsed, err := parser.ParseWithClaims(tok, dst, func(*jwt.Token) (any, error) { return key, nil })
	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}

	sub, err := dst.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return ErrTokenInvalid
	}
	return nil
}
