package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	SessionCookieName = "waitlist_session"
	tokenIssuer       = "waitlist"
)

type TokenData struct {
	Sub    string
	UserID int64
	Exp    int64
}

// TokenManager issues and validates HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// IssueToken returns a signed token for userID and its expiry.
func (m *TokenManager) IssueToken(userID int64) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses AND validates the signature locally.
// It returns the data if the token is authentic and unexpired.
func (m *TokenManager) ValidateToken(tokenString string) (*TokenData, error) {
	clean := sanitizeToken(tokenString)
	if clean == "" {
		return nil, errors.New("missing token")
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(clean, &claims, m.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid subject %q: %w", claims.Subject, err)
	}

	return &TokenData{
		Sub:    claims.Subject,
		UserID: userID,
		Exp:    claims.ExpiresAt.Unix(),
	}, nil
}

// ParseTokenDataCtx reads the session from the Authorization header, falling
// back to the session cookie (EventSource cannot send custom headers).
func (m *TokenManager) ParseTokenDataCtx(ctx echo.Context) (*TokenData, error) {
	token := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if token == "" {
		if cookie, err := ctx.Cookie(SessionCookieName); err == nil {
			token = cookie.Value
		}
	}
	return m.ValidateToken(token)
}

func (m *TokenManager) keyfunc(*jwt.Token) (any, error) {
	return m.secret, nil
}

func sanitizeToken(token string) string {
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}
