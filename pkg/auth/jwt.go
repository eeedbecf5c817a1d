package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken   = errors.New("auth: no token")
	ErrBadToken  = errors.New("auth: bad token")
	ErrNoSubject = errors.New("auth: token has no user")
)

type ctxKey int

const userKey ctxKey = 1

// WithUser adds a user ID to the context
func WithUser(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userKey, uid)
}

// UserID extracts the user ID from the context, "" when unauthenticated
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(userKey).(string)
	return uid
}

// JWT wraps a signing secret for issuing/verifying tokens
type JWT struct {
	secret []byte
	now    func() time.Time
}

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret), now: time.Now} }

// Verify checks a token and returns the user ID it was issued for.
// The user is read from "sub", falling back to the legacy "userId" claim.
func (j *JWT) Verify(tok string) (string, error) {
	if tok == "" {
		return "", ErrNoToken
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		uid, _ = claims["userId"].(string)
	}
	if uid == "" {
		return "", ErrNoSubject
	}
	return uid, nil
}

// Sign creates a token for uid with the given TTL
func (j *JWT) Sign(uid string, ttl time.Duration) (string, error) {
	if uid == "" {
		return "", errors.New("empty uid")
	}
	now := j.now()
	claims := jwt.MapClaims{
		"sub":    uid,
		"userId": uid,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}
