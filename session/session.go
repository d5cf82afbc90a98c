// Package session carries the authenticated viewer identity. The session is
// created by the application shell on sign-in and destroyed on sign-out; the
// messaging core only reads it.
package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campusconnect/messaging/pkg/apperrors"
)

// Session is the authenticated viewer identity plus the bearer credential
// every REST call and the socket handshake carry.
type Session struct {
	UserID      string
	DisplayName string
	Role        string
	Token       string
}

// claims is the subset of the campus token payload the core cares about
type claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// FromToken decodes the bearer token's claims into a Session. The signature
// is not verified here: verification is the server's job, the client only
// needs the identity the token asserts.
func FromToken(token string) (*Session, error) {
	if token == "" {
		return nil, apperrors.ErrNoSession
	}

	parsed := &claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, parsed)
	if err != nil {
		return nil, apperrors.NewCustomError(apperrors.ErrTokenInvalid, fmt.Sprintf("cannot decode session token: %v", err))
	}

	userID := parsed.UserID
	if userID == "" {
		userID = parsed.Subject
	}
	if userID == "" {
		return nil, apperrors.NewCustomError(apperrors.ErrTokenInvalid, "session token carries no user id")
	}

	return &Session{
		UserID:      userID,
		DisplayName: parsed.Name,
		Role:        parsed.Role,
		Token:       token,
	}, nil
}
