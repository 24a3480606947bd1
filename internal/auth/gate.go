package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/model"
)

// ReasonNotLoggedIn is shown to visitors who reach a protected page without
// a valid session.
const ReasonNotLoggedIn = "Unauthorized: Please Log In"

// Identity is the outcome of checking a session token. The zero value is an
// anonymous visitor.
type Identity struct {
	UserID string
	// Reason explains why the identity is anonymous. Empty when authenticated.
	Reason string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// UserFinder is the slice of the user repository the gate needs.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Gate turns tokens into identities and identities into accounts.
type Gate struct {
	tokens *TokenService
	users  UserFinder
}

func NewGate(tokens *TokenService, users UserFinder) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Tokens exposes the signer so login handlers can mint sessions.
func (g *Gate) Tokens() *TokenService {
	return g.tokens
}

// Authenticate never fails: a missing, expired or forged token produces an
// anonymous Identity carrying the reason.
func (g *Gate) Authenticate(token string) Identity {
	if token == "" {
		return Identity{Reason: ReasonNotLoggedIn}
	}
	userID, err := g.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Identity{Reason: "Session expired: Please Log In"}
		}
		return Identity{Reason: ReasonNotLoggedIn}
	}
	return Identity{UserID: userID}
}

// ResolveUser loads the account behind id. An anonymous identity yields
// ErrUnauthorized; a token for an account that has since been deleted
// yields ErrNotFound.
func (g *Gate) ResolveUser(ctx context.Context, id Identity) (*model.User, error) {
	if !id.Authenticated() {
		reason := id.Reason
		if reason == "" {
			reason = ReasonNotLoggedIn
		}
		return nil, apperror.Unauthorized(reason)
	}
	user, err := g.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", id.UserID)
		}
		return nil, fmt.Errorf("auth: resolving user %s: %w", id.UserID, err)
	}
	return user, nil
}
