package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
)

// ErrUnauthenticated indicates the request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityFunc resolves the actor a request runs as. The service trusts the
// returned actor unconditionally.
type IdentityFunc func(r *http.Request) (simplefeed.Actor, error)

// JWTIdentity reads the actor from the token jwtauth.Verifier placed on the
// request context. The "sub" claim is the actor id and "name" its display name.
func JWTIdentity(r *http.Request) (simplefeed.Actor, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return simplefeed.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if token == nil {
		return simplefeed.Actor{}, ErrUnauthenticated
	}

	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return simplefeed.Actor{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	name, _ := claims["name"].(string)
	return simplefeed.Actor{ID: id, Name: name}, nil
}

// NewTokenAuth returns the HS256 verifier for secret
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken mints an HS256 token for actor. Intended for tooling and tests.
func IssueToken(auth *jwtauth.JWTAuth, actor simplefeed.Actor) (string, error) {
	claims := map[string]interface{}{"sub": actor.ID.String()}
	if actor.Name != "" {
		claims["name"] = actor.Name
	}
	_, token, err := auth.Encode(claims)
	return token, err
}
