// Package identity resolves a caller to the per-operation capability facts
// the permission gate consumes. The facts are supplied fresh for every
// operation and never cached beyond it.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/common"
)

// Provider is the identity/authorization port.
type Provider interface {
	// Resolve maps a presented credential to actor facts. Unknown or
	// invalid credentials map to common.ErrPermissionDenied.
	Resolve(ctx context.Context, credential string) (policy.Actor, error)
}

// Claims is the assertion carried by a signed identity token: who the user
// is and what the authorization backend says they may touch.
type Claims struct {
	jwt.RegisteredClaims
	Username      string   `json:"username"`
	Workspaces    []string `json:"workspaces"`
	OutputChecker bool     `json:"output_checker"`
}

// GenerateToken signs actor facts into an HS256 token, used by the external
// authorization backend and by tests.
func GenerateToken(actor policy.Actor, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Username:      actor.Username,
		Workspaces:    actor.WorkspaceGrants,
		OutputChecker: actor.OutputChecker,
	})
	return token.SignedString(secretKey)
}

// JWTProvider validates identity tokens issued by the authorization backend.
type JWTProvider struct {
	secretKey []byte
}

func NewJWTProvider(secretKey []byte) *JWTProvider {
	return &JWTProvider{secretKey: secretKey}
}

func (p *JWTProvider) Resolve(_ context.Context, credential string) (policy.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secretKey, nil
	})
	if err != nil {
		return policy.Actor{}, fmt.Errorf("parse identity token: %w: %w", common.ErrPermissionDenied, err)
	}
	if !token.Valid || claims.Username == "" {
		return policy.Actor{}, fmt.Errorf("identity token: %w", common.ErrPermissionDenied)
	}
	return policy.Actor{
		Username:        claims.Username,
		WorkspaceGrants: claims.Workspaces,
		OutputChecker:   claims.OutputChecker,
	}, nil
}

// StaticProvider maps usernames straight to actor facts; the reference
// provider for tests and local setups.
type StaticProvider map[string]policy.Actor

func (p StaticProvider) Resolve(_ context.Context, username string) (policy.Actor, error) {
	actor, ok := p[username]
	if !ok {
		return policy.Actor{}, fmt.Errorf("unknown user %s: %w", username, common.ErrPermissionDenied)
	}
	return actor, nil
}
