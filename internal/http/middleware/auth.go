package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/pkg/auth"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

type ctxKey string

const CtxIdentity ctxKey = "identity"

// TokenVerifier resolves session tokens into identities.
type TokenVerifier struct {
	issuer *auth.Issuer
}

func NewTokenVerifier(issuer *auth.Issuer) *TokenVerifier {
	return &TokenVerifier{issuer: issuer}
}

func (v *TokenVerifier) VerifyToken(token string) (domain.Identity, error) {
	claims, err := v.issuer.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok || claims.Sub == "" {
		return domain.Identity{}, auth.ErrInvalidToken
	}
	return domain.Identity{Role: role, ID: claims.Sub}, nil
}

// RequireRole admits requests whose bearer token belongs to one of roles and
// stores the caller identity on the context.
func RequireRole(verifier *TokenVerifier, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "Invalid authorization header")
				return
			}
			id, err := verifier.VerifyToken(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "Invalid authorization token", response.CodeInvalidToken)
				return
			}
			if !slices.Contains(roles, id.Role) {
				response.Forbidden(w, "Access denied for role "+string(id.Role))
				return
			}
			ctx := context.WithValue(r.Context(), CtxIdentity, id)
			ctx = context.WithValue(ctx, logger.UserIDKey, id.ID)
			ctx = context.WithValue(ctx, logger.RoleKey, string(id.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Identity(r *http.Request) domain.Identity {
	if v, ok := r.Context().Value(CtxIdentity).(domain.Identity); ok {
		return v
	}
	return domain.Identity{}
}
