package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/auth"
	"github.com/Togather-Foundation/gatherings/internal/domain/access"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TokenValidator validates bearer tokens. *auth.JWTManager implements it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type identityHolderKey struct{}

// identityHolder lets outer middleware observe the identity resolved further
// down the chain.
type identityHolder struct {
	identity access.Identity
}

func withIdentityHolder(ctx context.Context, holder *identityHolder) context.Context {
	return context.WithValue(ctx, identityHolderKey{}, holder)
}

// Identity resolves the caller from the Authorization header. A request
// without the header is anonymous; a present but invalid bearer token is
// rejected with 401 rather than downgraded to anonymous.
func Identity(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := access.Anonymous()

			if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
				token, err := auth.TokenFromHeader(header)
				if err != nil {
					unauthorized(w, r, "Invalid authorization format")
					return
				}
				if validator == nil {
					unauthorized(w, r, "Token validation is not configured")
					return
				}
				claims, err := validator.Validate(token)
				if err != nil {
					unauthorized(w, r, "Invalid token")
					return
				}
				identity = claims.Identity()
			}

			if holder, ok := r.Context().Value(identityHolderKey{}).(*identityHolder); ok {
				holder.identity = identity
			}
			ctx := access.WithIdentity(r.Context(), identity)
			if !identity.IsAnonymous() {
				logger := LoggerFromContext(ctx).With().Str("user_id", identity.UserID()).Logger()
				ctx = logger.WithContext(ctx)
				trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", identity.UserID()))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gatherings", error="invalid_token"`)
	problem.WriteKind(w, r, problem.KindUnauthenticated, detail)
}
