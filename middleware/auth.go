package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/rps-tournament-bot/services"
)

type contextKey string

const actorContextKey contextKey = "actor"

var ErrUnauthenticated = errors.New("authentication required")

// Authenticate verifies an HS256 bearer token and stores the actor it names
// in the request context. Requests without a valid token are rejected.
func Authenticate(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromRequest(r, key)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="rps"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func actorFromRequest(r *http.Request, key []byte) (services.Actor, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return services.Actor{}, ErrUnauthenticated
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return services.Actor{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Actor{}, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	return actorFromClaims(claims)
}

func actorFromClaims(claims jwt.MapClaims) (services.Actor, error) {
	var userID string
	switch v := claims[services.ClaimUserID].(type) {
	case string:
		userID = v
	case float64:
		// Numeric chat user ids survive JSON as float64.
		userID = fmt.Sprintf("%.0f", v)
	default:
		return services.Actor{}, fmt.Errorf("%w: missing %q claim", ErrUnauthenticated, services.ClaimUserID)
	}
	if userID == "" {
		return services.Actor{}, fmt.Errorf("%w: empty %q claim", ErrUnauthenticated, services.ClaimUserID)
	}
	role, _ := claims[services.ClaimRole].(string)
	return services.Actor{ID: userID, IsAdmin: role == services.RoleAdmin}, nil
}

func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(services.Actor)
	return actor, ok
}
