package middleware

import (
	"net/http"
	"strings"

	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/gorilla/mux"
)

// OptionalAuth resolves a Bearer credential when present. Requests without
// a valid credential continue anonymously.
func OptionalAuth(resolver auth.Resolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
				if id, ok := resolver.Resolve(r.Context(), header[7:]); ok {
					r = r.WithContext(auth.WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
