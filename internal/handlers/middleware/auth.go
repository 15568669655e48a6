package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/handlers/accountctx"
	"github.com/nkiryanov/venuewallet/internal/handlers/render"
)

type authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

func AuthMiddleware(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="venuewallet"`)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := accountctx.New(r.Context(), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
