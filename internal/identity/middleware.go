package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

var errMissingBearer = errors.New("missing bearer token")

// Middleware rejects requests without a valid bearer token and stores the
// resolved principal in the request context.
func Middleware(provider *Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrUnauthorized, errMissingBearer))
				return
			}
			principal, err := provider.Parse(raw)
			if err != nil {
				logger.Debug("reject bearer token", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
