package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"mutuelle/internal/access"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/httputil"
	"mutuelle/pkg/requestcontext"
)

// Authenticator turns a bearer token into the operator it was issued to.
type Authenticator interface {
	Authenticate(token string) (access.Subject, error)
}

// RequireOperator rejects requests without a valid bearer token and puts
// the authenticated subject in the request context.
func RequireOperator(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			subject, err := auth.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = access.WithSubject(ctx, subject)
			ctx = requestcontext.WithOperatorID(ctx, subject.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
