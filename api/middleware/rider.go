package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/responses"
	pkgerrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

// RiderHeader carries the authenticated rider identity. The portal gateway
// terminates authentication and forwards the verified ID here.
const RiderHeader = "X-Rider-Id"

// RequireRider rejects requests without a valid rider identity and exposes it
// to downstream handlers via context.
func RequireRider(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(RiderHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "rider identity required"))
				return
			}
			riderID, err := uuid.Parse(raw)
			if err != nil || riderID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid rider identity"))
				return
			}

			ctx := WithRiderID(r.Context(), riderID.String())
			if logg != nil {
				ctx = logg.WithRiderID(ctx, riderID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
