package middleware

import (
	"net/http"
	"slices"

	"github.com/lazydrop/lazydrop-billing/api/responses"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

// RequireRole admits only operators holding one of roles. It must run after Auth.
func RequireRole(logg *logger.Logger, roles ...enums.AdminRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing"))
				return
			}
			if !slices.Contains(roles, actor.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role "+string(actor.Role)+" may not perform this action"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
