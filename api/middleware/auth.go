package middleware

import (
	"net/http"
	"strings"

	"github.com/lazydrop/lazydrop-billing/api/responses"
	pkgAuth "github.com/lazydrop/lazydrop-billing/pkg/auth"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
	"github.com/lazydrop/lazydrop-billing/pkg/logger"
)

const bearerScheme = "bearer"

// Auth admits requests carrying a valid operator bearer token and records the
// operator on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := Actor{Subject: claims.Subject, Role: claims.Role}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.Subject, string(actor.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="lazydrop-admin"`)
	responses.WriteError(r.Context(), logg, w, err)
}
