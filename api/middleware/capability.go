package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront-inventory/api/responses"
	"github.com/angelmondragon/storefront-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-inventory/pkg/errors"
	"github.com/angelmondragon/storefront-inventory/pkg/logger"
)

// RequireCapability rejects callers whose role does not grant capability.
// It must run after Auth.
func RequireCapability(capability enums.Capability, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if !role.Can(capability) {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "missing capability "+string(capability))
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
