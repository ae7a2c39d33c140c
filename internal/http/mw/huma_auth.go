package mw

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/prayerline/internal/auth"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// AdminAuth returns a Huma middleware that checks the admin API key on
// operations registered with bearer security. Other operations pass through.
func AdminAuth(api huma.API, adminKey string, logger *slog.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		if authHeader == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if !auth.ValidAdminKey(authHeader, adminKey) {
			logger.Warn("admin auth rejected", "operation", op.OperationID)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid admin key")
			return
		}
		next(ctx)
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}
