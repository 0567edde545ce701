package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/huddle-backend/api/responses"
	pkgAuth "github.com/angelmondragon/huddle-backend/pkg/auth"
	"github.com/angelmondragon/huddle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

// Identity resolves the calling user and seeds the request context with it.
// In jwt mode the user comes from a bearer token; in header mode it is read
// from a trusted header set by an upstream gateway.
func Identity(cfg config.IdentityConfig, jwtCfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	header := strings.TrimSpace(cfg.TrustedHeader)
	if header == "" {
		header = "X-User-Id"
	}
	var (
		keys    *pkgAuth.Keys
		keysErr error
	)
	if cfg.Mode != config.IdentityModeHeader {
		keys, keysErr = pkgAuth.NewKeys(jwtCfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				userID string
				err    error
			)
			switch cfg.Mode {
			case config.IdentityModeHeader:
				userID = strings.TrimSpace(r.Header.Get(header))
				if userID == "" {
					err = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity header")
				}
			default:
				if keysErr != nil {
					err = pkgerrors.Wrap(pkgerrors.CodeInternal, keysErr, "identity is misconfigured")
				} else {
					userID, err = bearerUser(keys, r)
				}
			}
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerUser(keys *pkgAuth.Keys, r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := keys.Parse(token)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	return claims.UserID, nil
}
