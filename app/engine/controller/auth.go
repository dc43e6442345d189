package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const accountKey contextKey = "account_id"

// AccountID extracts the authenticated account from a bearer token. The
// token's sub claim is the account id.
func (c *Controller) AccountID(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return c.App.Cfg.JWTSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return ""
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// RequireAccount middleware rejects requests without a valid account token.
func (c *Controller) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := c.AccountID(r)
		if accountID == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, accountID)))
	})
}

// RequireAdmin middleware checks the static admin token.
func (c *Controller) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if c.App.Cfg.AdminToken == "" || token != c.App.Cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountFrom(ctx context.Context) string {
	id, _ := ctx.Value(accountKey).(string)
	return id
}

// IssueToken mints a bearer token for an account. Exposed for tooling and
// tests; production tokens come from the identity service.
func (c *Controller) IssueToken(accountID string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID,
	})
	return tok.SignedString(c.App.Cfg.JWTSecret)
}
