package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/session"
)

// unexported, collision-proof context keys
type principalContextKeyType struct{}
type claimsContextKeyType struct{}

var (
	principalKey = principalContextKeyType{}
	claimsKey    = claimsContextKeyType{}
)

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

// ClaimsFromContext extracts the verified token claims from context.
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*session.Claims)
	return c, ok
}

// TokenValidator resolves a bearer token to its principal.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*auth.Principal, *session.Claims, error)
}

type AuthMiddleware struct {
	Validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{Validator: v}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Read bearer token
		token := BearerToken(r)
		if token == "" {
			WriteError(w, auth.Fail(auth.CodeUnauthenticated, "", nil))
			return
		}

		// 2. Verify and resolve the principal
		p, claims, err := a.Validator.Validate(r.Context(), token)
		if err != nil {
			WriteError(w, err)
			return
		}

		// 3. Attach principal and claims to context
		ctx := context.WithValue(r.Context(), principalKey, p)
		ctx = context.WithValue(ctx, claimsKey, claims)

		// 4. Continue request
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ErrorBody is the JSON shape of every failed API response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// NewErrorBody renders err without leaking internal causes.
func NewErrorBody(err error) ErrorBody {
	return ErrorBody{
		Success: false,
		Error:   auth.PublicMessage(err),
		Code:    string(auth.CodeOf(err)),
	}
}

// WriteError writes err as a JSON error response with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	code := auth.CodeOf(err)
	if code == auth.CodeUnauthenticated {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(auth.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(NewErrorBody(err))
}
