package handler

import (
	"net/http"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/auth/provider"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/session"

	"github.com/gin-gonic/gin"
)

// extensionRegisterRequest is sent by the browser extension, which obtains
// a provider access token on its own. google_token is the older field name.
type extensionRegisterRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
	GoogleToken string `json:"google_token"`
}

func (h *Handler) extensionRegister(c *gin.Context) {
	const op = "extension_register"

	var req extensionRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, op, auth.Fail(auth.CodeInvalidRequest, "malformed json body", err))
		return
	}

	token := req.AccessToken
	if token == "" {
		token = req.GoogleToken
	}
	if token == "" {
		h.fail(c, op, auth.Fail(auth.CodeInvalidRequest, "access token is required", nil))
		return
	}

	p, err := h.providers.Get(req.Provider)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	verifier, ok := p.(provider.AccessTokenVerifier)
	if !ok {
		h.fail(c, op, auth.Fail(auth.CodeInvalidRequest, p.Name()+" does not accept access tokens", nil))
		return
	}

	ctx := c.Request.Context()

	identity, err := verifier.IdentityFromAccessToken(ctx, token)
	if err != nil {
		h.fail(c, op, err)
		return
	}

	principal, err := h.resolver.Resolve(ctx, identity)
	if err != nil {
		h.fail(c, op, err)
		return
	}

	issued, err := h.issuer.Issue(ctx, principal, session.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, op, err)
		return
	}
	h.metrics.ObserveAuth(op, nil)

	logger.Info("extension login succeeded", map[string]any{
		"user_id":  principal.ID,
		"provider": principal.Provider,
		"ip":       c.ClientIP(),
	})

	// jwt is the field name older extension builds read
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserView(principal),
		"token":   issued.Token,
		"jwt":     issued.Token,
	})
}
