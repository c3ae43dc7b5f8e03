package handler

import (
	"net/http"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/auth/flow"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/session"

	"github.com/gin-gonic/gin"
)

func (h *Handler) authorizationURL(c *gin.Context) {
	a, err := h.flows.Begin(c.Request.Context(), flow.BeginRequest{
		FlowID:      flow.FromRequest(c.Request),
		RedirectURI: c.Query("redirect_uri"),
		Provider:    c.Query("provider"),
	})
	if err != nil {
		h.fail(c, "authorization_url", err)
		return
	}
	h.metrics.ObserveAuth("authorization_url", nil)

	flow.SetCookie(c.Writer, a.FlowID, h.flows.TTL(), h.cookie)

	c.JSON(http.StatusOK, gin.H{
		"authUrl": a.URL,
		"state":   a.State,
		"flowId":  a.FlowID,
	})
}

type callbackRequest struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
	FlowID      string `json:"flowId"`
}

func (h *Handler) callback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "callback", auth.Fail(auth.CodeInvalidRequest, "malformed json body", err))
		return
	}

	flowID := req.FlowID
	if flowID == "" {
		flowID = flow.FromRequest(c.Request)
	}

	ctx := c.Request.Context()

	identity, err := h.flows.Complete(ctx, flow.CallbackRequest{
		Code:        req.Code,
		State:       req.State,
		FlowID:      flowID,
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		h.fail(c, "callback", err)
		return
	}
	flow.ClearCookie(c.Writer, h.cookie)

	principal, err := h.resolver.Resolve(ctx, identity)
	if err != nil {
		h.fail(c, "callback", err)
		return
	}

	issued, err := h.issuer.Issue(ctx, principal, session.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, "callback", err)
		return
	}
	h.metrics.ObserveAuth("callback", nil)

	logger.Info("login succeeded", map[string]any{
		"user_id":  principal.ID,
		"provider": principal.Provider,
		"ip":       c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserView(principal),
		"token":   issued.Token,
	})
}
