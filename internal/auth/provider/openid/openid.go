// Package openid implements the authorization code exchange shared by every
// OpenID Connect provider: token exchange, userinfo fetch, id_token
// signature and issuer verification, and claim normalization.
package openid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string

	// AuthParams are appended to every authorization URL.
	AuthParams map[string]string

	UserInfoURL    string
	TrustedIssuers []string

	// Verifier checks signature, audience and expiry. The issuer is
	// checked separately against TrustedIssuers.
	Verifier *oidc.IDTokenVerifier

	HTTPClient *http.Client
	Timeout    time.Duration
}

type Provider struct {
	name        string
	oauthConfig oauth2.Config
	authOpts    []oauth2.AuthCodeOption
	userInfoURL string
	issuers     []string
	verifier    *oidc.IDTokenVerifier
	client      *http.Client
	timeout     time.Duration
}

func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.ClientID == "" {
		return nil, errors.New("openid: name and client id are required")
	}
	if cfg.UserInfoURL == "" || cfg.Verifier == nil || len(cfg.TrustedIssuers) == 0 {
		return nil, fmt.Errorf("openid: %s: userinfo url, verifier and trusted issuers are required", cfg.Name)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	keys := make([]string, 0, len(cfg.AuthParams))
	for k := range cfg.AuthParams {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	opts := make([]oauth2.AuthCodeOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, cfg.AuthParams[k]))
	}

	return &Provider{
		name: cfg.Name,
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       scopes,
		},
		authOpts:    opts,
		userInfoURL: cfg.UserInfoURL,
		issuers:     slices.Clone(cfg.TrustedIssuers),
		verifier:    cfg.Verifier,
		client:      client,
		timeout:     timeout,
	}, nil
}

// NewVerifier builds a verifier that skips go-oidc's single-issuer check so
// that providers publishing several issuer spellings can be trusted.
func NewVerifier(keySet oidc.KeySet, clientID string, now func() time.Time) *oidc.IDTokenVerifier {
	return oidc.NewVerifier("", keySet, &oidc.Config{
		ClientID:        clientID,
		SkipIssuerCheck: true,
		Now:             now,
	})
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state, redirectURI, codeChallenge string) string {
	cfg := p.oauthConfig
	cfg.RedirectURL = redirectURI

	opts := append(slices.Clone(p.authOpts),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return cfg.AuthCodeURL(state, opts...)
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	redirectURI string,
	codeVerifier string,
) (*auth.Identity, error) {

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	cfg := p.oauthConfig
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, p.classifyExchangeError(err, redirectURI)
	}

	info, raw, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	idToken, claims, err := p.verifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}

	identity := info.identity(p.name, raw)
	identity.SubjectID = idToken.Subject
	claims.fill(identity)

	if identity.ProviderUserID != "" && identity.ProviderUserID != idToken.Subject {
		logger.Warn("id_token subject does not match userinfo", map[string]any{
			"provider": p.name,
		})
		return nil, auth.Fail(auth.CodeUntrustedIssuer, "identity token subject mismatch", nil)
	}
	if identity.ProviderUserID == "" {
		identity.ProviderUserID = idToken.Subject
	}

	if identity.ProviderUserID == "" || identity.Email == "" {
		return nil, auth.Fail(auth.CodeIncompleteProfile, missingClaims(identity), nil)
	}

	logger.Info("oidc identity verified", map[string]any{
		"provider":       p.name,
		"issuer":         idToken.Issuer,
		"email_verified": identity.EmailVerified,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return identity, nil
}

// IdentityFromAccessToken asks the userinfo endpoint who holds accessToken.
// There is no id_token here, so the userinfo answer is the only proof.
func (p *Provider) IdentityFromAccessToken(ctx context.Context, accessToken string) (*auth.Identity, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, auth.Fail(auth.CodeInvalidRequest, "access token is required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	info, raw, err := p.fetchUserInfo(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	if err != nil {
		return nil, err
	}

	identity := info.identity(p.name, raw)
	identity.SubjectID = identity.ProviderUserID

	if identity.ProviderUserID == "" || identity.Email == "" {
		return nil, auth.Fail(auth.CodeIncompleteProfile, missingClaims(identity), nil)
	}

	logger.Info("access token identity verified", map[string]any{
		"provider":       p.name,
		"email_verified": identity.EmailVerified,
	})
	return identity, nil
}

func (p *Provider) classifyExchangeError(err error, redirectURI string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			code = sniffErrorCode(re.Body)
		}

		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		logger.Warn("token exchange rejected", map[string]any{
			"provider":    p.name,
			"status":      status,
			"error_code":  code,
			"description": re.ErrorDescription,
		})

		switch code {
		case "invalid_grant":
			return auth.Fail(auth.CodeInvalidGrant, "", err)
		case "redirect_uri_mismatch":
			return auth.Fail(auth.CodeRedirectMismatch, "expected "+redirectURI, err)
		}
		return auth.Fail(auth.CodeExchangeFailed, "", err)
	}

	logger.Error("token exchange failed", map[string]any{
		"provider": p.name,
		"error":    err,
	})
	return auth.Fail(auth.CodeExchangeFailed, "", err)
}

// sniffErrorCode handles providers that answer with a non-JSON error body.
func sniffErrorCode(body []byte) string {
	s := string(body)
	for _, code := range []string{"invalid_grant", "redirect_uri_mismatch"} {
		if strings.Contains(s, code) {
			return code
		}
	}
	return ""
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, nil, auth.Fail(auth.CodeProfileFetchFailed, "", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, auth.Fail(auth.CodeProfileFetchFailed, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, nil, auth.Fail(auth.CodeProfileFetchFailed, "", err)
	}
	if resp.StatusCode/100 != 2 {
		logger.Warn("userinfo request failed", map[string]any{
			"provider": p.name,
			"status":   resp.StatusCode,
		})
		return nil, nil, auth.Fail(auth.CodeProfileFetchFailed, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, nil, auth.Fail(auth.CodeProfileFetchFailed, "malformed response", err)
	}
	return &info, json.RawMessage(body), nil
}

func (p *Provider) verifyIDToken(ctx context.Context, token *oauth2.Token) (*oidc.IDToken, *idClaims, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, auth.Fail(auth.CodeUntrustedIssuer, "identity token missing", nil)
	}

	idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.client), rawIDToken)
	if err != nil {
		logger.Warn("id_token verification failed", map[string]any{
			"provider": p.name,
			"error":    err,
		})
		return nil, nil, auth.Fail(auth.CodeUntrustedIssuer, "", err)
	}

	if !slices.Contains(p.issuers, idToken.Issuer) {
		logger.Warn("id_token issuer not trusted", map[string]any{
			"provider": p.name,
			"issuer":   idToken.Issuer,
		})
		return nil, nil, auth.Fail(auth.CodeUntrustedIssuer, "", nil)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, auth.Fail(auth.CodeUntrustedIssuer, "", err)
	}
	return idToken, &claims, nil
}

func missingClaims(id *auth.Identity) string {
	var missing []string
	if id.ProviderUserID == "" {
		missing = append(missing, "subject")
	}
	if id.Email == "" {
		missing = append(missing, "email")
	}
	return "missing " + strings.Join(missing, " and ")
}
