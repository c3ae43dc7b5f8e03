// Package login drives the CLI side of the loopback OAuth flow.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/cli/callback"
	"webspec-auth/internal/cli/client"
	"webspec-auth/internal/cli/tokencache"
	"webspec-auth/internal/logger"

	"github.com/fatih/color"
)

type API interface {
	Health(ctx context.Context) error
	AuthorizationURL(ctx context.Context, redirectURI string) (*client.Authorization, error)
	Callback(ctx context.Context, req client.CallbackRequest) (*client.Login, error)
	Validate(ctx context.Context, token string) (*client.User, error)
	Logout(ctx context.Context, token string) error
}

type Options struct {
	Port         int
	Timeout      time.Duration
	PollInterval time.Duration
	Out          io.Writer
	// OpenBrowser is called with the authorization URL; nil only prints it.
	OpenBrowser func(url string) error
	Listen      callback.ListenFunc
}

type Driver struct {
	api   API
	cache *tokencache.Cache
	opts  Options
	out   printer
}

func New(api API, cache *tokencache.Cache, opts Options) *Driver {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Driver{api: api, cache: cache, opts: opts, out: printer{w: opts.Out}}
}

// Login returns the authenticated user, reusing a cached token when the
// backend still accepts it.
func (d *Driver) Login(ctx context.Context) (*client.User, error) {
	if err := d.api.Health(ctx); err != nil {
		return nil, fmt.Errorf("backend unavailable: %w", err)
	}

	if user, err := d.cached(ctx); err == nil {
		d.out.success("Already logged in as %s", user.Email)
		return user, nil
	}

	var listenerOpts []callback.Option
	if d.opts.Listen != nil {
		listenerOpts = append(listenerOpts, callback.WithListen(d.opts.Listen))
	}
	if d.opts.PollInterval > 0 {
		listenerOpts = append(listenerOpts, callback.WithPollInterval(d.opts.PollInterval))
	}

	listener := callback.New(d.opts.Port, listenerOpts...)
	if err := listener.Start(); err != nil {
		return nil, err
	}
	defer func() { _ = listener.Stop() }()

	redirectURI := listener.RedirectURI()
	d.out.info("Callback listener ready at %s", redirectURI)

	authz, err := d.api.AuthorizationURL(ctx, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("request authorization url: %w", err)
	}

	d.out.highlight("Open this URL in your browser to log in:")
	d.out.plain("%s", authz.AuthURL)
	if d.opts.OpenBrowser != nil {
		if err := d.opts.OpenBrowser(authz.AuthURL); err != nil {
			d.out.warn("Could not open a browser: %v", err)
		}
	}
	d.out.info("Waiting up to %s for the provider callback...", d.opts.Timeout)

	result, err := listener.Wait(ctx, d.opts.Timeout)
	if err != nil {
		return nil, err
	}

	logger.Debug("callback captured", map[string]any{
		"has_code":  result.Code() != "",
		"has_error": result.ProviderError() != "",
	})

	if e := result.ProviderError(); e != "" {
		detail := e
		if desc := result.ProviderErrorDescription(); desc != "" {
			detail += ": " + desc
		}
		return nil, auth.Fail(auth.CodeExchangeFailed, "provider returned "+detail, nil)
	}
	if result.State() != authz.State {
		return nil, auth.Fail(auth.CodeStateMismatch, "callback state does not match the issued one", nil)
	}
	if result.Code() == "" {
		return nil, auth.Fail(auth.CodeInvalidRequest, "callback carried no authorization code", nil)
	}

	login, err := d.api.Callback(ctx, client.CallbackRequest{
		Code:        result.Code(),
		State:       result.State(),
		RedirectURI: redirectURI,
		FlowID:      authz.FlowID,
	})
	if err != nil {
		return nil, err
	}

	if err := d.cache.Save(login.Token, login.User); err != nil {
		d.out.warn("Logged in, but the token could not be saved: %v", err)
	} else {
		d.out.info("Token saved to %s", d.cache.Path())
	}

	d.out.success("Logged in as %s", login.User.Email)
	return &login.User, nil
}

// Status validates the cached token against the backend.
func (d *Driver) Status(ctx context.Context) (*client.User, error) {
	user, err := d.cached(ctx)
	if err != nil {
		return nil, err
	}
	d.out.success("Logged in as %s (%s)", user.Email, user.Provider)
	return user, nil
}

// Logout revokes the cached token when possible and always clears the cache.
func (d *Driver) Logout(ctx context.Context) error {
	entry, err := d.cache.Load()
	if errors.Is(err, tokencache.ErrNoToken) {
		d.out.info("Not logged in")
		return nil
	}
	if err != nil {
		return err
	}

	if err := d.api.Logout(ctx, entry.Token); err != nil {
		d.out.warn("Server logout failed: %v", err)
	}
	if err := d.cache.Clear(); err != nil {
		return err
	}
	d.out.success("Logged out")
	return nil
}

// Reset forgets the cached token without contacting the backend.
func (d *Driver) Reset() error {
	if err := d.cache.Clear(); err != nil {
		return err
	}
	d.out.success("Token cache cleared")
	return nil
}

func (d *Driver) cached(ctx context.Context) (*client.User, error) {
	entry, err := d.cache.Load()
	if err != nil {
		return nil, err
	}
	user, err := d.api.Validate(ctx, entry.Token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			d.out.warn("Cached token is no longer valid")
		}
		return nil, err
	}
	return user, nil
}

type printer struct {
	w io.Writer
}

var (
	infoColor      = color.New(color.FgBlue)
	successColor   = color.New(color.FgGreen)
	warnColor      = color.New(color.FgYellow)
	highlightColor = color.New(color.FgBlue, color.Bold)
)

func (p printer) info(format string, args ...any) {
	_, _ = infoColor.Fprintf(p.w, format+"\n", args...)
}

func (p printer) success(format string, args ...any) {
	_, _ = successColor.Fprintf(p.w, format+"\n", args...)
}

func (p printer) warn(format string, args ...any) {
	_, _ = warnColor.Fprintf(p.w, format+"\n", args...)
}

func (p printer) highlight(format string, args ...any) {
	_, _ = highlightColor.Fprintf(p.w, format+"\n", args...)
}

func (p printer) plain(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}
