package login

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/cli/client"
	"webspec-auth/internal/cli/tokencache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI plays both the backend and the browser: handing out an
// authorization URL makes it hit the redirect URI with browserQuery.
type fakeAPI struct {
	mu           sync.Mutex
	healthErr    error
	validToken   string
	browserQuery func(state string) url.Values
	callbacks    []client.CallbackRequest
	logouts      []string
	redirectURI  string
}

func (f *fakeAPI) Health(context.Context) error { return f.healthErr }

func (f *fakeAPI) AuthorizationURL(_ context.Context, redirectURI string) (*client.Authorization, error) {
	f.mu.Lock()
	f.redirectURI = redirectURI
	f.mu.Unlock()

	if f.browserQuery != nil {
		target := strings.Replace(redirectURI, "localhost", "127.0.0.1", 1) + "?" + f.browserQuery("state-1").Encode()
		go func() {
			resp, err := http.Get(target)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	return &client.Authorization{AuthURL: "https://idp.example/auth?state=state-1", State: "state-1", FlowID: "flow-1"}, nil
}

func (f *fakeAPI) Callback(_ context.Context, req client.CallbackRequest) (*client.Login, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, req)
	f.validToken = "tok-new"
	return &client.Login{Token: "tok-new", User: client.User{ID: "u1", Email: "u@x.com", Provider: "google"}}, nil
}

func (f *fakeAPI) Validate(_ context.Context, token string) (*client.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" || token != f.validToken {
		return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Code: auth.CodeUnauthenticated}
	}
	return &client.User{ID: "u1", Email: "u@x.com", Provider: "google"}, nil
}

func (f *fakeAPI) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, token)
	return nil
}

func newDriver(t *testing.T, api *fakeAPI) (*Driver, *tokencache.Cache, *bytes.Buffer) {
	t.Helper()
	cache := tokencache.New(filepath.Join(t.TempDir(), tokencache.DefaultFileName))
	out := &bytes.Buffer{}
	d := New(api, cache, Options{
		Port:         0,
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		Out:          out,
	})
	return d, cache, out
}

func TestLoginFlow(t *testing.T) {
	api := &fakeAPI{browserQuery: func(state string) url.Values {
		return url.Values{"code": {"abc"}, "state": {state}}
	}}
	d, cache, out := newDriver(t, api)

	user, err := d.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", user.Email)

	require.Len(t, api.callbacks, 1)
	got := api.callbacks[0]
	assert.Equal(t, "abc", got.Code)
	assert.Equal(t, "state-1", got.State)
	assert.Equal(t, "flow-1", got.FlowID)
	assert.Equal(t, api.redirectURI, got.RedirectURI)
	assert.True(t, strings.HasSuffix(got.RedirectURI, "/auth/callback"))

	entry, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-new", entry.Token)
	assert.Contains(t, out.String(), "https://idp.example/auth?state=state-1")

	// the listener port is released after the flow
	u, err := url.Parse(got.RedirectURI)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:"+u.Port())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

func TestLoginReusesValidCachedToken(t *testing.T) {
	api := &fakeAPI{validToken: "tok-cached"}
	d, cache, out := newDriver(t, api)
	require.NoError(t, cache.Save("tok-cached", client.User{Email: "u@x.com"}))

	user, err := d.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", user.Email)
	assert.Empty(t, api.callbacks)
	assert.Contains(t, out.String(), "Already logged in")
}

func TestLoginRejectsForeignState(t *testing.T) {
	api := &fakeAPI{browserQuery: func(string) url.Values {
		return url.Values{"code": {"abc"}, "state": {"forged"}}
	}}
	d, _, _ := newDriver(t, api)

	_, err := d.Login(context.Background())
	assert.ErrorIs(t, err, auth.ErrStateMismatch)
	assert.Empty(t, api.callbacks)
}

func TestLoginReportsProviderError(t *testing.T) {
	api := &fakeAPI{browserQuery: func(state string) url.Values {
		return url.Values{"error": {"access_denied"}, "state": {state}}
	}}
	d, _, _ := newDriver(t, api)

	_, err := d.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
	assert.Empty(t, api.callbacks)
}

func TestLoginTimesOut(t *testing.T) {
	api := &fakeAPI{}
	d, _, _ := newDriver(t, api)
	d.opts.Timeout = 50 * time.Millisecond

	_, err := d.Login(context.Background())
	assert.ErrorIs(t, err, auth.ErrListenerTimeout)
}

func TestLoginBackendDown(t *testing.T) {
	api := &fakeAPI{healthErr: errors.New("connection refused")}
	d, _, _ := newDriver(t, api)

	_, err := d.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestLoginBindFailure(t *testing.T) {
	api := &fakeAPI{}
	d, _, _ := newDriver(t, api)
	d.opts.Listen = func(string, string) (net.Listener, error) { return nil, errors.New("in use") }

	_, err := d.Login(context.Background())
	assert.ErrorIs(t, err, auth.ErrListenerBindFailed)
}

func TestStatusLogoutReset(t *testing.T) {
	api := &fakeAPI{validToken: "tok"}
	d, cache, _ := newDriver(t, api)

	_, err := d.Status(context.Background())
	assert.ErrorIs(t, err, tokencache.ErrNoToken)

	require.NoError(t, cache.Save("tok", client.User{Email: "u@x.com"}))
	user, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", user.Email)

	require.NoError(t, d.Logout(context.Background()))
	assert.Equal(t, []string{"tok"}, api.logouts)
	_, err = cache.Load()
	assert.ErrorIs(t, err, tokencache.ErrNoToken)

	// nothing cached
	require.NoError(t, d.Logout(context.Background()))
	assert.Len(t, api.logouts, 1)

	require.NoError(t, cache.Save("tok", client.User{}))
	require.NoError(t, d.Reset())
	_, err = cache.Load()
	assert.ErrorIs(t, err, tokencache.ErrNoToken)
}
