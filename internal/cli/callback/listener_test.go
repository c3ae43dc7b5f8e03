package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"webspec-auth/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, l *Listener, query string) string {
	t.Helper()
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(l.Port()) + CallbackPath + "?" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func TestCapturesFirstRequest(t *testing.T) {
	l := New(0, WithPollInterval(10*time.Millisecond))
	assert.Equal(t, Idle, l.State())
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })

	assert.Equal(t, Listening, l.State())
	assert.NotZero(t, l.Port())
	assert.Contains(t, l.RedirectURI(), "http://localhost:")

	page := get(t, l, "code=abc&state=s1")
	assert.Contains(t, page, "Authentication complete")

	// one-shot
	get(t, l, "code=other&state=s2")

	res, err := l.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Code())
	assert.Equal(t, "s1", res.State())
	assert.Equal(t, ResultCaptured, l.State())
}

func TestCapturesProviderError(t *testing.T) {
	l := New(0, WithPollInterval(10*time.Millisecond))
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })

	page := get(t, l, "error=access_denied&state=s1")
	assert.Contains(t, page, "Authentication failed")

	res, err := l.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", res.ProviderError())
	assert.Empty(t, res.Code())
}

func TestWaitTimesOut(t *testing.T) {
	l := New(0, WithPollInterval(10*time.Millisecond))
	require.NoError(t, l.Start())

	start := time.Now()
	_, err := l.Wait(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, auth.ErrListenerTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, TimedOut, l.State())

	require.NoError(t, l.Stop())
	assert.Equal(t, Stopped, l.State())
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0, WithPollInterval(10*time.Millisecond))
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStopReleasesPort(t *testing.T) {
	for i := 0; i < 3; i++ {
		first := New(0)
		require.NoError(t, first.Start())
		port := first.Port()
		require.NoError(t, first.Stop())
		require.NoError(t, first.Stop())

		again := New(port)
		require.NoError(t, again.Start(), "port %d still bound", port)
		require.NoError(t, again.Stop())
	}
}

func TestBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	l := New(busy.Addr().(*net.TCPAddr).Port)
	err = l.Start()
	assert.ErrorIs(t, err, auth.ErrListenerBindFailed)
	assert.Equal(t, Idle, l.State())
	require.NoError(t, l.Stop())

	injected := New(8888, WithListen(func(string, string) (net.Listener, error) {
		return nil, errors.New("permission denied")
	}))
	assert.ErrorIs(t, injected.Start(), auth.ErrListenerBindFailed)
}

func TestStartTwice(t *testing.T) {
	l := New(0)
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })
	assert.Error(t, l.Start())
}
