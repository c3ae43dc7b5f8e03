// Package callback runs the short-lived loopback HTTP listener that receives
// the provider redirect during a CLI login.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"webspec-auth/internal/auth"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	CallbackPath        = "/auth/callback"
)

type State int

const (
	Idle State = iota
	Listening
	ResultCaptured
	TimedOut
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case ResultCaptured:
		return "result_captured"
	case TimedOut:
		return "timed_out"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result holds the query parameters of the first inbound request.
type Result struct {
	Params url.Values
}

func (r *Result) Code() string  { return r.Params.Get("code") }
func (r *Result) State() string { return r.Params.Get("state") }

// ProviderError is the error parameter, e.g. access_denied.
func (r *Result) ProviderError() string { return r.Params.Get("error") }

func (r *Result) ProviderErrorDescription() string { return r.Params.Get("error_description") }

type ListenFunc func(network, address string) (net.Listener, error)

type Option func(*Listener)

// WithListen replaces net.Listen.
func WithListen(fn ListenFunc) Option {
	return func(l *Listener) { l.listen = fn }
}

func WithPollInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.poll = d
		}
	}
}

type Listener struct {
	addr   string
	listen ListenFunc
	poll   time.Duration

	mu     sync.Mutex
	state  State
	result *Result
	ln     net.Listener
	srv    *http.Server
	wg     sync.WaitGroup
}

// New prepares a listener on the loopback interface. Port 0 picks a free port.
func New(port int, opts ...Option) *Listener {
	l := &Listener{
		addr:   fmt.Sprintf("127.0.0.1:%d", port),
		listen: net.Listen,
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Port is the bound port, 0 before Start.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return 0
	}
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// RedirectURI is the callback address to register with the backend.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", l.Port(), CallbackPath)
}

// Start binds the socket and begins accepting requests in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return fmt.Errorf("callback: start in state %s", l.state)
	}

	ln, err := l.listen("tcp", l.addr)
	if err != nil {
		return auth.Fail(auth.CodeListenerBindFailed, l.addr, err)
	}

	l.ln = ln
	l.srv = &http.Server{
		Handler:           http.HandlerFunc(l.capture),
		ReadHeaderTimeout: 5 * time.Second,
	}
	l.state = Listening

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.srv.Serve(ln)
	}()

	return nil
}

func (l *Listener) capture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()

	l.mu.Lock()
	if l.state == Listening {
		l.result = &Result{Params: params}
		l.state = ResultCaptured
	}
	l.mu.Unlock()

	title, message := "Authentication complete", "You can close this window and return to the terminal."
	if e := params.Get("error"); e != "" {
		title, message = "Authentication failed", "The provider returned: "+e
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w,
		"<!doctype html><html><head><title>%s</title></head><body><h2>%s</h2><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message),
	)
}

// Wait polls for a captured result until timeout elapses or ctx is done.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (*Result, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		if res := l.captured(); res != nil {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if res := l.captured(); res != nil {
				return res, nil
			}
			l.mu.Lock()
			if l.state == Listening {
				l.state = TimedOut
			}
			l.mu.Unlock()
			return nil, auth.Fail(auth.CodeListenerTimeout, fmt.Sprintf("no callback within %s", timeout), nil)
		case <-ticker.C:
		}
	}
}

func (l *Listener) captured() *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != ResultCaptured {
		return nil
	}
	return l.result
}

// Stop closes the socket and joins the acceptor. Safe to call more than once.
func (l *Listener) Stop() error {
	l.mu.Lock()
	srv := l.srv
	if l.state == Stopped || srv == nil {
		l.state = Stopped
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = srv.Close()
	}
	l.wg.Wait()

	l.mu.Lock()
	l.state = Stopped
	l.mu.Unlock()

	return err
}
