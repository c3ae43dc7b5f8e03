package auth

import (
	"net"
	"net/url"
	"slices"
)

// RedirectAllowList is the fixed set of callback URIs registered with the
// identity provider. Matching is exact.
type RedirectAllowList struct {
	uris []string
}

func NewRedirectAllowList(uris ...string) RedirectAllowList {
	return RedirectAllowList{uris: slices.Clone(uris)}
}

// IsTrusted reports whether uri exactly matches an entry.
func (a RedirectAllowList) IsTrusted(uri string) bool {
	return uri != "" && slices.Contains(a.uris, uri)
}

// Check returns ErrUntrustedRedirect for untrusted URIs.
func (a RedirectAllowList) Check(uri string) error {
	if !a.IsTrusted(uri) {
		return Fail(CodeUntrustedRedirect, uri, nil)
	}
	return nil
}

// URIs returns a copy of the allow-listed URIs.
func (a RedirectAllowList) URIs() []string {
	return slices.Clone(a.uris)
}

// IsLoopback reports whether uri points at a local listener (CLI flows).
func IsLoopback(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
