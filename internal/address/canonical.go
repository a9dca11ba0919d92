// Package address canonicalizes, filters and classifies raw input addresses.
package address

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	errNotHTTP  = errors.New("not an http(s) address")
	errNoHost   = errors.New("missing host")
	errGarbage  = errors.New("known garbage destination")
	errNotShort = errors.New("short link without content id")
)

// trackingParams are dropped during canonicalization.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"si":      {},
	"feature": {},
	"igshid":  {},
	"ref_src": {},
}

// hostAliases folds alternate platform hosts onto one canonical host.
var hostAliases = map[string]string{
	"youtube.com":       "www.youtube.com",
	"m.youtube.com":     "www.youtube.com",
	"music.youtube.com": "www.youtube.com",
	"instagram.com":     "www.instagram.com",
	"m.instagram.com":   "www.instagram.com",
	"reddit.com":        "www.reddit.com",
	"old.reddit.com":    "www.reddit.com",
	"new.reddit.com":    "www.reddit.com",
	"np.reddit.com":     "www.reddit.com",
	"m.reddit.com":      "www.reddit.com",
}

// Canonicalize standardizes a URL so duplicates collapse to one key.
// It lowercases the scheme and host, removes default ports and fragments,
// expands short video links, drops tracking parameters and sorts the query.
// Canonicalize is idempotent.
func Canonicalize(raw string) (string, error) {
	u, err := parseHTTP(raw)
	if err != nil {
		return "", err
	}
	if err := canonicalizeURL(u); err != nil {
		return "", err
	}
	return u.String(), nil
}

func parseHTTP(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errNotHTTP
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errNotHTTP
	}
	if u.Hostname() == "" {
		return nil, errNoHost
	}
	return u, nil
}

func canonicalizeURL(u *url.URL) error {
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}

	if isShortVideoHost(host) {
		id := strings.Trim(u.EscapedPath(), "/")
		if id == "" || strings.Contains(id, "/") {
			return errNotShort
		}
		q := u.Query()
		q.Set("v", id)
		u.Scheme = "https"
		host = "www.youtube.com"
		port = ""
		u.Path = "/watch"
		u.RawPath = ""
		u.RawQuery = q.Encode()
	}
	if alias, ok := hostAliases[host]; ok {
		host = alias
	}
	if isPlatformHost(host) {
		u.Scheme = "https"
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	if u.Path == "" {
		u.Path = "/"
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false
	return nil
}

func isShortVideoHost(host string) bool {
	return host == "youtu.be" || host == "www.youtu.be"
}

func isPlatformHost(host string) bool {
	return isVideoHost(host) || isPhotoHost(host) || isAggregatorHost(host)
}
