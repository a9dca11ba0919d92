// Package proxy resolves the optional outbound proxy pool shared by both lanes.
package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config describes the proxy pool. A zero Config disables proxying.
type Config struct {
	Endpoint string   `mapstructure:"endpoint"`
	Group    string   `mapstructure:"group"`
	Region   string   `mapstructure:"region"`
	Password string   `mapstructure:"password"`
	URLs     []string `mapstructure:"urls"`
}

// Pool is an ordered list of proxy URLs.
type Pool struct {
	urls []*url.URL
}

// Credentials authenticate against a proxy that asks for them.
type Credentials struct {
	Username string
	Password string
}

// New builds a Pool. Explicit URLs win over endpoint/group credentials.
// It returns a nil Pool when the config is empty.
func New(cfg Config) (*Pool, error) {
	var raws []string
	for _, u := range cfg.URLs {
		if u = strings.TrimSpace(u); u != "" {
			raws = append(raws, u)
		}
	}
	if len(raws) == 0 && strings.TrimSpace(cfg.Endpoint) != "" {
		u, err := groupURL(cfg)
		if err != nil {
			return nil, err
		}
		raws = append(raws, u)
	}
	if len(raws) == 0 {
		return nil, nil
	}
	pool := &Pool{urls: make([]*url.URL, 0, len(raws))}
	for _, raw := range raws {
		u, err := parse(raw)
		if err != nil {
			return nil, err
		}
		pool.urls = append(pool.urls, u)
	}
	return pool, nil
}

// Enabled reports whether the pool has at least one proxy.
func (p *Pool) Enabled() bool {
	return p != nil && len(p.urls) > 0
}

// URLs returns every proxy URL with credentials, for the static lane's rotation.
func (p *Pool) URLs() []string {
	if !p.Enabled() {
		return nil
	}
	out := make([]string, 0, len(p.urls))
	for _, u := range p.urls {
		out = append(out, u.String())
	}
	return out
}

// Server returns the first proxy as a browser proxy-server value with its
// credentials split out. Browsers reject userinfo in the flag.
func (p *Pool) Server() (string, Credentials, bool) {
	if !p.Enabled() {
		return "", Credentials{}, false
	}
	u := *p.urls[0]
	var creds Credentials
	if u.User != nil {
		creds.Username = u.User.Username()
		creds.Password, _ = u.User.Password()
	}
	u.User = nil
	return u.Scheme + "://" + u.Host, creds, true
}

// Username builds the group-scoped proxy username.
func Username(group, region string) string {
	name := "groups-" + strings.TrimSpace(group)
	if region = strings.TrimSpace(region); region != "" {
		name += ",country-" + region
	}
	return name
}

func groupURL(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.Group) == "" {
		return "", errors.New("proxy group required with endpoint")
	}
	u, err := parse(cfg.Endpoint)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(Username(cfg.Group, cfg.Region), cfg.Password)
	return u.String(), nil
}

func parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", raw)
	}
	return u, nil
}
