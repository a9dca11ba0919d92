package address

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// garbageHosts are destinations that never carry harvestable content.
var garbageHosts = newHostMatcher([]string{
	"accounts.google.com",
	"support.google.com",
	"policies.google.com",
	"consent.youtube.com",
	"consent.google.com",
	"tv.youtube.com",
	"help.instagram.com",
	"about.instagram.com",
	"*.facebook.com",
	"support.reddithelp.com",
	"*.redditinc.com",
	"redditinc.com",
	"accounts.reddit.com",
})

// reservedPhotoSegments are first path segments on the photo host that are not profiles.
var reservedPhotoSegments = map[string]struct{}{
	"accounts":  {},
	"explore":   {},
	"about":     {},
	"legal":     {},
	"developer": {},
	"direct":    {},
	"challenge": {},
	"web":       {},
	"emails":    {},
	"privacy":   {},
	"directory": {},
	"session":   {},
	"static":    {},
	"api":       {},
	"graphql":   {},
	"ajax":      {},
	"oauth":     {},
	"lite":      {},
	"reels":     {},
	"stories":   {},
	"topics":    {},
	"locations": {},
	"nametag":   {},
	"press":     {},
	"sitemap":   {},
}

// videoPathPrefixes are the content paths recognized on the video host.
var videoPathPrefixes = []string{"/watch", "/shorts/", "/channel/", "/user/", "/c/", "/@", "/live/"}

// photoPathPrefixes are the content paths recognized on the photo host.
var photoPathPrefixes = []string{"/p/", "/reel/", "/tv/"}

func isVideoHost(host string) bool {
	return host == "www.youtube.com" || host == "youtube.com" || host == "m.youtube.com"
}

func isPhotoHost(host string) bool {
	return host == "www.instagram.com" || host == "instagram.com" || host == "m.instagram.com"
}

func isAggregatorHost(host string) bool {
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com") || host == "news.ycombinator.com"
}

// Classify tags a canonical URL with its platform.
func Classify(u *url.URL) harvest.Platform {
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	switch {
	case isAggregatorHost(host):
		return harvest.PlatformAggregator
	case isVideoHost(host):
		if hasAnyPrefix(path, videoPathPrefixes) {
			return harvest.PlatformVideo
		}
	case isPhotoHost(host):
		if hasAnyPrefix(path, photoPathPrefixes) || isPhotoProfile(path) {
			return harvest.PlatformPhoto
		}
	}
	return harvest.PlatformGeneric
}

// IsChannelPath reports whether a video-host path already is an owner listing.
func IsChannelPath(path string) bool {
	for _, prefix := range []string{"/channel/", "/user/", "/c/", "/@"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// isGarbage rejects support/auth hosts and bare platform homepages.
func isGarbage(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if garbageHosts.matches(host) {
		return true
	}
	if !isPlatformHost(host) || host == "news.ycombinator.com" {
		return false
	}
	path := strings.Trim(u.EscapedPath(), "/")
	if path == "" {
		return true
	}
	if isPhotoHost(host) {
		first := strings.SplitN(path, "/", 2)[0]
		if first == "accounts" || first == "challenge" {
			return true
		}
	}
	if isVideoHost(host) {
		return strings.HasPrefix(path, "signin") || strings.HasPrefix(path, "login") || strings.HasPrefix(path, "account")
	}
	if isAggregatorHost(host) {
		return strings.HasPrefix(path, "login") || strings.HasPrefix(path, "register")
	}
	return false
}

func isPhotoProfile(path string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 1 || segments[0] == "" {
		return false
	}
	_, reserved := reservedPhotoSegments[strings.ToLower(segments[0])]
	return !reserved
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// hostMatcher stores exact hosts and suffix wildcards.
type hostMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostMatcher(patterns []string) *hostMatcher {
	m := &hostMatcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "*."):
			m.suffixes = append(m.suffixes, strings.TrimPrefix(value, "*."))
		default:
			m.exact[value] = struct{}{}
		}
	}
	return m
}

func (m *hostMatcher) matches(host string) bool {
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
