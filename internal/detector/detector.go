// Package detector recognizes anti-bot challenges in fetch and render results.
package detector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// DetectionReason is the reason reported for content-level challenges.
const DetectionReason = "bot challenge detected in page content"

// DefaultPhrases are the case-insensitive challenge phrases checked in rendered content.
var DefaultPhrases = []string{
	"unusual traffic",
	"verify you are a human",
	"verify that you are a human",
	"captcha",
	"sign in to continue",
	"are you a robot",
	"not a robot",
	"checking your browser",
}

// DefaultMarkers identify challenge, consent or verification addresses. A
// marker ending in "." matches the first host label ("consent." matches
// consent.youtube.com); any other marker matches the leading whole path
// segments ("/sorry/" matches /sorry/index but not /sorry-state).
var DefaultMarkers = []string{
	"consent.",
	"/sorry/",
	"/consent",
	"/challenge",
	"/checkpoint",
	"/accounts/login",
	"/cdn-cgi/challenge-platform",
}

// Heuristic implements ordered block rules: status, redirect marker, phrase.
type Heuristic struct {
	phrases []string
	markers []string
}

// NewHeuristic creates a detector. Nil lists fall back to the defaults.
func NewHeuristic(phrases, markers []string) *Heuristic {
	if phrases == nil {
		phrases = DefaultPhrases
	}
	if markers == nil {
		markers = DefaultMarkers
	}
	return &Heuristic{
		phrases: lowerAll(phrases),
		markers: lowerAll(markers),
	}
}

// SnapshotFunc reads the current page state. It may fail.
type SnapshotFunc func(ctx context.Context) (harvest.Snapshot, error)

// Inspect applies the rules in order, first match wins. The status rule needs
// no page read. A failing snapshot read yields "not blocked".
func (h *Heuristic) Inspect(ctx context.Context, status int, read SnapshotFunc) harvest.BlockVerdict {
	if v, ok := statusVerdict(status); ok {
		return v
	}
	if read == nil {
		return harvest.BlockVerdict{}
	}
	snap, err := read(ctx)
	if err != nil {
		return harvest.BlockVerdict{}
	}
	return h.Evaluate(0, snap)
}

// Evaluate applies the rules to an already captured snapshot.
func (h *Heuristic) Evaluate(status int, snap harvest.Snapshot) harvest.BlockVerdict {
	if v, ok := statusVerdict(status); ok {
		return v
	}
	if h.challengeAddress(snap.URL) {
		return harvest.BlockVerdict{Blocked: true, Reason: "redirected to " + snap.URL}
	}
	if snap.Content == "" {
		return harvest.BlockVerdict{}
	}
	lowerContent := strings.ToLower(snap.Content)
	for _, phrase := range h.phrases {
		if phrase != "" && strings.Contains(lowerContent, phrase) {
			return harvest.BlockVerdict{Blocked: true, Reason: DetectionReason}
		}
	}
	return harvest.BlockVerdict{}
}

func (h *Heuristic) challengeAddress(rawURL string) bool {
	if rawURL == "" || len(h.markers) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := pathSegments(u.Path)
	for _, marker := range h.markers {
		if label, ok := strings.CutSuffix(marker, "."); ok {
			if first, _, _ := strings.Cut(host, "."); first == label && strings.Contains(host, ".") {
				return true
			}
			continue
		}
		if hasSegmentPrefix(path, pathSegments(marker)) {
			return true
		}
	}
	return false
}

func pathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(strings.ToLower(p), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func hasSegmentPrefix(path, prefix []string) bool {
	if len(prefix) == 0 || len(path) < len(prefix) {
		return false
	}
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}

// IsBlockedStatus reports whether a status code is a block signature.
func IsBlockedStatus(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

func statusVerdict(status int) (harvest.BlockVerdict, bool) {
	if !IsBlockedStatus(status) {
		return harvest.BlockVerdict{}, false
	}
	return harvest.BlockVerdict{Blocked: true, Reason: fmt.Sprintf("status %d", status)}, true
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
