package address

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Normalizer turns raw seed items into canonical, classified addresses.
type Normalizer struct {
	allow  map[harvest.Platform]struct{}
	logger *zap.Logger
}

// NewNormalizer builds a Normalizer. An empty allow-list admits every platform.
func NewNormalizer(allow []harvest.Platform, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{logger: logger}
	if len(allow) > 0 {
		n.allow = make(map[harvest.Platform]struct{}, len(allow))
		for _, p := range allow {
			n.allow[p] = struct{}{}
		}
	}
	return n
}

// Normalize extracts, validates, canonicalizes, classifies and deduplicates
// seed items, preserving first-seen order. Items may be bare strings or
// {url: string} shapes; anything else is dropped. An empty result is
// harvest.ErrInvalidInput.
func (n *Normalizer) Normalize(items []any) ([]harvest.Address, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]harvest.Address, 0, len(items))
	for _, item := range items {
		raw, ok := ExtractString(item)
		if !ok {
			n.logger.Debug("dropping unrecognized seed shape", zap.String("type", fmt.Sprintf("%T", item)))
			continue
		}
		addr, err := n.Admit(raw)
		if err != nil {
			n.logger.Debug("dropping seed", zap.String("raw", raw), zap.Error(err))
			continue
		}
		if _, dup := seen[addr.Canonical]; dup {
			continue
		}
		seen[addr.Canonical] = struct{}{}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid addresses after normalization (%d items given)", harvest.ErrInvalidInput, len(items))
	}
	return out, nil
}

// Admit validates, canonicalizes and classifies a single raw address and
// applies the platform allow-list.
func (n *Normalizer) Admit(raw string) (harvest.Address, error) {
	u, err := parseHTTP(raw)
	if err != nil {
		return harvest.Address{}, err
	}
	if isGarbage(u) {
		return harvest.Address{}, errGarbage
	}
	if err := canonicalizeURL(u); err != nil {
		return harvest.Address{}, err
	}
	if isGarbage(u) {
		return harvest.Address{}, errGarbage
	}
	platform := Classify(u)
	if !n.Allowed(platform) {
		return harvest.Address{}, fmt.Errorf("platform %s not in allow-list", platform)
	}
	return harvest.Address{
		Raw:       strings.TrimSpace(raw),
		Canonical: u.String(),
		Platform:  platform,
	}, nil
}

// Allowed reports whether platform passes the allow-list.
func (n *Normalizer) Allowed(platform harvest.Platform) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[platform]
	return ok
}

// ExtractString pulls the address string out of a seed item.
func ExtractString(item any) (string, bool) {
	switch v := item.(type) {
	case string:
		return v, true
	case *url.URL:
		if v == nil {
			return "", false
		}
		return v.String(), true
	case map[string]any:
		s, ok := v["url"].(string)
		return s, ok
	case map[string]string:
		s, ok := v["url"]
		return s, ok
	case map[any]any:
		s, ok := v["url"].(string)
		return s, ok
	default:
		return "", false
	}
}

// Tracker is the run-wide set of canonical addresses already admitted.
type Tracker struct {
	seen sync.Map
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkIfNew stores the canonical address if it has not been seen and returns true.
func (t *Tracker) MarkIfNew(canonical string) bool {
	if canonical == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(canonical, struct{}{})
	return !loaded
}

// Seen reports whether the canonical address has been stored.
func (t *Tracker) Seen(canonical string) bool {
	_, ok := t.seen.Load(canonical)
	return ok
}
