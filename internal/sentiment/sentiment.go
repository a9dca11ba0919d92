// Package sentiment scores text with a small fixed lexicon and aggregates
// per-keyword mention statistics.
package sentiment

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// MaxKeywords caps the tracked keyword list.
const MaxKeywords = 25

var nonWord = regexp.MustCompile(`\W+`)

var positive = map[string]struct{}{
	"good":      {},
	"great":     {},
	"excellent": {},
	"love":      {},
	"like":      {},
	"awesome":   {},
	"happy":     {},
	"positive":  {},
	"best":      {},
}

var negative = map[string]struct{}{
	"bad":      {},
	"terrible": {},
	"hate":     {},
	"awful":    {},
	"angry":    {},
	"sad":      {},
	"negative": {},
	"worse":    {},
	"worst":    {},
}

// Score returns the lexicon polarity of text. Comparative is the score
// divided by max(1, word count). Empty text scores zero.
func Score(text string) harvest.Sentiment {
	if text == "" {
		return harvest.Sentiment{}
	}
	words := nonWord.Split(strings.ToLower(text), -1)
	score, count := 0, 0
	for _, w := range words {
		if w == "" {
			continue
		}
		count++
		if _, ok := positive[w]; ok {
			score++
		}
		if _, ok := negative[w]; ok {
			score--
		}
	}
	return harvest.Sentiment{
		Score:       score,
		Comparative: float64(score) / float64(max(1, count)),
	}
}

// Analyzer aggregates keyword statistics over extracted text units.
type Analyzer struct {
	keywords []string
	lowered  []string
}

// NewAnalyzer builds an Analyzer for the keyword list, trimmed, deduplicated
// case-insensitively and capped at MaxKeywords.
func NewAnalyzer(keywords []string) *Analyzer {
	a := &Analyzer{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lower := strings.ToLower(kw)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		a.keywords = append(a.keywords, kw)
		a.lowered = append(a.lowered, lower)
		if len(a.keywords) == MaxKeywords {
			break
		}
	}
	return a
}

// Keywords returns the effective tracked keywords.
func (a *Analyzer) Keywords() []string {
	return append([]string(nil), a.keywords...)
}

// KeywordStats scans each unit for case-insensitive substring matches. It
// returns nil when no keywords are configured. Keywords with no mentions are
// present with zero averages.
func (a *Analyzer) KeywordStats(units []string) map[string]harvest.KeywordStat {
	if a == nil || len(a.keywords) == 0 {
		return nil
	}
	type acc struct {
		mentions int
		scoreSum float64
		compSum  float64
	}
	sums := make([]acc, len(a.keywords))
	for _, unit := range units {
		if unit == "" {
			continue
		}
		lower := strings.ToLower(unit)
		var s *harvest.Sentiment
		for i, kw := range a.lowered {
			if !strings.Contains(lower, kw) {
				continue
			}
			if s == nil {
				scored := Score(unit)
				s = &scored
			}
			sums[i].mentions++
			sums[i].scoreSum += float64(s.Score)
			sums[i].compSum += s.Comparative
		}
	}
	out := make(map[string]harvest.KeywordStat, len(a.keywords))
	for i, kw := range a.keywords {
		stat := harvest.KeywordStat{Mentions: sums[i].mentions}
		if stat.Mentions > 0 {
			stat.AvgScore = sums[i].scoreSum / float64(stat.Mentions)
			stat.AvgComparative = sums[i].compSum / float64(stat.Mentions)
		}
		out[kw] = stat
	}
	return out
}
