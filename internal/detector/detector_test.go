package detector

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

func TestInspectStatusWinsWithoutReading(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)
	reads := 0
	verdict := h.Inspect(context.Background(), http.StatusTooManyRequests, func(context.Context) (harvest.Snapshot, error) {
		reads++
		return harvest.Snapshot{}, nil
	})
	require.True(t, verdict.Blocked)
	require.Equal(t, "status 429", verdict.Reason)
	require.Zero(t, reads)

	verdict = h.Evaluate(http.StatusForbidden, harvest.Snapshot{})
	require.True(t, verdict.Blocked)
	require.Equal(t, "status 403", verdict.Reason)
}

func TestEvaluateRedirectMarker(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)
	verdict := h.Evaluate(http.StatusOK, harvest.Snapshot{
		URL:     "https://consent.youtube.com/m?continue=x",
		Content: "verify you are a human",
	})
	require.True(t, verdict.Blocked)
	require.Equal(t, "redirected to https://consent.youtube.com/m?continue=x", verdict.Reason)

	for _, u := range []string{
		"https://www.google.com/sorry/index?continue=x",
		"https://www.instagram.com/accounts/login/?next=/p/abc/",
		"https://www.instagram.com/challenge/?next=/",
		"https://www.facebook.com/checkpoint/block/",
		"https://example.com/cdn-cgi/challenge-platform/h/b/orchestrate",
	} {
		verdict = h.Evaluate(0, harvest.Snapshot{URL: u})
		require.True(t, verdict.Blocked, u)
		require.Equal(t, "redirected to "+u, verdict.Reason)
	}
}

func TestEvaluateMarkerNearMissesStayUnblocked(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)
	for _, u := range []string{
		"https://www.reddit.com/r/challenges/",
		"https://www.reddit.com/r/challenge/",
		"https://example.com/verify-your-domain-guide",
		"https://example.com/blog/consent-management-explained",
		"https://example.com/captcha-alternatives",
		"https://example.com/challenges/2024",
		"https://example.com/sorry-not-sorry",
		"https://nonconsent.example.com/a",
		"https://example.com/consent.html",
	} {
		verdict := h.Evaluate(http.StatusOK, harvest.Snapshot{URL: u, Content: "ordinary article text"})
		require.False(t, verdict.Blocked, u)
		require.Empty(t, verdict.Reason, u)
	}
}

func TestEvaluatePhrasesCaseInsensitive(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)
	for _, content := range []string{
		"Our systems have detected UNUSUAL TRAFFIC from your network",
		"Please Verify You Are A Human",
		"Complete the CAPTCHA below",
		"Sign in to continue to YouTube",
	} {
		verdict := h.Evaluate(http.StatusOK, harvest.Snapshot{URL: "https://www.youtube.com/watch?v=1", Content: content})
		require.True(t, verdict.Blocked, content)
		require.Equal(t, DetectionReason, verdict.Reason)
	}
}

func TestEvaluateCleanPage(t *testing.T) {
	t.Parallel()

	verdict := NewHeuristic(nil, nil).Evaluate(http.StatusOK, harvest.Snapshot{
		URL:     "https://example.com/blog/post1",
		Content: "A perfectly ordinary article about goroutines.",
	})
	require.False(t, verdict.Blocked)
	require.Empty(t, verdict.Reason)
}

func TestInspectFailsOpenOnReadError(t *testing.T) {
	t.Parallel()

	verdict := NewHeuristic(nil, nil).Inspect(context.Background(), http.StatusOK, func(context.Context) (harvest.Snapshot, error) {
		return harvest.Snapshot{Content: "captcha"}, errors.New("target closed")
	})
	require.False(t, verdict.Blocked)

	verdict = NewHeuristic(nil, nil).Inspect(context.Background(), http.StatusOK, nil)
	require.False(t, verdict.Blocked)
}

func TestCustomPhrases(t *testing.T) {
	t.Parallel()

	h := NewHeuristic([]string{"  Access Denied "}, []string{})
	require.True(t, h.Evaluate(0, harvest.Snapshot{Content: "access denied for you"}).Blocked)
	require.False(t, h.Evaluate(0, harvest.Snapshot{URL: "https://x.com/challenge", Content: "captcha"}).Blocked)
}
