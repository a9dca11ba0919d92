package headless

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/app.js"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429, URL: "https://www.youtube.com/watch?v=1"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://www.youtube.com/embed/frame"},
	})
	status, url := meta.snapshot()
	require.Equal(t, 429, status)
	require.Equal(t, "https://www.youtube.com/watch?v=1", url)

	meta.reset()
	status, url = meta.snapshot()
	require.Zero(t, status)
	require.Empty(t, url)
}

func TestInterceptPatterns(t *testing.T) {
	t.Parallel()

	patterns := interceptPatterns(false)
	require.Len(t, patterns, 3)
	for _, p := range patterns {
		_, blocked := blockedResourceTypes[p.ResourceType]
		require.True(t, blocked, p.ResourceType)
		require.Equal(t, fetch.RequestStageRequest, p.RequestStage)
	}

	patterns = interceptPatterns(true)
	require.Len(t, patterns, 1)
	require.Empty(t, patterns[0].ResourceType)
}

func TestScriptsEmbedSelectorAsJSON(t *testing.T) {
	t.Parallel()

	sel := `a[href*="/watch"], "quoted"`
	script, err := textsScript(sel, 20)
	require.NoError(t, err)
	encoded, err := json.Marshal(sel)
	require.NoError(t, err)
	require.Contains(t, script, "document.querySelectorAll("+string(encoded)+")")
	require.Contains(t, script, "20 > 0 && out.length >= 20")

	script, err = linksScript("a#video-title", 0)
	require.NoError(t, err)
	require.True(t, strings.Contains(script, `"a#video-title"`))
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()
	require.Eventually(t, func() bool { return child.Err() != nil }, time.Second, 10*time.Millisecond)
}

func TestPageWaitHonorsContext(t *testing.T) {
	t.Parallel()

	tab, cancelTab := context.WithCancel(context.Background())
	defer cancelTab()
	p := &Page{tabCtx: tab, cancel: cancelTab}

	require.NoError(t, p.Wait(context.Background(), 0))
	require.NoError(t, p.Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx, time.Minute), context.Canceled)
}
