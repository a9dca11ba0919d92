// Package extract applies per-platform selector heuristics to fetched HTML.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Post and comment selectors, most specific first.
var (
	aggregatorPostSelectors = []string{
		`a[data-click-id="body"]`,
		`shreddit-post a[slot="full-post-link"]`,
		`a[slot="title"]`,
		`p.title > a.title`,
		`span.titleline > a`,
	}
	aggregatorCommentSelectors = []string{
		`div[data-testid="comment"]`,
		`shreddit-comment div[slot="comment"]`,
		`.comment .usertext-body .md`,
		`.commtext`,
	}
	fallbackCommentSelectors = []string{
		`[itemprop="comment"] [itemprop="text"]`,
		`[itemprop="comment"]`,
		`.comment-content`,
		`.comment-body`,
		`.comments .comment`,
		`article.comment`,
	}
	genericPostSelector = "h1, h2, h3"
	noiseSelector       = "script, style, noscript, template, svg"
)

// Document is a parsed static page.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse builds a Document from a response body. base resolves relative links.
func Parse(body []byte, base *url.URL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc, base: base}, nil
}

// Title returns the title element text, else the first h1 text, else nil.
func (d *Document) Title() *string {
	title := FirstString(
		func() (string, error) { return Clean(d.doc.Find("title").First().Text()), nil },
		func() (string, error) { return Clean(d.doc.Find("h1").First().Text()), nil },
	)
	if title == "" {
		return nil
	}
	return &title
}

// Posts applies the platform post heuristic, capped at limit.
func (d *Document) Posts(platform harvest.Platform, limit int) []harvest.Post {
	var posts []harvest.Post
	switch platform {
	case harvest.PlatformAggregator:
		strategies := make([]Strategy[harvest.Post], 0, len(aggregatorPostSelectors))
		for _, sel := range aggregatorPostSelectors {
			strategies = append(strategies, func() ([]harvest.Post, error) {
				return d.linkPosts(sel, limit), nil
			})
		}
		posts = FirstOf(strategies...)
	default:
		posts = d.headingPosts(limit)
	}
	if posts == nil {
		return []harvest.Post{}
	}
	return posts
}

// Comments applies the platform comment heuristic and the platform-agnostic
// fallbacks, truncating each comment and capping the list.
func (d *Document) Comments(platform harvest.Platform, limits Limits) []harvest.Comment {
	selectors := fallbackCommentSelectors
	if platform == harvest.PlatformAggregator {
		selectors = append(append([]string{}, aggregatorCommentSelectors...), fallbackCommentSelectors...)
	}
	strategies := make([]Strategy[harvest.Comment], 0, len(selectors))
	for _, sel := range selectors {
		strategies = append(strategies, func() ([]harvest.Comment, error) {
			return d.comments(sel, limits), nil
		})
	}
	comments := FirstOf(strategies...)
	if comments == nil {
		return []harvest.Comment{}
	}
	return comments
}

// Links returns absolute http(s) hyperlink targets in document order, deduplicated.
func (d *Document) Links() []string {
	seen := make(map[string]struct{})
	var out []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := d.resolve(s.AttrOr("href", ""))
		if !ok {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	})
	return out
}

// Text returns the visible body text with scripts and styles removed.
func (d *Document) Text() string {
	body := d.doc.Find("body").First()
	if body.Length() == 0 {
		body = d.doc.Selection
	}
	clone := body.Clone()
	clone.Find(noiseSelector).Remove()
	return Clean(clone.Text())
}

func (d *Document) linkPosts(selector string, limit int) []harvest.Post {
	var posts []harvest.Post
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(posts) >= limit {
			return false
		}
		title := Clean(s.Text())
		if title == "" {
			title = Clean(s.AttrOr("aria-label", ""))
		}
		if title == "" {
			return true
		}
		post := harvest.Post{Title: title}
		if href, ok := d.resolve(s.AttrOr("href", "")); ok {
			post.URL = href
		}
		posts = append(posts, post)
		return true
	})
	return posts
}

func (d *Document) headingPosts(limit int) []harvest.Post {
	var posts []harvest.Post
	d.doc.Find(genericPostSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(posts) >= limit {
			return false
		}
		title := Clean(s.Text())
		if title == "" {
			return true
		}
		post := harvest.Post{Title: title}
		anchor := s.Find("a[href]").First()
		if anchor.Length() == 0 {
			anchor = s.Closest("a[href]")
		}
		if href, ok := d.resolve(anchor.AttrOr("href", "")); ok {
			post.URL = href
		}
		posts = append(posts, post)
		return true
	})
	return posts
}

func (d *Document) comments(selector string, limits Limits) []harvest.Comment {
	var out []harvest.Comment
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limits.MaxComments > 0 && len(out) >= limits.MaxComments {
			return false
		}
		text := Clean(s.Text())
		if text == "" {
			return true
		}
		out = append(out, harvest.Comment{Text: Truncate(text, limits.MaxCommentLength)})
		return true
	})
	return out
}

func (d *Document) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if d.base != nil {
		ref = d.base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}
