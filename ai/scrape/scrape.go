// Package scrape turns URLs mentioned in a user message into context
// text. A failed fetch skips that URL; scraping never fails the
// generation it enriches.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// CostPerScrapeUsd is the flat price charged per successfully scraped
// URL.
const CostPerScrapeUsd = 0.002

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 1 << 20

// maxExtractRunes bounds how much extracted text joins the context.
const maxExtractRunes = 8000

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs returns the deduplicated URLs found in text, in order of
// first appearance.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := map[string]bool{}
	urls := []string{}
	for _, match := range matches {
		match = strings.TrimRight(match, ".,;:!?")
		if seen[match] {
			continue
		}
		seen[match] = true
		urls = append(urls, match)
	}
	return urls
}

// Result is the outcome of scraping one message's URLs.
type Result struct {
	// Context is a formatted block ready to join the system prompt.
	Context string
	// Scraped counts the URLs fetched successfully.
	Scraped int
	// CostUsd is Scraped times the per-scrape price.
	CostUsd float64
}

// Scraper fetches pages and extracts their readable text.
type Scraper struct {
	httpClient *http.Client
}

// NewScraper builds a scraper. proxyURL, when set, routes all fetches
// through the given HTTP proxy.
func NewScraper(proxyURL string) *Scraper {
	transport := &http.Transport{}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		} else {
			slog.Warn("invalid scrape proxy url, proxy disabled", "error", err)
		}
	}
	return &Scraper{
		httpClient: &http.Client{
			Timeout:   20 * time.Second,
			Transport: transport,
		},
	}
}

// ScrapeAll fetches every URL and assembles their text into one context
// block. URLs that fail are logged and skipped.
func (s *Scraper) ScrapeAll(ctx context.Context, urls []string) *Result {
	result := &Result{}
	var sb strings.Builder

	for _, target := range urls {
		text, err := s.scrapeOne(ctx, target)
		if err != nil {
			slog.Warn("scrape failed, skipping url", "url", target, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "Content of %s:\n%s\n\n", target, text)
		result.Scraped++
	}

	if result.Scraped > 0 {
		result.Context = strings.TrimSpace(sb.String())
		result.CostUsd = float64(result.Scraped) * CostPerScrapeUsd
	}
	return result
}

func (s *Scraper) scrapeOne(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; driftchat/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if strings.Contains(contentType, "text/plain") {
		return truncateRunes(strings.TrimSpace(string(body)), maxExtractRunes), nil
	}
	return truncateRunes(extractText(string(body)), maxExtractRunes), nil
}

// extractText walks the HTML tree collecting visible text, skipping
// script and style subtrees.
func extractText(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
