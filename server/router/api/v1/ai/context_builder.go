package ai

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/ai/metrics"
	"github.com/driftchat/driftchat/ai/scrape"
	"github.com/driftchat/driftchat/ai/search"
	"github.com/driftchat/driftchat/store"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// BuiltContext is the assembled system context for one generation.
type BuiltContext struct {
	// System is the system-turn text. Empty means no system turn at
	// all; models must not receive an empty system message.
	System string
	// Citations are annotations to attach to the assistant message.
	Citations []store.Annotation
	// EnrichmentCostUsd sums the flat search and scrape charges.
	EnrichmentCostUsd float64
}

// ContextBuilder assembles the system context for a generation from
// memory, scraped URLs, search results, and rules. Every enrichment
// is best-effort: a failure is logged and its block omitted.
type ContextBuilder struct {
	store    *store.Store
	searcher *search.Searcher
	scraper  *scrape.Scraper
	memory   MemoryLoader
	metrics  *metrics.Exporter
}

// MemoryLoader fetches the user's condensed memory text.
type MemoryLoader interface {
	Load(ctx context.Context, userID int32) (string, error)
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(st *store.Store, searcher *search.Searcher, scraper *scrape.Scraper, memory MemoryLoader, exporter *metrics.Exporter) *ContextBuilder {
	return &ContextBuilder{
		store:    st,
		searcher: searcher,
		scraper:  scraper,
		memory:   memory,
		metrics:  exporter,
	}
}

func (b *ContextBuilder) recordEnrichment(kind string, err error) {
	if b.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.Enrichment(kind, status)
}

// BuildOptions carries the per-request enrichment switches.
type BuildOptions struct {
	UserID int32
	// UserMessage is the triggering message; it drives search, URL
	// scraping, and rule mentions.
	UserMessage string
	// History is the prior conversation, scanned for rule mentions.
	History []llm.Message
	// SearchMode is empty when search is not requested.
	SearchMode search.Mode
	// MemoryEnabled gates the memory block.
	MemoryEnabled bool
}

// Build assembles the system context. Block order is fixed: memory,
// scraped URLs, search results, rules.
func (b *ContextBuilder) Build(ctx context.Context, opts *BuildOptions) *BuiltContext {
	built := &BuiltContext{}
	blocks := []string{}

	if opts.MemoryEnabled && b.memory != nil {
		memoryText, err := b.memory.Load(ctx, opts.UserID)
		b.recordEnrichment("memory", err)
		if err != nil {
			slog.Warn("memory load failed, continuing without", "user_id", opts.UserID, "error", err)
		} else if memoryText != "" {
			blocks = append(blocks, "What you remember about this user:\n"+memoryText)
		}
	}

	if b.scraper != nil {
		if urls := scrape.ExtractURLs(opts.UserMessage); len(urls) > 0 {
			result := b.scraper.ScrapeAll(ctx, urls)
			b.recordEnrichment("scrape", nil)
			if result.Context != "" {
				blocks = append(blocks, result.Context)
				built.EnrichmentCostUsd += result.CostUsd
			}
		}
	}

	if opts.SearchMode != "" && b.searcher != nil && b.searcher.Enabled() {
		result, err := b.searcher.Search(ctx, opts.UserMessage, opts.SearchMode)
		b.recordEnrichment("search", err)
		if err != nil {
			slog.Warn("web search failed, continuing without", "mode", opts.SearchMode, "error", err)
		} else {
			if result.Context != "" {
				blocks = append(blocks, result.Context)
				built.Citations = append(built.Citations, result.Citations...)
			}
			built.EnrichmentCostUsd += result.CostUsd
		}
	}

	if rulesBlock := b.buildRulesBlock(ctx, opts); rulesBlock != "" {
		blocks = append(blocks, rulesBlock)
	}

	built.System = strings.TrimSpace(strings.Join(blocks, "\n\n"))
	return built
}

// buildRulesBlock collects always-attached rules plus rules mentioned
// with an @name token anywhere in the history, deduplicated by id.
func (b *ContextBuilder) buildRulesBlock(ctx context.Context, opts *BuildOptions) string {
	alwaysAttach := true
	rules, err := b.store.ListRules(ctx, &store.FindRule{
		CreatorID:    &opts.UserID,
		AlwaysAttach: &alwaysAttach,
	})
	if err != nil {
		slog.Warn("rule listing failed, continuing without", "user_id", opts.UserID, "error", err)
		return ""
	}

	included := map[int32]bool{}
	for _, rule := range rules {
		included[rule.ID] = true
	}

	for _, name := range extractMentions(opts.UserMessage, opts.History) {
		found, err := b.store.ListRules(ctx, &store.FindRule{
			CreatorID: &opts.UserID,
			Name:      &name,
		})
		if err != nil {
			slog.Warn("rule lookup failed", "name", name, "error", err)
			continue
		}
		for _, rule := range found {
			if included[rule.ID] {
				continue
			}
			included[rule.ID] = true
			rules = append(rules, rule)
		}
	}

	if len(rules) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Rules to follow:\n")
	for _, rule := range rules {
		sb.WriteString("- ")
		sb.WriteString(rule.Name)
		sb.WriteString(": ")
		sb.WriteString(rule.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// extractMentions returns @name tokens from the triggering message and
// all history turns, deduplicated in order of first appearance.
func extractMentions(userMessage string, history []llm.Message) []string {
	seen := map[string]bool{}
	names := []string{}
	collect := func(text string) {
		for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
			name := match[1]
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, turn := range history {
		collect(turn.Content)
	}
	collect(userMessage)
	return names
}
