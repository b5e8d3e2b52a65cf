package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/codechat/internal/chat"
)

// FormatAnswer renders an answer with its sources and follow-up questions as
// markdown.
func FormatAnswer(resp *chat.Response) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(resp.Answer))
	sb.WriteString("\n\n")

	if len(resp.Sources) > 0 {
		sb.WriteString("## Sources\n\n")
		for i, src := range resp.Sources {
			fmt.Fprintf(&sb, "%d. `%s` (score: %.2f)\n", i+1, src.FilePath, src.Score)
		}
		sb.WriteString("\n")
	}

	if len(resp.FollowUpQuestions) > 0 {
		sb.WriteString("## Follow-up questions\n\n")
		for _, q := range resp.FollowUpQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
		sb.WriteString("\n")
	}

	if resp.FromCache {
		sb.WriteString("_Served from cache._\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatSources renders search results as markdown code blocks.
func FormatSources(query string, sources []chat.Source) string {
	if len(sources) == 0 {
		return fmt.Sprintf("No code found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Code Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(sources))
	if len(sources) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, src := range sources {
		formatSource(&sb, i+1, src)
	}
	return sb.String()
}

func formatSource(sb *strings.Builder, num int, src chat.Source) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, src.FilePath, src.Score)
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", FenceLanguage(src.FilePath), src.CodeSnippet)
}

// FormatStatus renders index_status output as a short markdown summary.
func FormatStatus(out *IndexStatusOutput) string {
	if out == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (%s)\n\n", out.Project.Name, out.Project.Type)
	fmt.Fprintf(&sb, "- **Status:** %s\n", out.Status)
	fmt.Fprintf(&sb, "- **Index:** %d files, %d chunks (version `%s`)\n",
		out.Index.Files, out.Index.Chunks, out.Index.Version)
	if out.Index.BuiltAt != "" {
		fmt.Fprintf(&sb, "- **Built:** %s\n", out.Index.BuiltAt)
	}
	fmt.Fprintf(&sb, "- **Synthesizer:** %s", out.Synthesizer.Name)
	if !out.Synthesizer.Available {
		sb.WriteString(" (unavailable)")
	}
	if out.Synthesizer.Circuit != "" {
		fmt.Fprintf(&sb, ", circuit %s", out.Synthesizer.Circuit)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Cache:** %d/%d entries, %d hits, %d misses\n",
		out.Cache.Size, out.Cache.Capacity, out.Cache.Hits, out.Cache.Misses)
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
