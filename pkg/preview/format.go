// Package preview provides an interactive search result browser using Bubble Tea TUI.
package preview

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// wrapText wraps text to the specified width, breaking at word boundaries when possible
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 70
	}

	var result strings.Builder
	var line strings.Builder
	lineLen := 0

	words := strings.Fields(text)
	for i, word := range words {
		wordLen := len([]rune(word))

		// If adding this word would exceed width, start a new line
		if lineLen > 0 && lineLen+1+wordLen > width {
			result.WriteString(line.String())
			result.WriteString("\n")
			line.Reset()
			lineLen = 0
		}

		if lineLen > 0 {
			line.WriteString(" ")
			lineLen++
		}

		line.WriteString(word)
		lineLen += wordLen

		if i == len(words)-1 {
			result.WriteString(line.String())
		}
	}

	return result.String()
}

// truncate shortens s to max runes, marking the cut with "..."
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// FormatCompactListItem formats a single result in compact list format
// Example: " 1. [VIDEO] ★ 2024-01-01 12:00:00  Funny cat compilation"
func FormatCompactListItem(index int, item searchtypes.SearchResult) string {
	star := " "
	if item.IsFavorite {
		star = "★"
	}

	const maxTitleLength = 70
	return fmt.Sprintf("%2d. [%-5s] %s %s  %s", index+1, item.Type, star, item.Datetime, truncate(item.Title, maxTitleLength))
}

// FormatDetailedItem formats a single result with all fields
func FormatDetailedItem(item searchtypes.SearchResult, now time.Time) string {
	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════════════════════════\n")
	b.WriteString(fmt.Sprintf("Title: %s\n", wrapText(item.Title, 70)))
	b.WriteString(fmt.Sprintf("Type: %s\n", item.Type))
	b.WriteString(fmt.Sprintf("Source: %s\n", item.Source))
	b.WriteString(fmt.Sprintf("Thumbnail: %s\n", item.ThumbnailURL))

	if posted, err := time.ParseInLocation(searchtypes.DatetimeLayout, item.Datetime, time.Local); err == nil {
		b.WriteString(fmt.Sprintf("Posted: %s (%s)\n", item.Datetime, formatTimeAgo(posted, now)))
	} else if item.Datetime != "" {
		b.WriteString(fmt.Sprintf("Posted: %s\n", item.Datetime))
	}

	if item.IsFavorite {
		b.WriteString("Favorite: yes\n")
	} else {
		b.WriteString("Favorite: no\n")
	}
	b.WriteString(fmt.Sprintf("ID: %s\n", item.ID))

	b.WriteString("═══════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// FormatRawItem renders a result as YAML
func FormatRawItem(item searchtypes.SearchResult) string {
	out, err := yaml.Marshal(item)
	if err != nil {
		return fmt.Sprintf("Error encoding item: %s", err)
	}
	return string(out)
}

// formatTimeAgo formats t relative to now as a human-readable "X ago" string
func formatTimeAgo(t, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}
