// package formatter renders recommendation lists and sync reports to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
)

// artistNames joins a track's artist names for display.
func artistNames(track models.Track) string {
	names := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}

func sourceNames(sources []models.Kind) string {
	names := make([]string, 0, len(sources))
	for _, kind := range sources {
		names = append(names, kind.String())
	}
	return strings.Join(names, " ")
}

// RecommendationsToCSV converts a recommendation result to CSV with columns:
// Rank, ID, Title, Artists, Score, Sources
func RecommendationsToCSV(result *tasks.RecommendResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rank", "ID", "Title", "Artists", "Score", "Sources"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, scored := range result.Tracks {
		record := []string{
			strconv.Itoa(i + 1),
			scored.Track.ID,
			scored.Track.Name,
			artistNames(scored.Track),
			strconv.FormatFloat(scored.Score, 'f', 4, 64),
			sourceNames(scored.Sources),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// RecommendationsToMarkdown converts a recommendation result to Markdown.
func RecommendationsToMarkdown(result *tasks.RecommendResult) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Recommendations\n\n")
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(result.Tracks)))
	buf.WriteString(fmt.Sprintf("**Listening events scored**: %d\n\n", result.Candidates))

	for i, scored := range result.Tracks {
		artists := artistNames(scored.Track)
		duration := ""
		if scored.Track.DurationMS > 0 {
			duration = fmt.Sprintf(" [%s]", shared.FormatDuration(scored.Track.DurationMS))
		}
		if artists != "" {
			buf.WriteString(fmt.Sprintf("%d. %s - %s%s (%.2f)\n", i+1, artists, scored.Track.Name, duration, scored.Score))
		} else {
			buf.WriteString(fmt.Sprintf("%d. %s%s (%.2f)\n", i+1, scored.Track.Name, duration, scored.Score))
		}
	}

	if result.Truncated {
		buf.WriteString("\n_List truncated; raise the limit to see more._\n")
	}

	return buf.Bytes()
}

// RecommendationsToText converts a recommendation result to plain text.
func RecommendationsToText(result *tasks.RecommendResult) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Recommendations for %s (%d tracks)\n\n", result.UserID, len(result.Tracks)))
	for i, scored := range result.Tracks {
		artists := artistNames(scored.Track)
		if artists != "" {
			buf.WriteString(fmt.Sprintf("%2d. %s - %s (%.2f)\n", i+1, artists, scored.Track.Name, scored.Score))
		} else {
			buf.WriteString(fmt.Sprintf("%2d. %s (%.2f)\n", i+1, scored.Track.Name, scored.Score))
		}
	}

	return buf.Bytes()
}

// SyncReportToText renders a sync report with per-kind counts and failures.
func SyncReportToText(report *tasks.SyncReport) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Synced %d associations for %s in %s\n", report.Total(), report.UserID, report.Duration.Round(time.Millisecond)))
	if report.Purged > 0 {
		buf.WriteString(fmt.Sprintf("Cleared %d prior associations\n", report.Purged))
	}

	kinds := make([]models.Kind, 0, len(report.Counts))
	for kind := range report.Counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	buf.WriteString("\n")
	for _, kind := range kinds {
		count := report.Counts[kind]
		buf.WriteString(fmt.Sprintf("  %-15s %d (%d new, %d updated)\n", kind, count.Total(), count.Created, count.Updated))
	}

	if report.Failed() {
		buf.WriteString("\nFailures:\n")
		for _, kindErr := range report.Errors {
			buf.WriteString(fmt.Sprintf("  %s: %v (kept %d)\n", kindErr.Kind, kindErr.Err, kindErr.Committed))
		}
	}

	return buf.Bytes()
}
