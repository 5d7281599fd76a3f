package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

// minWrapWidth keeps narrow terminals readable.
const minWrapWidth = 24

// MarkdownRenderer renders markdown reports and recreates its renderer when wrap width changes.
type MarkdownRenderer struct {
	Style    string
	width    int
	renderer *glamour.TermRenderer
}

// Render converts markdown into terminal text. Renderer failures fall back to the raw markdown.
func (r *MarkdownRenderer) Render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := width
	if wrapWidth < minWrapWidth {
		wrapWidth = minWrapWidth
	}

	if r.renderer == nil || r.width != wrapWidth {
		style := r.Style
		if style == "" {
			style = "dark"
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// ReflowMarkdown reports the item dates an operation moved, grouped by layer.
func ReflowMarkdown(title string, cal domain.Calendar, changes []schedule.DateChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(changes) == 0 {
		b.WriteString("No item dates change.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d item(s) move in **%s**.\n", len(changes), cal.Name)

	titles := map[string]string{}
	for _, item := range cal.Items {
		titles[item.ID] = item.Title
	}
	byLayer := map[string][]schedule.DateChange{}
	for _, change := range changes {
		byLayer[change.LayerKey] = append(byLayer[change.LayerKey], change)
	}
	for _, key := range layerOrder(cal, byLayer) {
		fmt.Fprintf(&b, "\n## %s\n\n", key)
		b.WriteString("| Item | From | To | Days |\n|---|---|---|---|\n")
		for _, change := range byLayer[key] {
			name := titles[change.ItemID]
			if name == "" {
				name = change.ItemID
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %+d |\n",
				escapeCell(name),
				schedule.DateKey(change.From),
				schedule.DateKey(change.To),
				int(change.To.Sub(change.From).Hours()/24),
			)
		}
	}
	return b.String()
}

// ChangesMarkdown lists change-ledger rows, newest first as given.
func ChangesMarkdown(calendarID string, events []domain.ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Changes for %s\n\n", calendarID)
	if len(events) == 0 {
		b.WriteString("No changes recorded.\n")
		return b.String()
	}
	b.WriteString("| When | Operation | Item | Details |\n|---|---|---|---|\n")
	for _, event := range events {
		item := event.ItemID
		if item == "" {
			item = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			event.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
			event.Operation,
			escapeCell(item),
			escapeCell(metadataSummary(event.Metadata)),
		)
	}
	return b.String()
}

func layerOrder(cal domain.Calendar, present map[string][]schedule.DateChange) []string {
	out := make([]string, 0, len(present))
	seen := map[string]struct{}{}
	for _, layer := range cal.Layers {
		if _, ok := present[layer.Key]; ok {
			out = append(out, layer.Key)
			seen[layer.Key] = struct{}{}
		}
	}
	var rest []string
	for key := range present {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func metadataSummary(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+meta[key])
	}
	return strings.Join(parts, " ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
