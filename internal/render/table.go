// Package render formats calendars and reflow results for the terminal.
package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("243"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// ItemFilter narrows the rows of a calendar table.
type ItemFilter struct {
	LayerKey string
	From     string
	Limit    int
}

// CalendarList renders calendar summaries, one row per calendar.
func CalendarList(rows []domain.CalendarSummary) string {
	body := make([][]string, 0, len(rows))
	for _, row := range rows {
		start := "-"
		if row.StartDate != nil {
			start = schedule.DateKey(*row.StartDate)
		}
		keys := make([]string, 0, len(row.Layers))
		for _, layer := range row.Layers {
			keys = append(keys, layer.Key)
		}
		body = append(body, []string{
			row.ID,
			row.Name,
			start,
			strings.Join(keys, ", "),
			strconv.Itoa(row.ItemCount),
			row.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	return newTable([]string{"ID", "Name", "Start", "Layers", "Items", "Updated"}, body)
}

// Calendar renders a header line, the layer legend, and the filtered item table.
func Calendar(cal domain.Calendar, filter ItemFilter) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(cal.Name))
	fmt.Fprintf(&b, "  (%s)\n", cal.ID)
	fmt.Fprintf(&b, "weekends: %s  exceptions: %s\n\n", onOff(cal.IncludeWeekends), onOff(cal.IncludeExceptions))
	b.WriteString(Layers(cal.Layers))
	b.WriteString("\n")
	b.WriteString(Items(cal, filter))
	return b.String()
}

// Layers renders the layer legend.
func Layers(layers []domain.Layer) string {
	body := make([][]string, 0, len(layers))
	for _, layer := range layers {
		swatch := "  "
		if layer.Color != "" {
			swatch = lipgloss.NewStyle().Background(lipgloss.Color(layer.Color)).Render("  ")
		}
		respects := "yes"
		if !layer.RespectsGlobalExceptions {
			respects = "no"
		}
		body = append(body, []string{
			swatch,
			layer.Key,
			layer.Name,
			string(layer.Kind),
			string(layer.ChainBehavior),
			respects,
		})
	}
	return newTable([]string{"", "Key", "Name", "Kind", "Chain", "Global"}, body)
}

// Items renders scheduled items ordered by date, layer order, then sequence.
func Items(cal domain.Calendar, filter ItemFilter) string {
	order := map[string]int{}
	for i, layer := range cal.Layers {
		order[layer.Key] = i
	}
	items := make([]domain.ScheduledItem, 0, len(cal.Items))
	for _, item := range cal.Items {
		if filter.LayerKey != "" && item.LayerKey != filter.LayerKey {
			continue
		}
		if filter.From != "" && schedule.DateKey(item.Date) < filter.From {
			continue
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if order[a.LayerKey] != order[b.LayerKey] {
			return order[a.LayerKey] < order[b.LayerKey]
		}
		return a.SequenceIndex < b.SequenceIndex
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	body := make([][]string, 0, len(items))
	for _, item := range items {
		split := ""
		if item.SplitGroupID != "" {
			split = fmt.Sprintf("%d/%d", item.SplitIndex, item.SplitTotal)
		}
		body = append(body, []string{
			schedule.DateKey(item.Date),
			item.Date.Weekday().String()[:3],
			item.LayerKey,
			strconv.Itoa(item.SequenceIndex),
			item.Title,
			split,
			item.ID,
		})
	}
	return newTable([]string{"Date", "Day", "Layer", "Seq", "Title", "Split", "ID"}, body)
}

// Exceptions renders the blocked-day summary of one calendar.
func Exceptions(summary app.ExceptionSummary) string {
	body := [][]string{{"(global)", joinDates(summary.Global)}}
	for _, key := range sortedKeys(summary.PerLayer) {
		body = append(body, []string{"target " + key, joinDates(summary.PerLayer[key])})
	}
	for _, key := range sortedKeys(summary.BlockedByLayer) {
		body = append(body, []string{"blocked " + key, joinDates(summary.BlockedByLayer[key])})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "weekends: %s  exceptions: %s\n", onOff(summary.IncludeWeekends), onOff(summary.IncludeExceptions))
	b.WriteString(newTable([]string{"Scope", "Dates"}, body))
	return b.String()
}

func newTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == len(headers)-1 && headers[col] == "ID":
				return mutedStyle
			default:
				return cellStyle
			}
		})
	return t.Render() + "\n"
}

func onOff(v bool) string {
	if v {
		return "included"
	}
	return "skipped"
}

func joinDates(dates []string) string {
	if len(dates) == 0 {
		return "-"
	}
	return strings.Join(dates, " ")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
