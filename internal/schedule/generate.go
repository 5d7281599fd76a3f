package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/domain"
)

// TemplateItem is an explicit title for one generated item, by position.
type TemplateItem struct {
	Title        string
	Description  string
	DurationDays int
}

// GenerateRequest describes one layer's generated item run.
type GenerateRequest struct {
	Layer           domain.Layer
	Start           time.Time
	Count           int
	IncludeWeekends bool
	Blocked         DateSet
	Templates       []TemplateItem
	NewID           func() string
}

// GenerateLayerItems places one item per valid day from Start for the layer's
// template. A template item count overrides Count; manual layers only produce the
// explicit template items.
func GenerateLayerItems(req GenerateRequest) ([]domain.ScheduledItem, error) {
	if req.Layer.IsException() {
		return nil, nil
	}
	count := req.Count
	if req.Layer.Template.ItemCount > 0 {
		count = req.Layer.Template.ItemCount
	}
	if req.Layer.Template.Mode == domain.TemplateManual {
		count = len(req.Templates)
	}
	if count <= 0 {
		return nil, nil
	}

	dates, err := GenerateValidDates(req.Start, count, req.IncludeWeekends, req.Blocked)
	if err != nil {
		return nil, fmt.Errorf("generate %d dates for layer %q: %w", count, req.Layer.Key, err)
	}
	out := make([]domain.ScheduledItem, 0, count)
	for i, date := range dates {
		n := i + 1
		in := domain.ScheduledItemInput{
			ID:            req.NewID(),
			Date:          date,
			LayerKey:      req.Layer.Key,
			SequenceIndex: n,
			Title:         generatedTitle(req.Layer, n),
			Label:         "Day " + strconv.Itoa(n),
		}
		if i < len(req.Templates) {
			tmpl := req.Templates[i]
			if title := strings.TrimSpace(tmpl.Title); title != "" {
				in.Title = title
			}
			in.Description = tmpl.Description
			in.DurationDays = tmpl.DurationDays
		}
		item, err := domain.NewScheduledItem(in)
		if err != nil {
			return nil, fmt.Errorf("generate item %d for layer %q: %w", n, req.Layer.Key, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func generatedTitle(layer domain.Layer, n int) string {
	if pattern := layer.Template.TitlePattern; strings.Contains(pattern, "{n}") {
		return strings.Replace(pattern, "{n}", strconv.Itoa(n), 1)
	}
	return fmt.Sprintf("%s Lesson %d", layer.Name, n)
}
