package ical

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxFeedBytes        = 8 << 20
	// defaultHorizonDays extends expansion past the calendar's last item.
	defaultHorizonDays = 365
)

var (
	// ErrInvalidFeed reports an unusable feed definition.
	ErrInvalidFeed = errors.New("invalid ics feed")
	// ErrStaleFeed marks a body served from the feed cache after a failed download.
	ErrStaleFeed = errors.New("ics feed served from cache")
)

// Feed binds one ICS source to an exception layer of a calendar.
type Feed struct {
	Name       string
	CalendarID string
	LayerKey   string
	// Source is an http(s) URL or a local file path.
	Source string
	// Schedule is a standard five-field cron spec. Empty feeds only refresh on demand.
	Schedule string
	// TargetLayerKeys scopes the imported markers. Empty means global blackouts.
	TargetLayerKeys []string
	// Replace swaps the layer's markers instead of merging into them.
	Replace bool
}

// Validate checks required fields and the cron spec.
func (f Feed) Validate() error {
	if strings.TrimSpace(f.CalendarID) == "" {
		return fmt.Errorf("%w: calendar_id is required", ErrInvalidFeed)
	}
	if strings.TrimSpace(f.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidFeed)
	}
	if spec := strings.TrimSpace(f.Schedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%w: schedule %q: %v", ErrInvalidFeed, spec, err)
		}
	}
	return nil
}

// Fetcher loads ICS payloads from URLs or files.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher builds a fetcher. A nil client gets a default with a timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{client: client}
}

// WithCacheDir keeps the last good body of every URL feed under dir. When a later
// download fails the cached body is returned together with ErrStaleFeed.
func (f *Fetcher) WithCacheDir(dir string) *Fetcher {
	f.cacheDir = strings.TrimSpace(dir)
	return f
}

// Fetch reads source, which is an http(s) URL or a file path.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is empty", ErrInvalidFeed)
	}
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		path := source
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		body, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read ics file: %w", readErr)
		}
		return body, nil
	}

	body, err := f.download(ctx, source)
	if err != nil {
		if cached, ok := f.readCache(source); ok {
			return cached, fmt.Errorf("%w: %v", ErrStaleFeed, err)
		}
		return nil, err
	}
	if err := f.writeCache(source, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) download(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ics %s: unexpected status %d", redactURL(source), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read ics body: %w", err)
	}
	return body, nil
}

// cachePath names the cache file of source; the full URL is hashed so tokens never
// reach the file system.
func (f *Fetcher) cachePath(source string) string {
	sum := sha256.Sum256([]byte(source))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:12])+".ics")
}

func (f *Fetcher) readCache(source string) ([]byte, bool) {
	if f.cacheDir == "" {
		return nil, false
	}
	body, err := os.ReadFile(f.cachePath(source))
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return body, true
}

func (f *Fetcher) writeCache(source string, body []byte) error {
	if f.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return fmt.Errorf("create feed cache dir: %w", err)
	}
	if err := os.WriteFile(f.cachePath(source), body, 0o644); err != nil {
		return fmt.Errorf("write feed cache: %w", err)
	}
	return nil
}

// ExceptionService is the app surface an import writes through.
type ExceptionService interface {
	GetCalendar(context.Context, string) (domain.Calendar, error)
	UpdateExceptions(context.Context, app.UpdateExceptionsInput) (app.ReflowResult, error)
}

// Logger is the structured key/value logger the refresher reports through.
type Logger interface {
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// ImportResult summarizes one feed import.
type ImportResult struct {
	Feed       string
	Blackouts  int
	Moved      int
	ImportedAt time.Time
	// Stale is set when the body came from the feed cache.
	Stale bool
}

// Importer parses ICS payloads into a calendar's exception layer.
type Importer struct {
	service ExceptionService
	fetcher *Fetcher
	clock   func() time.Time
}

// NewImporter builds an importer over service. A nil fetcher gets the default.
func NewImporter(service ExceptionService, fetcher *Fetcher, clock func() time.Time) *Importer {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Importer{service: service, fetcher: fetcher, clock: clock}
}

// ImportFeed fetches feed.Source and imports it.
func (im *Importer) ImportFeed(ctx context.Context, feed Feed) (ImportResult, error) {
	if err := feed.Validate(); err != nil {
		return ImportResult{}, err
	}
	body, err := im.fetcher.Fetch(ctx, feed.Source)
	stale := errors.Is(err, ErrStaleFeed)
	if err != nil && !stale {
		return ImportResult{}, err
	}
	res, err := im.Import(ctx, feed, body)
	res.Stale = stale
	return res, err
}

// Import expands body across the calendar's span and writes the blackouts.
func (im *Importer) Import(ctx context.Context, feed Feed, body []byte) (ImportResult, error) {
	cal, err := im.service.GetCalendar(ctx, feed.CalendarID)
	if err != nil {
		return ImportResult{}, err
	}
	blackouts, err := ParseBlackouts(body, CalendarWindow(cal, im.clock()))
	if err != nil {
		return ImportResult{}, err
	}
	mode := app.ExceptionUpdateMerge
	if feed.Replace {
		mode = app.ExceptionUpdateReplace
	}
	res, err := im.service.UpdateExceptions(ctx, app.UpdateExceptionsInput{
		CalendarID: feed.CalendarID,
		LayerKey:   feed.LayerKey,
		Mode:       mode,
		Exceptions: ExceptionInputs(blackouts, feed.TargetLayerKeys),
	})
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{
		Feed:       feed.Name,
		Blackouts:  len(blackouts),
		Moved:      len(res.Changes),
		ImportedAt: im.clock().UTC(),
	}, nil
}

// CalendarWindow spans from the calendar start (or earliest item) to a year past its
// last item, so blackouts ahead of a pushed chain are still imported.
func CalendarWindow(cal domain.Calendar, now time.Time) Window {
	start := domain.TruncateDay(now)
	if cal.StartDate != nil {
		start = *cal.StartDate
	}
	end := start
	for _, item := range cal.Items {
		if item.Date.Before(start) {
			start = item.Date
		}
		if item.Date.After(end) {
			end = item.Date
		}
	}
	return Window{Start: start, End: end.AddDate(0, 0, defaultHorizonDays)}
}

// FeedRefresher re-imports configured feeds on their cron schedules.
type FeedRefresher struct {
	importer *Importer
	feeds    []Feed
	logger   Logger
	cron     *cron.Cron

	mu   sync.Mutex
	last map[string]ImportResult
}

// NewFeedRefresher validates feeds and builds a refresher. Feeds run in UTC.
func NewFeedRefresher(importer *Importer, feeds []Feed, logger Logger) (*FeedRefresher, error) {
	if importer == nil {
		return nil, errors.New("feed refresher requires an importer")
	}
	for i, feed := range feeds {
		if err := feed.Validate(); err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
	}
	return &FeedRefresher{
		importer: importer,
		feeds:    feeds,
		logger:   logger,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		last:     map[string]ImportResult{},
	}, nil
}

// RefreshAll imports every feed once and returns the joined failures.
func (r *FeedRefresher) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, feed := range r.feeds {
		if err := r.refresh(ctx, feed); err != nil {
			errs = append(errs, fmt.Errorf("feed %q: %w", feedName(feed), err))
		}
	}
	return errors.Join(errs...)
}

// Start schedules every feed with a cron spec and stops when ctx ends.
func (r *FeedRefresher) Start(ctx context.Context) (int, error) {
	scheduled := 0
	for _, feed := range r.feeds {
		if strings.TrimSpace(feed.Schedule) == "" {
			continue
		}
		if _, err := r.cron.AddFunc(feed.Schedule, func() {
			_ = r.refresh(ctx, feed)
		}); err != nil {
			return scheduled, fmt.Errorf("schedule feed %q: %w", feedName(feed), err)
		}
		scheduled++
	}
	r.cron.Start()
	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
	}()
	return scheduled, nil
}

// LastResult reports the most recent successful import of the named feed.
func (r *FeedRefresher) LastResult(name string) (ImportResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.last[name]
	return res, ok
}

func (r *FeedRefresher) refresh(ctx context.Context, feed Feed) error {
	res, err := r.importer.ImportFeed(ctx, feed)
	if err != nil {
		r.logError("ics feed refresh failed", "feed", feedName(feed), "calendar_id", feed.CalendarID, "source", redactURL(feed.Source), "err", err)
		return err
	}
	r.mu.Lock()
	r.last[feedName(feed)] = res
	r.mu.Unlock()
	r.logInfo("ics feed refreshed", "feed", feedName(feed), "calendar_id", feed.CalendarID, "blackouts", res.Blackouts, "moved", res.Moved, "stale", res.Stale)
	return nil
}

func (r *FeedRefresher) logInfo(msg string, keyvals ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keyvals...)
	}
}

func (r *FeedRefresher) logError(msg string, keyvals ...any) {
	if r.logger != nil {
		r.logger.Error(msg, keyvals...)
	}
}

func feedName(feed Feed) string {
	if name := strings.TrimSpace(feed.Name); name != "" {
		return name
	}
	return redactURL(feed.Source)
}

// redactURL drops credentials and query strings from feed URLs before logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
