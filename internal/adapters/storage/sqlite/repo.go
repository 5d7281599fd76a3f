package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// defaultChangeEventLimit caps change-log reads when the caller passes no limit.
const defaultChangeEventLimit = 50

// dayLayout is the storage format for item and start dates.
const dayLayout = "2006-01-02"

// Repository persists whole calendars in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens the database file at path, creating its directory and schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every new connection to :memory: is a fresh database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema and applies additive column changes.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS calendars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			preset_key TEXT NOT NULL DEFAULT '',
			start_date TEXT,
			total_days INTEGER NOT NULL DEFAULT 0,
			include_weekends INTEGER NOT NULL DEFAULT 0,
			include_exceptions INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS layers (
			calendar_id TEXT NOT NULL,
			layer_key TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			chain_behavior TEXT NOT NULL DEFAULT 'linked',
			kind TEXT NOT NULL DEFAULT 'standard',
			respects_global_exceptions INTEGER NOT NULL DEFAULT 1,
			template_json TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY(calendar_id, layer_key),
			FOREIGN KEY(calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_items (
			calendar_id TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			layer_key TEXT NOT NULL,
			item_date TEXT NOT NULL,
			sequence_index INTEGER NOT NULL,
			title TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			duration_days INTEGER NOT NULL DEFAULT 1,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			target_layer_keys_json TEXT NOT NULL DEFAULT '[]',
			split_group_id TEXT NOT NULL DEFAULT '',
			split_index INTEGER NOT NULL DEFAULT 0,
			split_total INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(calendar_id, id),
			FOREIGN KEY(calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calendar_id TEXT NOT NULL,
			item_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_layers_calendar_position ON layers(calendar_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_items_calendar_position ON scheduled_items(calendar_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_items_calendar_layer_sequence ON scheduled_items(calendar_id, layer_key, sequence_index);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_calendar_created_at ON change_events(calendar_id, created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	itemAlterStatements := []string{
		`ALTER TABLE scheduled_items ADD COLUMN notes TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE scheduled_items ADD COLUMN target_layer_keys_json TEXT NOT NULL DEFAULT '[]'`,
	}
	for _, stmt := range itemAlterStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnErr(err) {
			return fmt.Errorf("migrate sqlite scheduled_items: %w", err)
		}
	}
	return nil
}

// CreateCalendar inserts a new calendar with its layers, items, and a create event.
func (r *Repository) CreateCalendar(ctx context.Context, cal domain.Calendar) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create calendar tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO calendars(id, name, preset_key, start_date, total_days, include_weekends, include_exceptions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cal.ID,
		cal.Name,
		cal.PresetKey,
		nullableDay(cal.StartDate),
		cal.TotalDays,
		boolToInt(cal.IncludeWeekends),
		boolToInt(cal.IncludeExceptions),
		ts(cal.CreatedAt),
		ts(cal.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert calendar: %w", err)
	}
	if err = insertCalendarChildren(ctx, tx, cal); err != nil {
		return err
	}
	if err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		CalendarID: cal.ID,
		Operation:  domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"layers": fmt.Sprint(len(cal.Layers)),
			"items":  fmt.Sprint(len(cal.Items)),
		},
		OccurredAt: cal.CreatedAt,
	}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create calendar tx: %w", err)
	}
	return nil
}

// UpdateCalendar replaces a stored calendar and records event in one transaction.
func (r *Repository) UpdateCalendar(ctx context.Context, cal domain.Calendar, event domain.ChangeEvent) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update calendar tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE calendars
		SET name = ?, preset_key = ?, start_date = ?, total_days = ?, include_weekends = ?, include_exceptions = ?, updated_at = ?
		WHERE id = ?
	`,
		cal.Name,
		cal.PresetKey,
		nullableDay(cal.StartDate),
		cal.TotalDays,
		boolToInt(cal.IncludeWeekends),
		boolToInt(cal.IncludeExceptions),
		ts(cal.UpdatedAt),
		cal.ID,
	)
	if err != nil {
		return fmt.Errorf("update calendar: %w", err)
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM scheduled_items WHERE calendar_id = ?`,
		`DELETE FROM layers WHERE calendar_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, cal.ID); err != nil {
			return fmt.Errorf("clear calendar children: %w", err)
		}
	}
	if err = insertCalendarChildren(ctx, tx, cal); err != nil {
		return err
	}
	event.CalendarID = cal.ID
	if err = insertChangeEvent(ctx, tx, event); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update calendar tx: %w", err)
	}
	return nil
}

// GetCalendar loads one calendar with layers and items in stored order.
func (r *Repository) GetCalendar(ctx context.Context, id string) (domain.Calendar, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, preset_key, start_date, total_days, include_weekends, include_exceptions, created_at, updated_at
		FROM calendars
		WHERE id = ?
	`, id)
	cal, err := scanCalendar(row)
	if err != nil {
		return domain.Calendar{}, err
	}
	if cal.Layers, err = r.listLayers(ctx, cal.ID); err != nil {
		return domain.Calendar{}, err
	}
	if cal.Items, err = r.listItems(ctx, cal.ID); err != nil {
		return domain.Calendar{}, err
	}
	return cal, nil
}

// ListCalendars returns summaries ordered by most recently updated.
func (r *Repository) ListCalendars(ctx context.Context) ([]domain.CalendarSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.start_date, c.total_days, c.updated_at,
			(SELECT COUNT(*) FROM scheduled_items i WHERE i.calendar_id = c.id)
		FROM calendars c
		ORDER BY c.updated_at DESC, c.id ASC
	`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CalendarSummary, 0)
	for rows.Next() {
		var (
			summary    domain.CalendarSummary
			startRaw   sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&summary.ID, &summary.Name, &startRaw, &summary.TotalDays, &updatedRaw, &summary.ItemCount); err != nil {
			_ = rows.Close()
			return nil, err
		}
		summary.StartDate = parseNullDay(startRaw)
		summary.UpdatedAt = parseTS(updatedRaw)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Layers are read after the cursor closes so single-connection pools do not deadlock.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range out {
		layers, err := r.listLayers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Layers = layers
	}
	return out, nil
}

// DeleteCalendar removes a calendar and everything stored under it.
func (r *Repository) DeleteCalendar(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete calendar tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range []string{
		`DELETE FROM change_events WHERE calendar_id = ?`,
		`DELETE FROM scheduled_items WHERE calendar_id = ?`,
		`DELETE FROM layers WHERE calendar_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete calendar children: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete calendar: %w", err)
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ListCalendarChangeEvents returns the newest events for one calendar first.
func (r *Repository) ListCalendarChangeEvents(ctx context.Context, calendarID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = defaultChangeEventLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, calendar_id, item_id, operation, metadata_json, created_at
		FROM change_events
		WHERE calendar_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, calendarID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.CalendarID, &event.ItemID, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if err := decodeJSON(metadataRaw, "{}", &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// listLayers reads a calendar's layers in position order.
func (r *Repository) listLayers(ctx context.Context, calendarID string) ([]domain.Layer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT layer_key, name, color, description, chain_behavior, kind, respects_global_exceptions, template_json
		FROM layers
		WHERE calendar_id = ?
		ORDER BY position ASC
	`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Layer, 0)
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, layer)
	}
	return out, rows.Err()
}

// listItems reads a calendar's items in stored document order.
func (r *Repository) listItems(ctx context.Context, calendarID string) ([]domain.ScheduledItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, layer_key, item_date, sequence_index, title, label, description, notes, duration_days,
			metadata_json, target_layer_keys_json, split_group_id, split_index, split_total
		FROM scheduled_items
		WHERE calendar_id = ?
		ORDER BY position ASC
	`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ScheduledItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertCalendarChildren writes layers and items, keeping slice order as position.
func insertCalendarChildren(ctx context.Context, execer execerContext, cal domain.Calendar) error {
	for pos, layer := range cal.Layers {
		templateJSON, err := json.Marshal(templateRecord{
			Mode:         string(layer.Template.Mode),
			ItemCount:    layer.Template.ItemCount,
			TitlePattern: layer.Template.TitlePattern,
		})
		if err != nil {
			return fmt.Errorf("encode layer template: %w", err)
		}
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO layers(calendar_id, layer_key, position, name, color, description, chain_behavior, kind, respects_global_exceptions, template_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cal.ID,
			layer.Key,
			pos,
			layer.Name,
			layer.Color,
			layer.Description,
			string(layer.ChainBehavior),
			string(layer.Kind),
			boolToInt(layer.RespectsGlobalExceptions),
			string(templateJSON),
		); err != nil {
			return fmt.Errorf("insert layer %q: %w", layer.Key, err)
		}
	}
	for pos, item := range cal.Items {
		metadataJSON, err := json.Marshal(nonNilMetadata(item.Metadata))
		if err != nil {
			return fmt.Errorf("encode item metadata: %w", err)
		}
		targets := item.TargetLayerKeys
		if targets == nil {
			targets = []string{}
		}
		targetsJSON, err := json.Marshal(targets)
		if err != nil {
			return fmt.Errorf("encode item target layers: %w", err)
		}
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO scheduled_items(
				calendar_id, id, position, layer_key, item_date, sequence_index, title, label, description, notes,
				duration_days, metadata_json, target_layer_keys_json, split_group_id, split_index, split_total
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cal.ID,
			item.ID,
			pos,
			item.LayerKey,
			day(item.Date),
			item.SequenceIndex,
			item.Title,
			item.Label,
			item.Description,
			item.Notes,
			item.DurationDays,
			string(metadataJSON),
			string(targetsJSON),
			item.SplitGroupID,
			item.SplitIndex,
			item.SplitTotal,
		); err != nil {
			return fmt.Errorf("insert scheduled item %q: %w", item.ID, err)
		}
	}
	return nil
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(nonNilMetadata(event.Metadata))
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(calendar_id, item_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.CalendarID,
		event.ItemID,
		string(normalizeChangeOperation(string(event.Operation))),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// templateRecord is the template_json column shape.
type templateRecord struct {
	Mode         string `json:"mode,omitempty"`
	ItemCount    int    `json:"item_count,omitempty"`
	TitlePattern string `json:"title_pattern,omitempty"`
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw)))
	if domain.IsValidChangeOperation(op) {
		return op
	}
	return domain.ChangeOperationUpdate
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanCalendar handles scan calendar.
func scanCalendar(s scanner) (domain.Calendar, error) {
	var (
		cal        domain.Calendar
		startRaw   sql.NullString
		weekends   int
		exceptions int
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&cal.ID, &cal.Name, &cal.PresetKey, &startRaw, &cal.TotalDays, &weekends, &exceptions, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Calendar{}, app.ErrNotFound
		}
		return domain.Calendar{}, err
	}
	cal.StartDate = parseNullDay(startRaw)
	cal.IncludeWeekends = weekends != 0
	cal.IncludeExceptions = exceptions != 0
	cal.CreatedAt = parseTS(createdRaw)
	cal.UpdatedAt = parseTS(updatedRaw)
	return cal, nil
}

// scanLayer handles scan layer.
func scanLayer(s scanner) (domain.Layer, error) {
	var (
		layer       domain.Layer
		chainRaw    string
		kindRaw     string
		respects    int
		templateRaw string
		tmpl        templateRecord
	)
	if err := s.Scan(&layer.Key, &layer.Name, &layer.Color, &layer.Description, &chainRaw, &kindRaw, &respects, &templateRaw); err != nil {
		return domain.Layer{}, err
	}
	chain, err := domain.NormalizeChainBehavior(chainRaw, nil)
	if err != nil {
		return domain.Layer{}, fmt.Errorf("decode layer %q chain_behavior: %w", layer.Key, err)
	}
	kind, err := domain.NormalizeLayerKind(kindRaw)
	if err != nil {
		return domain.Layer{}, fmt.Errorf("decode layer %q kind: %w", layer.Key, err)
	}
	if err := decodeJSON(templateRaw, "{}", &tmpl); err != nil {
		return domain.Layer{}, fmt.Errorf("decode layer %q template_json: %w", layer.Key, err)
	}
	layer.ChainBehavior = chain
	layer.Kind = kind
	layer.RespectsGlobalExceptions = respects != 0
	layer.Template = domain.LayerTemplate{
		Mode:         domain.TemplateMode(tmpl.Mode),
		ItemCount:    tmpl.ItemCount,
		TitlePattern: tmpl.TitlePattern,
	}
	return layer, nil
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.ScheduledItem, error) {
	var (
		item        domain.ScheduledItem
		dateRaw     string
		metadataRaw string
		targetsRaw  string
	)
	if err := s.Scan(
		&item.ID,
		&item.LayerKey,
		&dateRaw,
		&item.SequenceIndex,
		&item.Title,
		&item.Label,
		&item.Description,
		&item.Notes,
		&item.DurationDays,
		&metadataRaw,
		&targetsRaw,
		&item.SplitGroupID,
		&item.SplitIndex,
		&item.SplitTotal,
	); err != nil {
		return domain.ScheduledItem{}, err
	}
	date, err := time.Parse(dayLayout, dateRaw)
	if err != nil {
		return domain.ScheduledItem{}, fmt.Errorf("decode scheduled item %q date: %w", item.ID, err)
	}
	item.Date = date.UTC()
	if err := decodeJSON(metadataRaw, "{}", &item.Metadata); err != nil {
		return domain.ScheduledItem{}, fmt.Errorf("decode metadata_json: %w", err)
	}
	if len(item.Metadata) == 0 {
		item.Metadata = nil
	}
	if err := decodeJSON(targetsRaw, "[]", &item.TargetLayerKeys); err != nil {
		return domain.ScheduledItem{}, fmt.Errorf("decode target_layer_keys_json: %w", err)
	}
	if len(item.TargetLayerKeys) == 0 {
		item.TargetLayerKeys = nil
	}
	return item, nil
}

// decodeJSON unmarshals raw, treating blank columns as fallback.
func decodeJSON(raw, fallback string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNilMetadata(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}

// translateNoRows maps a write that touched no rows to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts formats timestamps for TEXT columns.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS reads ts output; malformed values become the zero time.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func nullableDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return day(*t)
}

func parseNullDay(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed, err := time.Parse(dayLayout, v.String)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// isDuplicateColumnErr reports an ALTER TABLE ADD COLUMN that already ran.
func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
