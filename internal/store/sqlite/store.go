// Package sqlite persists keywords and domains in a single SQLite
// database shared by the API server and the cron worker.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ranklens/ranklens/internal/tracker"
)

const schema = `
CREATE TABLE IF NOT EXISTS domains (
	name              TEXT PRIMARY KEY,
	slug              TEXT NOT NULL,
	scrape_enabled    INTEGER NOT NULL DEFAULT 1,
	scraper_id        TEXT NOT NULL DEFAULT '',
	api_key           TEXT NOT NULL DEFAULT '',
	business_name     TEXT NOT NULL DEFAULT '',
	avg_position      INTEGER NOT NULL DEFAULT 0,
	map_pack_keywords INTEGER NOT NULL DEFAULT 0,
	added             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS keywords (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword             TEXT NOT NULL,
	device              TEXT NOT NULL DEFAULT 'desktop',
	country             TEXT NOT NULL DEFAULT 'US',
	location            TEXT NOT NULL DEFAULT '',
	domain              TEXT NOT NULL REFERENCES domains(name) ON DELETE CASCADE,
	position            INTEGER NOT NULL DEFAULT 0,
	history             TEXT NOT NULL DEFAULT '{}',
	last_result         TEXT NOT NULL DEFAULT '[]',
	local_results       TEXT NOT NULL DEFAULT '[]',
	map_pack_top3       INTEGER NOT NULL DEFAULT 0,
	last_updated        TEXT NOT NULL DEFAULT '',
	last_update_error   TEXT NOT NULL DEFAULT 'false',
	updating            INTEGER NOT NULL DEFAULT 0,
	updating_started_at TEXT,
	added               TEXT NOT NULL,
	tags                TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_keywords_domain ON keywords(domain);
`

// Store implements tracker.KeywordStore and tracker.DomainStore over a
// SQLite file. Keyword rows get last-writer-wins semantics; the only
// cross-process coordination is SQLite's own row-update atomicity plus
// the WAL busy timeout.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path with WAL and
// a busy timeout suitable for two cooperating processes.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory database for tests. Each connection to
// ":memory:" is a separate database, so the pool is pinned to one.
func OpenMemory() (*Store, error) {
	s, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

const keywordColumns = `id, keyword, device, country, location, domain, position,
	history, last_result, local_results, map_pack_top3, last_updated,
	last_update_error, updating, updating_started_at, added, tags`

// GetKeyword fetches one keyword row.
func (s *Store) GetKeyword(ctx context.Context, id int64) (tracker.Keyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE id = ?`, id)
	k, err := scanKeyword(row)
	if err == sql.ErrNoRows {
		return tracker.Keyword{}, tracker.ErrKeywordNotFound
	}
	return k, err
}

// ListKeywords returns every keyword tracked for a domain.
func (s *Store) ListKeywords(ctx context.Context, domain string) ([]tracker.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE domain = ? ORDER BY id`, domain)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	return collectKeywords(rows)
}

// ListKeywordsByIDs returns the keyword rows for the given ids; missing
// ids are silently skipped.
func (s *Store) ListKeywordsByIDs(ctx context.Context, ids []int64) ([]tracker.Keyword, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list keywords by ids: %w", err)
	}
	return collectKeywords(rows)
}

// ListStaleKeywords returns keywords whose last update predates cutoff,
// for the cron worker's daily sweep.
func (s *Store) ListStaleKeywords(ctx context.Context, cutoff time.Time) ([]tracker.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords
		 WHERE last_updated = '' OR last_updated < ? ORDER BY id`,
		formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stale keywords: %w", err)
	}
	return collectKeywords(rows)
}

// SiblingDesktop finds the desktop keyword tracking the same term for
// the same domain and country as k.
func (s *Store) SiblingDesktop(ctx context.Context, k tracker.Keyword) (tracker.Keyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords
		 WHERE domain = ? AND keyword = ? AND country = ? AND device = ? AND id != ?
		 LIMIT 1`,
		k.Domain, k.Keyword, k.Country, string(tracker.DeviceDesktop), k.ID)
	sibling, err := scanKeyword(row)
	if err == sql.ErrNoRows {
		return tracker.Keyword{}, tracker.ErrKeywordNotFound
	}
	return sibling, err
}

// MarkUpdating flags the given keywords as in-flight in one by-filter
// update. Keyword values already loaded by the caller become stale.
func (s *Store) MarkUpdating(ctx context.Context, ids []int64, startedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{formatTime(startedAt)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET updating = 1, updating_started_at = ? WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("mark updating: %w", err)
	}
	return nil
}

// ClearStaleUpdating clears in-flight flags older than cutoff, the
// administrative recovery for attempts that crashed before their
// clearing write. Returns the number of rows recovered.
func (s *Store) ClearStaleUpdating(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET updating = 0, updating_started_at = NULL
		 WHERE updating = 1 AND updating_started_at IS NOT NULL AND updating_started_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("clear stale updating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear stale updating rows: %w", err)
	}
	return n, nil
}

// ApplyRefresh applies a refresh outcome as exactly one UPDATE. The
// in-flight pair is cleared in the same statement as every other field
// change so no crash window can leave a keyword stuck updating with a
// partially applied result.
func (s *Store) ApplyRefresh(ctx context.Context, o tracker.RefreshOutcome) error {
	errJSON, err := marshalUpdateError(o.Error)
	if err != nil {
		return err
	}

	if !o.Scraped {
		// Scrape skipped or failed: rank state is left untouched; only
		// the error blob and the in-flight pair change.
		_, err := s.db.ExecContext(ctx,
			`UPDATE keywords SET
				last_update_error = ?,
				updating = 0,
				updating_started_at = NULL
			 WHERE id = ?`,
			errJSON, o.KeywordID)
		if err != nil {
			return fmt.Errorf("apply refresh (unscraped): %w", err)
		}
		return nil
	}

	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	resultJSON, err := json.Marshal(emptyIfNil(o.LastResult))
	if err != nil {
		return fmt.Errorf("marshal last result: %w", err)
	}
	localJSON, err := json.Marshal(emptyIfNil(o.LocalResults))
	if err != nil {
		return fmt.Errorf("marshal local results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE keywords SET
			position = ?,
			history = ?,
			last_result = ?,
			local_results = ?,
			map_pack_top3 = ?,
			last_updated = ?,
			last_update_error = ?,
			updating = 0,
			updating_started_at = NULL
		 WHERE id = ?`,
		o.Position,
		string(historyJSON),
		string(resultJSON),
		string(localJSON),
		boolToInt(o.MapPackTop3),
		formatTime(o.FinishedAt),
		errJSON,
		o.KeywordID)
	if err != nil {
		return fmt.Errorf("apply refresh: %w", err)
	}
	return nil
}

// InsertKeyword adds a keyword row and returns its assigned id.
func (s *Store) InsertKeyword(ctx context.Context, k tracker.Keyword) (int64, error) {
	historyJSON, err := json.Marshal(emptyHistoryIfNil(k.History))
	if err != nil {
		return 0, fmt.Errorf("marshal history: %w", err)
	}
	tagsJSON, err := json.Marshal(emptyStringsIfNil(k.Tags))
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	added := k.Added
	if added.IsZero() {
		added = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (keyword, device, country, location, domain, position, history,
			map_pack_top3, last_updated, added, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.Keyword, string(k.Device), k.Country, k.Location, k.Domain, k.Position,
		string(historyJSON), boolToInt(k.MapPackTop3), formatOptionalTime(k.LastUpdated),
		formatTime(added), string(tagsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert keyword: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert keyword id: %w", err)
	}
	return id, nil
}

// GetDomain fetches one domain row.
func (s *Store) GetDomain(ctx context.Context, name string) (tracker.Domain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, slug, scrape_enabled, scraper_id, api_key, business_name,
			avg_position, map_pack_keywords
		 FROM domains WHERE name = ?`, name)
	d, err := scanDomain(row)
	if err == sql.ErrNoRows {
		return tracker.Domain{}, tracker.ErrDomainNotFound
	}
	return d, err
}

// ListDomains returns all domains.
func (s *Store) ListDomains(ctx context.Context) ([]tracker.Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, slug, scrape_enabled, scraper_id, api_key, business_name,
			avg_position, map_pack_keywords
		 FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	var out []tracker.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list domains rows: %w", err)
	}
	return out, nil
}

// InsertDomain adds a domain row.
func (s *Store) InsertDomain(ctx context.Context, d tracker.Domain) error {
	slug := d.Slug
	if slug == "" {
		slug = strings.ReplaceAll(d.Name, ".", "-")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (name, slug, scrape_enabled, scraper_id, api_key, business_name, added)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Name, slug, boolToInt(d.ScrapeEnabled), d.ScraperID, d.APIKey, d.BusinessName,
		formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

// UpdateDomainStats writes the derived stats columns for a domain.
func (s *Store) UpdateDomainStats(ctx context.Context, name string, avgPosition, mapPackKeywords int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE domains SET avg_position = ?, map_pack_keywords = ? WHERE name = ?`,
		avgPosition, mapPackKeywords, name)
	if err != nil {
		return fmt.Errorf("update domain stats: %w", err)
	}
	return nil
}

// AggregateDomainStats computes the derived stats for a domain with a
// fresh aggregate query over its current keyword rows. Keywords with no
// rank yet are excluded from the average, not treated as zero.
func (s *Store) AggregateDomainStats(ctx context.Context, name string) (avgPosition, mapPackKeywords int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(CAST(ROUND(AVG(CASE WHEN position > 0 THEN position END)) AS INTEGER), 0),
			COALESCE(SUM(map_pack_top3), 0)
		 FROM keywords WHERE domain = ?`, name)
	if err := row.Scan(&avgPosition, &mapPackKeywords); err != nil {
		return 0, 0, fmt.Errorf("aggregate domain stats: %w", err)
	}
	return avgPosition, mapPackKeywords, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyword(row rowScanner) (tracker.Keyword, error) {
	var (
		k           tracker.Keyword
		device      string
		historyJSON string
		resultJSON  string
		localJSON   string
		mapPack     int
		updated     string
		errJSON     string
		updating    int
		startedAt   sql.NullString
		added       string
		tagsJSON    string
	)
	err := row.Scan(&k.ID, &k.Keyword, &device, &k.Country, &k.Location, &k.Domain,
		&k.Position, &historyJSON, &resultJSON, &localJSON, &mapPack, &updated,
		&errJSON, &updating, &startedAt, &added, &tagsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return tracker.Keyword{}, err
		}
		return tracker.Keyword{}, fmt.Errorf("scan keyword: %w", err)
	}
	k.Device = tracker.Device(device)
	k.MapPackTop3 = mapPack != 0
	k.Updating = updating != 0
	if err := json.Unmarshal([]byte(historyJSON), &k.History); err != nil {
		k.History = map[string]int{}
	}
	if err := json.Unmarshal([]byte(resultJSON), &k.LastResult); err != nil {
		k.LastResult = nil
	}
	if err := json.Unmarshal([]byte(localJSON), &k.LocalResults); err != nil {
		k.LocalResults = nil
	}
	k.LastUpdateErr = unmarshalUpdateError(errJSON)
	if updated != "" {
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			k.LastUpdated = t
		}
	}
	if startedAt.Valid && startedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			k.UpdateStarted = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, added); err == nil {
		k.Added = t
	}
	if err := json.Unmarshal([]byte(tagsJSON), &k.Tags); err != nil {
		k.Tags = nil
	}
	return k, nil
}

func collectKeywords(rows *sql.Rows) ([]tracker.Keyword, error) {
	defer rows.Close()
	var out []tracker.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword rows: %w", err)
	}
	return out, nil
}

func scanDomain(row rowScanner) (tracker.Domain, error) {
	var (
		d       tracker.Domain
		enabled int
	)
	err := row.Scan(&d.Name, &d.Slug, &enabled, &d.ScraperID, &d.APIKey,
		&d.BusinessName, &d.AvgPosition, &d.MapPackKeywords)
	if err != nil {
		if err == sql.ErrNoRows {
			return tracker.Domain{}, err
		}
		return tracker.Domain{}, fmt.Errorf("scan domain: %w", err)
	}
	d.ScrapeEnabled = enabled != 0
	return d, nil
}

// marshalUpdateError persists nil as the literal false sentinel the
// dashboard expects.
func marshalUpdateError(e *tracker.UpdateError) (string, error) {
	if e == nil {
		return "false", nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal update error: %w", err)
	}
	return string(data), nil
}

func unmarshalUpdateError(raw string) *tracker.UpdateError {
	if raw == "" || raw == "false" {
		return nil
	}
	var e tracker.UpdateError
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil
	}
	return &e
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(r []tracker.SerpResult) []tracker.SerpResult {
	if r == nil {
		return []tracker.SerpResult{}
	}
	return r
}

func emptyHistoryIfNil(h map[string]int) map[string]int {
	if h == nil {
		return map[string]int{}
	}
	return h
}

func emptyStringsIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
