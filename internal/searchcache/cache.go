// Package searchcache is a content-addressed store for external search
// results. Keys are derived from (search type, normalized query params) so
// identical searches hit the same row regardless of parameter order. Patent
// rows never expire — patents are permanent public record — while web and
// retail rows expire after a fixed window and are additionally bounded by a
// per-channel row quota with oldest-first eviction.
package searchcache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	SearchTypeWeb    = "web"
	SearchTypeRetail = "retail"
	SearchTypePatent = "patent"

	// DefaultTTL bounds web and retail rows; patent rows carry no expiry.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultMaxRows is the per-channel storage quota.
	DefaultMaxRows = 1000
)

type CachedResult struct {
	QueryHash   string          `db:"query_hash"`
	SearchType  string          `db:"search_type"`
	QueryParams string          `db:"query_params"`
	Results     json.RawMessage `db:"results"`
	ResultCount int             `db:"result_count"`
	SourceAPI   string          `db:"source_api"`
	CreatedAt   time.Time       `db:"-"`
	ExpiresAt   *time.Time      `db:"-"`
}

const schema = `
CREATE TABLE IF NOT EXISTS cached_results (
	query_hash   TEXT PRIMARY KEY,
	search_type  TEXT NOT NULL,
	query_params TEXT NOT NULL,
	results      TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	source_api   TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	expires_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_cached_results_type_created
	ON cached_results (search_type, created_at);
`

type Store struct {
	db      *sqlx.DB
	ttl     time.Duration
	maxRows int
	now     func() time.Time
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option      { return func(s *Store) { s.ttl = ttl } }
func WithMaxRows(n int) Option              { return func(s *Store) { s.maxRows = n } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db, ttl: DefaultTTL, maxRows: DefaultMaxRows, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Key derives the cache key: the search type prefixed onto an FNV-1a hash
// of the params serialized with sorted keys, so field order never affects
// the hash.
func Key(searchType string, params map[string]any) string {
	return searchType + ":" + hashParams(params)
}

func hashParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v, _ := json.Marshal(params[k])
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.Write(v)
		sb.WriteByte(';')
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(sb.String()))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Get returns the cached row for (searchType, params), or a miss. Expired
// rows are deleted on read and reported as a miss — stale data is never
// returned.
func (s *Store) Get(searchType string, params map[string]any) (*CachedResult, bool, error) {
	key := Key(searchType, params)
	row := s.db.QueryRow(`SELECT query_hash, search_type, query_params, results, result_count, source_api, created_at, expires_at
		FROM cached_results WHERE query_hash = ?`, key)

	var out CachedResult
	var results, createdAt string
	var expiresAt *string
	err := row.Scan(&out.QueryHash, &out.SearchType, &out.QueryParams, &results, &out.ResultCount, &out.SourceAPI, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache read: %w", err)
	}
	out.Results = json.RawMessage(results)
	out.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if expiresAt != nil && *expiresAt != "" {
		t, _ := time.Parse(time.RFC3339Nano, *expiresAt)
		out.ExpiresAt = &t
		if !t.After(s.now()) {
			_, _ = s.db.Exec(`DELETE FROM cached_results WHERE query_hash = ?`, key)
			return nil, false, nil
		}
	}
	return &out, true, nil
}

// Put upserts results for (searchType, params); last writer wins. After a
// successful write the channel's storage quota is enforced by deleting
// oldest-by-creation rows of the same search type.
func (s *Store) Put(searchType string, params map[string]any, results any, sourceAPI string) error {
	key := Key(searchType, params)
	blob, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	paramsBlob, err := marshalSorted(params)
	if err != nil {
		return fmt.Errorf("cache marshal params: %w", err)
	}

	count := resultCount(blob)
	now := s.now()
	var expiresAt any
	if searchType != SearchTypePatent {
		expiresAt = now.Add(s.ttl).UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO cached_results
		(query_hash, search_type, query_params, results, result_count, source_api, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, searchType, string(paramsBlob), string(blob), count, sourceAPI,
		now.UTC().Format(time.RFC3339Nano), expiresAt)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return s.enforceQuota(searchType)
}

func (s *Store) enforceQuota(searchType string) error {
	var total int
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM cached_results WHERE search_type = ?`, searchType); err != nil {
		return fmt.Errorf("cache count: %w", err)
	}
	if total <= s.maxRows {
		return nil
	}
	// FIFO, not LRU: access recency is not tracked.
	_, err := s.db.Exec(`DELETE FROM cached_results WHERE query_hash IN (
		SELECT query_hash FROM cached_results WHERE search_type = ?
		ORDER BY created_at ASC LIMIT ?)`, searchType, total-s.maxRows)
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

func marshalSorted(params map[string]any) ([]byte, error) {
	// encoding/json already sorts map keys; rely on that for the stored
	// normalized form.
	return json.Marshal(params)
}

func resultCount(blob []byte) int {
	var arr []json.RawMessage
	if err := json.Unmarshal(blob, &arr); err != nil {
		return 0
	}
	return len(arr)
}
