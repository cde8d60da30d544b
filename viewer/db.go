package main

import (
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DBCache holds a lazily opened in-memory DuckDB handle over the archive
// glob plus a TTL cache of query results. The view binds its file list at
// creation, so the handle is reopened once the TTL lapses and new parquet
// files become visible; cached results age out on the same clock.
type DBCache struct {
	dir string
	ttl time.Duration

	mu       sync.RWMutex
	db       *sql.DB
	openedAt time.Time
	results  map[string]cachedResult
}

type cachedResult struct {
	value any
	when  time.Time
}

func NewDBCache(dir string, ttl time.Duration) *DBCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DBCache{
		dir:     dir,
		ttl:     ttl,
		results: make(map[string]cachedResult),
	}
}

// Cached serves key from the results cache while fresh, otherwise runs
// query against the (possibly reopened) handle and stores the result.
// Double-checked so concurrent misses on one key run the query once.
func (c *DBCache) Cached(key string, query func(db *sql.DB) (any, error)) (any, error) {
	c.mu.RLock()
	if r, ok := c.results[key]; ok && time.Since(r.when) < c.ttl {
		c.mu.RUnlock()
		return r.value, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.results[key]; ok && time.Since(r.when) < c.ttl {
		return r.value, nil
	}

	db, err := c.ensureLocked()
	if err != nil {
		return nil, err
	}
	value, err := query(db)
	if err != nil {
		return nil, err
	}
	c.results[key] = cachedResult{value: value, when: time.Now()}
	return value, nil
}

func (c *DBCache) ensureLocked() (*sql.DB, error) {
	if c.db != nil && time.Since(c.openedAt) < c.ttl {
		return c.db, nil
	}

	start := time.Now()
	db, err := openArchive(c.dir)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = db
	c.openedAt = time.Now()
	klog.V(1).Infof("archive view over %s reopened in %s", c.dir, time.Since(start))
	return c.db, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// openArchive opens an in-memory DuckDB with a turns view over every
// parquet file under dir, per-game files and batch files alike. Staged
// writes carry a .tmp suffix so the glob never sees partial files.
func openArchive(dir string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "opening duckdb")
	}
	_, _ = db.Exec("PRAGMA threads=4")

	glob := filepath.Join(dir, "**", "*.parquet")
	stmt := `CREATE OR REPLACE VIEW turns AS
		SELECT * FROM read_parquet(['` + escapeSQLString(glob) + `'], filename=true, union_by_name=true)`
	if _, err := db.Exec(stmt); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "creating turns view over %s", glob)
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func querySummary(db *sql.DB) (Summary, error) {
	var s Summary
	if err := db.QueryRow(
		`SELECT COUNT(DISTINCT game_id) FROM turns`).Scan(&s.Games); err != nil {
		return s, errors.Wrap(err, "counting games")
	}
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM (SELECT DISTINCT game_id, turn FROM turns)`).Scan(&s.Turns); err != nil {
		return s, errors.Wrap(err, "counting turns")
	}

	rows, err := db.Query(
		`SELECT snake_id, COUNT(DISTINCT game_id) AS wins
		 FROM turns WHERE winner
		 GROUP BY snake_id
		 ORDER BY wins DESC, snake_id`)
	if err != nil {
		return s, errors.Wrap(err, "counting winners")
	}
	defer rows.Close()

	var won int64
	for rows.Next() {
		var w WinnerCount
		if err := rows.Scan(&w.SnakeID, &w.Wins); err != nil {
			return s, err
		}
		s.Winners = append(s.Winners, w)
		won += w.Wins
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	s.Draws = s.Games - won
	return s, nil
}

func queryControl(db *sql.DB, bucket int32) ([]ControlPoint, error) {
	rows, err := db.Query(
		`SELECT snake_id, ((turn // ?) * ?)::INTEGER AS bucket,
		        AVG(control_pct)::REAL AS control, COUNT(*) AS samples
		 FROM turns
		 WHERE alive
		 GROUP BY snake_id, bucket
		 ORDER BY bucket, snake_id`, bucket, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "querying control")
	}
	defer rows.Close()

	points := make([]ControlPoint, 0, 128)
	for rows.Next() {
		var p ControlPoint
		if err := rows.Scan(&p.SnakeID, &p.Bucket, &p.Control, &p.Samples); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func queryLengths(db *sql.DB, bucket int32) ([]LengthBucket, error) {
	rows, err := db.Query(
		`WITH games AS (
			SELECT game_id, MAX(turn) AS length FROM turns GROUP BY game_id
		)
		SELECT ((length // ?) * ?)::INTEGER AS bucket, COUNT(*) AS games
		FROM games
		GROUP BY bucket
		ORDER BY bucket`, bucket, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "querying lengths")
	}
	defer rows.Close()

	out := make([]LengthBucket, 0, 64)
	for rows.Next() {
		var b LengthBucket
		if err := rows.Scan(&b.Bucket, &b.Games); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func queryGames(db *sql.DB, limit int) ([]GameSummary, error) {
	// batch files are named by nanosecond timestamp, so the filename sort
	// puts the newest archives first
	rows, err := db.Query(
		`SELECT game_id,
		        MIN(source)::VARCHAR AS source,
		        MAX(turn)::INTEGER AS turns,
		        MIN(width)::INTEGER AS width,
		        MIN(height)::INTEGER AS height,
		        COALESCE(MAX(CASE WHEN winner THEN snake_id END), '') AS winner,
		        MIN(filename)::VARCHAR AS file
		 FROM turns
		 GROUP BY game_id
		 ORDER BY file DESC, game_id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying games")
	}
	defer rows.Close()

	out := make([]GameSummary, 0, limit)
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.Source, &g.Turns, &g.Width, &g.Height, &g.Winner, &g.File); err != nil {
			return nil, err
		}
		g.File = filepath.Base(g.File)
		out = append(out, g)
	}
	return out, rows.Err()
}
