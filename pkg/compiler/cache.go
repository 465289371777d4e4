package compiler

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var cacheSchema string

// ArtifactCache is the sqlite-backed content-hash store behind every
// pipeline stage's "cached" / "recomputed" decision. Each stage keys its
// artifacts by (stage name, cache key) where the cache key is derived from
// an input hash; a hit means the stage's inputs haven't changed since the
// artifact was produced and the stored payload can be reused verbatim.
type ArtifactCache struct {
	db *sql.DB
}

// OpenArtifactCache opens (creating if necessary) the cache database at
// dbPath, with WAL journaling and a 5s busy timeout.
func OpenArtifactCache(dbPath string) (*ArtifactCache, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create cache directory: %w", err)
			}
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
			if err != nil && !os.IsExist(err) {
				return nil, fmt.Errorf("create cache file: %w", err)
			}
			if err == nil {
				f.Close()
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &ArtifactCache{db: db}, nil
}

func (c *ArtifactCache) Close() error {
	return c.db.Close()
}

// Get looks up a cached artifact by stage and input hash, decoding it into
// dest. It reports (found, error); found is false (with a nil error) on a
// plain cache miss.
func (c *ArtifactCache) Get(stage, inputHash string, dest any) (bool, error) {
	var payload []byte
	err := c.db.QueryRow(
		`SELECT payload FROM artifacts WHERE stage = ? AND cache_key = ?`,
		stage, inputHash,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query artifact cache: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode cached artifact for stage %q: %w", stage, err)
	}
	return true, nil
}

// Put stores v under (stage, inputHash), overwriting any prior artifact for
// the same key — a stage only ever has one live artifact per input hash.
func (c *ArtifactCache) Put(stage, inputHash string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact for stage %q: %w", stage, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO artifacts (stage, cache_key, input_hash, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT (stage, cache_key) DO UPDATE SET payload = excluded.payload, input_hash = excluded.input_hash, created_at = CURRENT_TIMESTAMP`,
		stage, inputHash, inputHash, payload,
	)
	if err != nil {
		return fmt.Errorf("write artifact cache: %w", err)
	}
	return nil
}

// Invalidate removes every cached artifact for a stage, forcing it (and
// anything downstream that depends on it) to recompute on the next run.
func (c *ArtifactCache) Invalidate(stage string) error {
	_, err := c.db.Exec(`DELETE FROM artifacts WHERE stage = ?`, stage)
	return err
}
