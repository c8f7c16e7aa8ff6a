package jpdict

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	metaKanji    = "version.kanji"
	metaRadicals = "version.radicals"
	metaLang     = "lang"
)

func openStore(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func removeStore(path string) error {
	if path == ":memory:" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

type storedMeta struct {
	versions DataVersions
	lang     string
}

func loadMeta(ctx context.Context, db *sql.DB) (storedMeta, error) {
	var meta storedMeta
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return meta, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, err
		}
		switch key {
		case metaKanji, metaRadicals:
			var v DataVersion
			if err := json.Unmarshal([]byte(value), &v); err != nil {
				return meta, fmt.Errorf("decode %s: %w", key, err)
			}
			if key == metaKanji {
				meta.versions.Kanji = &v
			} else {
				meta.versions.Radicals = &v
			}
		case metaLang:
			meta.lang = value
		}
	}
	return meta, rows.Err()
}

func putMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func putVersion(ctx context.Context, tx *sql.Tx, key string, v DataVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return putMeta(ctx, tx, key, string(data))
}

// replaceKanji swaps the full kanji table for records and returns the number
// of records skipped because they had no character.
func replaceKanji(ctx context.Context, db *sql.DB, records []KanjiRecord, version DataVersion) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kanji`); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO kanji (c, data) VALUES (?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	skipped := 0
	for _, rec := range records {
		if rec.Character == "" {
			skipped++
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, rec.Character, string(data)); err != nil {
			return 0, err
		}
	}
	if err := putVersion(ctx, tx, metaKanji, version); err != nil {
		return 0, err
	}
	if err := putMeta(ctx, tx, metaLang, version.Lang); err != nil {
		return 0, err
	}
	return skipped, tx.Commit()
}

func replaceRadicals(ctx context.Context, db *sql.DB, radicals []Radical, version DataVersion) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM radicals`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO radicals (id, data) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, rad := range radicals {
		data, err := json.Marshal(rad)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rad.ID, string(data)); err != nil {
			return err
		}
	}
	if err := putVersion(ctx, tx, metaRadicals, version); err != nil {
		return err
	}
	return tx.Commit()
}

func queryKanji(ctx context.Context, db *sql.DB, chars []string) ([]KanjiResult, error) {
	args := make([]any, len(chars))
	for i, c := range chars {
		args[i] = c
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chars)), ",")

	rows, err := db.QueryContext(ctx, `SELECT c, data FROM kanji WHERE c IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	found := make(map[string]KanjiRecord, len(chars))
	for rows.Next() {
		var c, data string
		if err := rows.Scan(&c, &data); err != nil {
			_ = rows.Close()
			return nil, err
		}
		var rec KanjiRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode kanji %s: %w", c, err)
		}
		found[c] = rec
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	var results []KanjiResult
	for _, c := range chars {
		rec, ok := found[c]
		if !ok {
			continue
		}
		rad, err := queryRadical(ctx, db, rec.RadicalID)
		if err != nil {
			return nil, err
		}
		results = append(results, KanjiResult{KanjiRecord: rec, Radical: rad})
	}
	return results, nil
}

func queryRadical(ctx context.Context, db *sql.DB, id int) (*Radical, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM radicals WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rad Radical
	if err := json.Unmarshal([]byte(data), &rad); err != nil {
		return nil, fmt.Errorf("decode radical %d: %w", id, err)
	}
	return &rad, nil
}
