package ruleset

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Register sqlite as database/sql driver
)

// ErrNotFound reports a store without a saved rule set.
var ErrNotFound = errors.New("rule set not found")

// DefaultName is the rule set name used when a SQL destination names none.
const DefaultName = "default"

// Store saves and loads one rule set.
type Store interface {
	Save(ctx context.Context, rs *RuleSet) error
	Load(ctx context.Context) (*RuleSet, error)
	Close() error
}

// OpenStore opens the destination dest. Paths ending in .db or .sqlite,
// optionally followed by #name, open a SQLStore; anything else is a
// FileStore. A .yaml or .yml file is always written as YAML.
func OpenStore(ctx context.Context, dest string, format Format) (Store, error) {
	path, name := dest, DefaultName
	if i := strings.LastIndexByte(dest, '#'); i >= 0 {
		path, name = dest[:i], dest[i+1:]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLStore(ctx, path, name, format)
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return &FileStore{Path: dest, Format: format}, nil
}

// FileStore keeps a rule set in a single file.
type FileStore struct {
	Path   string
	Format Format
}

// Save writes the rule set to a temporary file and renames it into place.
func (s *FileStore) Save(_ context.Context, rs *RuleSet) error {
	var buf bytes.Buffer
	if err := Save(&buf, rs, s.Format); err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, s.Path), "replace %s", s.Path)
}

// Load reads the rule set file.
func (s *FileStore) Load(_ context.Context) (*RuleSet, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, s.Path)
		}
		return nil, &LoadError{Err: errors.Wrapf(err, "open %s", s.Path)}
	}
	defer f.Close()
	return Load(f)
}

func (s *FileStore) Close() error { return nil }

const createRuleSets = `CREATE TABLE IF NOT EXISTS rulesets (
	name       TEXT PRIMARY KEY,
	stamp      TEXT NOT NULL,
	format     TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL
)`

// SQLStore keeps named rule sets in a SQLite database.
type SQLStore struct {
	DB     *sql.DB
	name   string
	format Format
}

// OpenSQLStore opens or creates the database at path.
func OpenSQLStore(ctx context.Context, path, name string, format Format) (*SQLStore, error) {
	if name == "" {
		name = DefaultName
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// SQLite: single writer, WAL mode for concurrent reads
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := db.ExecContext(ctx, createRuleSets); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create rulesets table")
	}
	return &SQLStore{DB: db, name: name, format: format}, nil
}

// Save stores the rule set under the store's name, replacing any earlier one.
func (s *SQLStore) Save(ctx context.Context, rs *RuleSet) error {
	var buf bytes.Buffer
	if err := Save(&buf, rs, s.format); err != nil {
		return err
	}
	format := s.format
	if format == "" {
		format = FormatJSON
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO rulesets (name, stamp, format, payload, created_at) VALUES (?1, ?2, ?3, ?4, ?5)
		 ON CONFLICT(name) DO UPDATE SET stamp = excluded.stamp, format = excluded.format,
		 payload = excluded.payload, created_at = excluded.created_at`,
		s.name, rs.Stamp, string(format), buf.Bytes(), rs.CreatedAt.UTC().Format(time.RFC3339))
	return errors.Wrapf(err, "save rule set %s", s.name)
}

// Load reads the rule set stored under the store's name. The stamp column
// is checked before the payload is decoded.
func (s *SQLStore) Load(ctx context.Context) (*RuleSet, error) {
	var stamp string
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT stamp, payload FROM rulesets WHERE name = ?1`, s.name).Scan(&stamp, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, s.name)
	}
	if err != nil {
		return nil, &LoadError{Err: errors.Wrapf(err, "query rule set %s", s.name)}
	}
	if stamp != Stamp {
		return nil, &VersionError{Found: stamp, Want: Stamp}
	}
	return Load(bytes.NewReader(payload))
}

// Names lists the stored rule sets.
func (s *SQLStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM rulesets ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list rule sets")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "scan rule set name")
		}
		names = append(names, n)
	}
	return names, errors.Wrap(rows.Err(), "list rule sets")
}

func (s *SQLStore) Close() error {
	return s.DB.Close()
}
