package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/internal/dcontext"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_locator TEXT NOT NULL,
	levels TEXT NOT NULL,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	uuid TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS copies (
	copy_id INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_uuid TEXT NOT NULL,
	adapter_id TEXT NOT NULL,
	locator TEXT NOT NULL,
	checksum TEXT NOT NULL,
	adapter_type TEXT NOT NULL,
	canonical BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS levels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	frequency INTEGER NOT NULL,
	adapters_json TEXT NOT NULL,
	copies INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS object_metadata_schema (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	object_uuid TEXT NOT NULL,
	field_name TEXT NOT NULL,
	field_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS object_metadata (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	object_uuid TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL
);
`

// SQLiteStore is the Store implementation backed by a single SQLite3
// database file, matching original_source/libreary/metadata/sqlite3.py's
// schema and method surface.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the SQLite3 catalog at path,
// running the idempotent schema creation.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("metadata: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: creating schema in %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is reachable, for use as a
// health.Checker.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) AddLevel(ctx context.Context, name string, frequencySeconds int, adapters []libreary.LevelAdapterRef, copiesPerAdapter int) error {
	dcontext.GetLogger(ctx).Debugf("metadata: adding level %q", name)
	raw, err := json.Marshal(adapters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"insert into levels (name, frequency, adapters_json, copies) values (?, ?, ?, ?)",
		name, frequencySeconds, string(raw), copiesPerAdapter)
	return err
}

func (s *SQLiteStore) GetLevel(ctx context.Context, name string) (*libreary.Level, error) {
	row := s.db.QueryRowContext(ctx,
		"select id, name, frequency, adapters_json, copies from levels where name = ?", name)
	return scanLevel(row)
}

func (s *SQLiteStore) ListLevels(ctx context.Context) ([]libreary.Level, error) {
	rows, err := s.db.QueryContext(ctx, "select id, name, frequency, adapters_json, copies from levels")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []libreary.Level
	for rows.Next() {
		lvl, err := scanLevelRows(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, *lvl)
	}
	return levels, rows.Err()
}

func (s *SQLiteStore) DeleteLevel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "delete from levels where name = ?", name); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, "select uuid, levels from resources where levels = ? or levels like ? or levels like ? or levels like ?",
		name, name+",%", "%,"+name, "%,"+name+",%")
	if err != nil {
		return err
	}
	type orphan struct{ uuid, levels string }
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.uuid, &o.levels); err != nil {
			rows.Close()
			return err
		}
		orphans = append(orphans, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range orphans {
		remaining := removeLevelName(strings.Split(o.levels, ","), name)
		if _, err := tx.ExecContext(ctx, "update resources set levels = ? where uuid = ?", strings.Join(remaining, ","), o.uuid); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func removeLevelName(levels []string, name string) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		if l != "" && l != name {
			out = append(out, l)
		}
	}
	return out
}

func (s *SQLiteStore) InsertResource(ctx context.Context, r libreary.Resource) error {
	dcontext.GetLogger(ctx).Debugf("metadata: ingesting resource %s (%s)", r.UUID, r.Filename)
	_, err := s.db.ExecContext(ctx,
		"insert into resources (canonical_locator, levels, filename, checksum, uuid, description) values (?, ?, ?, ?, ?, ?)",
		r.CanonicalLocator, strings.Join(r.Levels, ","), r.Filename, r.Checksum, r.UUID, r.Description)
	return err
}

func (s *SQLiteStore) GetResource(ctx context.Context, uuid string) (*libreary.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		"select id, canonical_locator, levels, filename, checksum, uuid, description from resources where uuid = ?", uuid)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, libreary.ResourceNotIngestedError{ResourceUUID: uuid}
	}
	return r, err
}

func (s *SQLiteStore) ListResources(ctx context.Context) ([]libreary.Resource, error) {
	rows, err := s.db.QueryContext(ctx, "select id, canonical_locator, levels, filename, checksum, uuid, description from resources")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []libreary.Resource
	for rows.Next() {
		r, err := scanResourceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteResource(ctx context.Context, uuid string) error {
	_, err := s.db.ExecContext(ctx, "delete from resources where uuid = ?", uuid)
	return err
}

func (s *SQLiteStore) UpdateResourceLevels(ctx context.Context, uuid string, levels []string) error {
	_, err := s.db.ExecContext(ctx, "update resources set levels = ? where uuid = ?", strings.Join(levels, ","), uuid)
	return err
}

func (s *SQLiteStore) UpdateResourceChecksum(ctx context.Context, uuid, checksum string) error {
	_, err := s.db.ExecContext(ctx, "update resources set checksum = ? where uuid = ?", checksum, uuid)
	return err
}

func (s *SQLiteStore) UpdateResourceCanonicalLocator(ctx context.Context, uuid, locator string) error {
	_, err := s.db.ExecContext(ctx, "update resources set canonical_locator = ? where uuid = ?", locator, uuid)
	return err
}

func (s *SQLiteStore) Search(ctx context.Context, term string) ([]libreary.Resource, error) {
	like := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx,
		"select id, canonical_locator, levels, filename, checksum, uuid, description from resources "+
			"where filename like ? or canonical_locator like ? or uuid like ? or description like ?",
		like, like, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []libreary.Resource
	for rows.Next() {
		r, err := scanResourceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddCopy(ctx context.Context, c libreary.Copy) error {
	dcontext.GetLogger(ctx).Debugf("metadata: recording copy of %s on adapter %s (canonical=%v)", c.ResourceUUID, c.AdapterID, c.Canonical)
	_, err := s.db.ExecContext(ctx,
		"insert into copies (resource_uuid, adapter_id, locator, checksum, adapter_type, canonical) values (?, ?, ?, ?, ?, ?)",
		c.ResourceUUID, c.AdapterID, c.Locator, c.Checksum, c.AdapterType, c.Canonical)
	return err
}

func (s *SQLiteStore) GetCopy(ctx context.Context, uuid, adapterID string) (*libreary.Copy, error) {
	row := s.db.QueryRowContext(ctx,
		"select copy_id, resource_uuid, adapter_id, locator, checksum, adapter_type, canonical from copies "+
			"where resource_uuid = ? and adapter_id = ? and canonical = 0", uuid, adapterID)
	c, err := scanCopy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetCanonicalCopy(ctx context.Context, uuid string) (*libreary.Copy, error) {
	row := s.db.QueryRowContext(ctx,
		"select copy_id, resource_uuid, adapter_id, locator, checksum, adapter_type, canonical from copies "+
			"where resource_uuid = ? and canonical = 1", uuid)
	c, err := scanCopy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) ListCopies(ctx context.Context, uuid string) ([]libreary.Copy, error) {
	rows, err := s.db.QueryContext(ctx,
		"select copy_id, resource_uuid, adapter_id, locator, checksum, adapter_type, canonical from copies where resource_uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []libreary.Copy
	for rows.Next() {
		c, err := scanCopyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCopy(ctx context.Context, uuid, adapterID string, canonical bool) error {
	_, err := s.db.ExecContext(ctx,
		"delete from copies where resource_uuid = ? and adapter_id = ? and canonical = ?", uuid, adapterID, canonical)
	return err
}

func (s *SQLiteStore) AddMetadataSchema(ctx context.Context, uuid string, schemaFields []libreary.ObjectMetadataSchema) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, f := range schemaFields {
		if _, err := tx.ExecContext(ctx,
			"insert into object_metadata_schema (object_uuid, field_name, field_type) values (?, ?, ?)",
			uuid, f.FieldName, f.FieldType); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, uuid, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"delete from object_metadata where object_uuid = ? and key = ?", uuid, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"insert into object_metadata (object_uuid, key, value) values (?, ?, ?)", uuid, key, value); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, uuid string) ([]libreary.ObjectMetadataEntry, error) {
	rows, err := s.db.QueryContext(ctx, "select object_uuid, key, value from object_metadata where object_uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []libreary.ObjectMetadataEntry
	for rows.Next() {
		var e libreary.ObjectMetadataEntry
		if err := rows.Scan(&e.ResourceUUID, &e.FieldName, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMetadata(ctx context.Context, uuid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "delete from object_metadata where object_uuid = ?", uuid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "delete from object_metadata_schema where object_uuid = ?", uuid); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*libreary.Resource, error) {
	var r libreary.Resource
	var levels string
	if err := row.Scan(&r.ID, &r.CanonicalLocator, &levels, &r.Filename, &r.Checksum, &r.UUID, &r.Description); err != nil {
		return nil, err
	}
	r.Levels = splitLevels(levels)
	return &r, nil
}

func scanResourceRows(rows *sql.Rows) (*libreary.Resource, error) {
	return scanResource(rows)
}

func splitLevels(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func scanCopy(row rowScanner) (*libreary.Copy, error) {
	var c libreary.Copy
	if err := row.Scan(&c.ID, &c.ResourceUUID, &c.AdapterID, &c.Locator, &c.Checksum, &c.AdapterType, &c.Canonical); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCopyRows(rows *sql.Rows) (*libreary.Copy, error) {
	return scanCopy(rows)
}

func scanLevel(row rowScanner) (*libreary.Level, error) {
	var l libreary.Level
	var adaptersJSON string
	var freqSeconds int
	if err := row.Scan(&l.ID, &l.Name, &freqSeconds, &adaptersJSON, &l.CopiesPerAdapter); err != nil {
		if err == sql.ErrNoRows {
			return nil, libreary.ConfigurationError{Field: "level", Reason: "not found"}
		}
		return nil, err
	}
	l.CheckFrequency = time.Duration(freqSeconds) * time.Second
	if err := json.Unmarshal([]byte(adaptersJSON), &l.Adapters); err != nil {
		return nil, fmt.Errorf("metadata: decoding adapters for level %q: %w", l.Name, err)
	}
	return &l, nil
}

func scanLevelRows(rows *sql.Rows) (*libreary.Level, error) {
	return scanLevel(rows)
}
