package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	type TEXT NOT NULL,
	port INTEGER NOT NULL DEFAULT 0,
	proxy_json TEXT,
	auto_start INTEGER NOT NULL DEFAULT 0,
	redis_mode TEXT NOT NULL DEFAULT 'shared',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const keepAliveKey = "redis_keep_alive"

// Store provides access to instance records and daemon settings.
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize registry schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for collaborators sharing the file.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type instanceRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Path      string         `db:"path"`
	Type      string         `db:"type"`
	Port      int            `db:"port"`
	ProxyJSON sql.NullString `db:"proxy_json"`
	AutoStart bool           `db:"auto_start"`
	RedisMode string         `db:"redis_mode"`
}

func (r instanceRow) record() (InstanceRecord, error) {
	rec := InstanceRecord{
		ID:        r.ID,
		Name:      r.Name,
		Path:      r.Path,
		Type:      InstanceType(r.Type),
		Port:      r.Port,
		AutoStart: r.AutoStart,
		RedisMode: RedisMode(r.RedisMode),
	}
	if r.ProxyJSON.Valid && r.ProxyJSON.String != "" {
		var proxy ProxyConfig
		if err := json.Unmarshal([]byte(r.ProxyJSON.String), &proxy); err != nil {
			return rec, fmt.Errorf("decode proxy for instance %s: %w", r.ID, err)
		}
		rec.Proxy = &proxy
	}
	return rec, nil
}

func proxyJSON(proxy *ProxyConfig) (sql.NullString, error) {
	if proxy == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(proxy)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// List returns all instance records ordered by creation time.
func (s *Store) List() ([]InstanceRecord, error) {
	var rows []instanceRow
	if err := s.db.Select(&rows, "SELECT id, name, path, type, port, proxy_json, auto_start, redis_mode FROM instances ORDER BY created_at"); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	records := make([]InstanceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get returns one record. sql.ErrNoRows is returned for unknown ids.
func (s *Store) Get(id string) (InstanceRecord, error) {
	var row instanceRow
	err := s.db.Get(&row, "SELECT id, name, path, type, port, proxy_json, auto_start, redis_mode FROM instances WHERE id = ?", id)
	if err != nil {
		return InstanceRecord{}, err
	}
	return row.record()
}

// Create inserts a new record.
func (s *Store) Create(rec InstanceRecord) error {
	proxy, err := proxyJSON(rec.Proxy)
	if err != nil {
		return fmt.Errorf("encode proxy: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO instances (id, name, path, type, port, proxy_json, auto_start, redis_mode) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Name, rec.Path, string(rec.Type), rec.Port, proxy, rec.AutoStart, string(rec.RedisMode),
	)
	if err != nil {
		return fmt.Errorf("create instance %s: %w", rec.Name, err)
	}
	return nil
}

// Rename updates an instance's display name.
func (s *Store) Rename(id, name string) error {
	return s.update(id, "UPDATE instances SET name = ? WHERE id = ?", name, id)
}

// UpdatePort writes back the effective port for an instance.
func (s *Store) UpdatePort(id string, port int) error {
	return s.update(id, "UPDATE instances SET port = ? WHERE id = ?", port, id)
}

// UpdateProxy replaces an instance's proxy descriptor. A nil proxy clears it.
func (s *Store) UpdateProxy(id string, proxy *ProxyConfig) error {
	encoded, err := proxyJSON(proxy)
	if err != nil {
		return fmt.Errorf("encode proxy: %w", err)
	}
	return s.update(id, "UPDATE instances SET proxy_json = ? WHERE id = ?", encoded, id)
}

// SetAutoStart updates an instance's auto-start flag.
func (s *Store) SetAutoStart(id string, autoStart bool) error {
	return s.update(id, "UPDATE instances SET auto_start = ? WHERE id = ?", autoStart, id)
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	return s.update(id, "DELETE FROM instances WHERE id = ?", id)
}

func (s *Store) update(id, query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RedisKeepAlive reads the persisted keep-alive override. Absent means false.
func (s *Store) RedisKeepAlive() (bool, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM settings WHERE key = ?", keepAliveKey)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read keep-alive setting: %w", err)
	}
	return value == "true", nil
}

// SetRedisKeepAlive persists the keep-alive override.
func (s *Store) SetRedisKeepAlive(keepAlive bool) error {
	value := "false"
	if keepAlive {
		value = "true"
	}
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		keepAliveKey, value,
	)
	if err != nil {
		return fmt.Errorf("write keep-alive setting: %w", err)
	}
	return nil
}
