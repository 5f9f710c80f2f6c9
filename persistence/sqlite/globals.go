package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.gazette.dev/docstore/persistence"
)

// WriteGlobal durably sets the value of global |key|.
func (s *Store) WriteGlobal(ctx context.Context, key persistence.GlobalKey, value json.RawMessage) error {
	if key == "" {
		return &persistence.ValidationError{Field: "GlobalKey", Reason: "expected a non-empty key"}
	} else if !json.Valid(value) {
		return &persistence.ValidationError{Field: "global value", Reason: "not valid JSON"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return persistence.ErrClosed
	}
	if _, err := s.writeConn.ExecContext(ctx, `
		INSERT INTO persistence_globals (key, json_value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET json_value = excluded.json_value`,
		string(key), []byte(value),
	); err != nil {
		return persistence.NewStorageError("writing global", err)
	}
	return nil
}

// GetGlobal returns the value of global |key|, or nil if it isn't set.
func (s *Store) GetGlobal(ctx context.Context, key persistence.GlobalKey) (json.RawMessage, error) {
	if s.closed.Load() {
		return nil, persistence.ErrClosed
	}
	var value []byte
	var err = s.readDB.QueryRowContext(ctx,
		`SELECT json_value FROM persistence_globals WHERE key = ?`, string(key)).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, persistence.NewStorageError("reading global", err)
	}
	return json.RawMessage(value), nil
}
