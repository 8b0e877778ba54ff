// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucidity-foundation/lucidity/lib/sqlitepool"
)

// TrustedDevice is one approved remote device. A row exists only after
// a pairing request whose signature verified and whose approver said
// yes. Removal revokes trust at the next authentication handshake;
// sessions already authenticated are unaffected.
type TrustedDevice struct {
	PublicKey  PublicKey `json:"public_key"`
	UserEmail  string    `json:"user_email"`
	DeviceName string    `json:"device_name"`
	PairedAt   int64     `json:"paired_at"`
	LastSeen   *int64    `json:"last_seen,omitempty"`
}

// TrustStore is the durable set of approved device public keys, backed
// by SQLite. Writes are durable before the operation returns. The pool
// serializes writes (SQLite single-writer) while allowing concurrent
// reads from other sessions.
type TrustStore struct {
	pool *sqlitepool.Pool
}

const trustSchema = `
CREATE TABLE IF NOT EXISTS trusted_devices (
    public_key  TEXT PRIMARY KEY,
    user_email  TEXT NOT NULL,
    device_name TEXT NOT NULL,
    paired_at   INTEGER NOT NULL,
    last_seen   INTEGER
)`

// OpenTrustStore opens (creating if needed) the trust database at path.
// Use ":memory:" in tests.
func OpenTrustStore(path string, logger *slog.Logger) (*TrustStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, trustSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening trust store: %w", err)
	}
	return &TrustStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *TrustStore) Close() error {
	return s.pool.Close()
}

// Add inserts or replaces a device. Insertion implies approval.
func (s *TrustStore) Add(ctx context.Context, device TrustedDevice) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var lastSeen any
	if device.LastSeen != nil {
		lastSeen = *device.LastSeen
	}
	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO trusted_devices
		 (public_key, user_email, device_name, paired_at, last_seen)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			device.PublicKey.String(),
			device.UserEmail,
			device.DeviceName,
			device.PairedAt,
			lastSeen,
		}})
	if err != nil {
		return fmt.Errorf("adding trusted device: %w", err)
	}
	return nil
}

// Get returns the device for a public key, or nil if it is not trusted.
func (s *TrustStore) Get(ctx context.Context, key PublicKey) (*TrustedDevice, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var device *TrustedDevice
	err = sqlitex.Execute(conn,
		`SELECT public_key, user_email, device_name, paired_at, last_seen
		 FROM trusted_devices WHERE public_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row, err := scanDevice(stmt)
				if err != nil {
					return err
				}
				device = row
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("querying trusted device: %w", err)
	}
	return device, nil
}

// IsTrusted reports whether the key is in the store.
func (s *TrustStore) IsTrusted(ctx context.Context, key PublicKey) (bool, error) {
	device, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return device != nil, nil
}

// List returns every trusted device in insertion order.
func (s *TrustStore) List(ctx context.Context) ([]TrustedDevice, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var devices []TrustedDevice
	err = sqlitex.Execute(conn,
		`SELECT public_key, user_email, device_name, paired_at, last_seen
		 FROM trusted_devices ORDER BY rowid`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row, err := scanDevice(stmt)
				if err != nil {
					return err
				}
				devices = append(devices, *row)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}
	return devices, nil
}

// Remove deletes a device, revoking its trust. Returns whether a row
// was removed.
func (s *TrustStore) Remove(ctx context.Context, key PublicKey) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM trusted_devices WHERE public_key = ?`,
		&sqlitex.ExecOptions{Args: []any{key.String()}})
	if err != nil {
		return false, fmt.Errorf("removing trusted device: %w", err)
	}
	return conn.Changes() > 0, nil
}

// Touch updates a device's last_seen timestamp, called after each
// completed authentication.
func (s *TrustStore) Touch(ctx context.Context, key PublicKey, lastSeen int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE trusted_devices SET last_seen = ? WHERE public_key = ?`,
		&sqlitex.ExecOptions{Args: []any{lastSeen, key.String()}})
	if err != nil {
		return fmt.Errorf("touching trusted device: %w", err)
	}
	return nil
}

// Count returns the number of trusted devices.
func (s *TrustStore) Count(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM trusted_devices`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("counting trusted devices: %w", err)
	}
	return count, nil
}

// scanDevice reads one trusted_devices row.
func scanDevice(stmt *sqlite.Stmt) (*TrustedDevice, error) {
	key, err := ParsePublicKey(stmt.ColumnText(0))
	if err != nil {
		return nil, fmt.Errorf("trust store row has bad public key: %w", err)
	}
	device := &TrustedDevice{
		PublicKey:  key,
		UserEmail:  stmt.ColumnText(1),
		DeviceName: stmt.ColumnText(2),
		PairedAt:   stmt.ColumnInt64(3),
	}
	if stmt.ColumnType(4) != sqlite.TypeNull {
		lastSeen := stmt.ColumnInt64(4)
		device.LastSeen = &lastSeen
	}
	return device, nil
}
