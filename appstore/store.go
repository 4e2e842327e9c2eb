// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package appstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/akira-foundation/akira/lib/clock"
	"github.com/akira-foundation/akira/lib/modhash"
	"github.com/akira-foundation/akira/lib/sqlitepool"
	"github.com/akira-foundation/akira/manifest"
)

// ErrNotFound is returned when no app with the given name is
// installed.
var ErrNotFound = errors.New("appstore: app not found")

const schema = `
CREATE TABLE IF NOT EXISTS apps (
	name         TEXT PRIMARY KEY,
	version      TEXT NOT NULL,
	digest       TEXT NOT NULL,
	manifest     TEXT NOT NULL,
	binary       BLOB NOT NULL,
	binary_size  INTEGER NOT NULL,
	installed_at INTEGER NOT NULL
);
`

// App is one installed application's metadata. The binary itself is
// returned separately by Get.
type App struct {
	Name        string
	Version     string
	Digest      modhash.Digest
	BinarySize  uint64
	InstalledAt time.Time
	Manifest    *manifest.Manifest
}

// Store is the SQLite-backed registry of installed apps. Binaries are
// zstd-compressed at rest and digest-verified on the way out.
type Store struct {
	pool    *sqlitepool.Pool
	clock   clock.Clock
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Config holds the parameters for opening an app store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the connection pool size. Zero means 4.
	PoolSize int

	// Clock supplies install timestamps. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Nil means slog.Default().
	Logger *slog.Logger
}

// Open creates or opens the app store database.
func Open(config Config) (*Store, error) {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("appstore: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("appstore: zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("appstore: zstd decoder: %w", err)
	}

	return &Store{
		pool:    pool,
		clock:   clk,
		logger:  logger,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Install stores a WASM binary under its manifest name, replacing any
// previous version. The manifest comes from the binary's embedded
// section, with manifestPath as the fallback for binaries built
// without one (empty to disable the fallback).
func (s *Store) Install(ctx context.Context, binary []byte, manifestPath string) (*App, error) {
	m, err := manifest.Load(binary, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("appstore: install: %w", err)
	}

	digest := modhash.Sum(binary)
	compressed := s.encoder.EncodeAll(binary, nil)

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("appstore: install %s: %w", m.Name, err)
	}

	app := &App{
		Name:        m.Name,
		Version:     m.Version,
		Digest:      digest,
		BinarySize:  uint64(len(binary)),
		InstalledAt: s.clock.Now(),
		Manifest:    m,
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("appstore: install %s: %w", m.Name, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO apps (name, version, digest, manifest, binary, binary_size, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			version = excluded.version,
			digest = excluded.digest,
			manifest = excluded.manifest,
			binary = excluded.binary,
			binary_size = excluded.binary_size,
			installed_at = excluded.installed_at
	`, &sqlitex.ExecOptions{
		Args: []any{
			app.Name,
			app.Version,
			app.Digest.String(),
			string(manifestJSON),
			compressed,
			int64(app.BinarySize),
			app.InstalledAt.UnixMilli(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("appstore: install %s: %w", m.Name, err)
	}

	s.logger.Info("installed app",
		"app", app.Name,
		"version", app.Version,
		"digest", app.Digest.Short(),
		"binary_size", app.BinarySize,
		"compressed_size", len(compressed),
	)
	return app, nil
}

// Get returns an installed app and its decompressed binary. The
// binary's digest is re-verified against the stored one; a mismatch
// means database corruption and is an error.
func (s *Store) Get(ctx context.Context, name string) (*App, []byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("appstore: get %s: %w", name, err)
	}
	defer s.pool.Put(conn)

	var app *App
	var compressed []byte
	err = sqlitex.Execute(conn, `
		SELECT version, digest, manifest, binary, binary_size, installed_at
		FROM apps WHERE name = ?
	`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			row, err := scanApp(name, stmt)
			if err != nil {
				return err
			}
			app = row
			compressed = make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, compressed)
			return nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("appstore: get %s: %w", name, err)
	}
	if app == nil {
		return nil, nil, fmt.Errorf("appstore: get %s: %w", name, ErrNotFound)
	}

	binary, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("appstore: get %s: decompressing: %w", name, err)
	}
	if got := modhash.Sum(binary); got != app.Digest {
		return nil, nil, fmt.Errorf("appstore: get %s: digest mismatch: stored %s, computed %s",
			name, app.Digest.Short(), got.Short())
	}
	return app, binary, nil
}

// List returns every installed app's metadata, ordered by name.
func (s *Store) List(ctx context.Context) ([]App, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("appstore: list: %w", err)
	}
	defer s.pool.Put(conn)

	var apps []App
	err = sqlitex.Execute(conn, `
		SELECT name, version, digest, manifest, binary_size, installed_at
		FROM apps ORDER BY name
	`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			digest, err := modhash.Parse(stmt.ColumnText(2))
			if err != nil {
				return fmt.Errorf("row %s: %w", stmt.ColumnText(0), err)
			}
			var m manifest.Manifest
			if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &m); err != nil {
				return fmt.Errorf("row %s: manifest: %w", stmt.ColumnText(0), err)
			}
			apps = append(apps, App{
				Name:        stmt.ColumnText(0),
				Version:     stmt.ColumnText(1),
				Digest:      digest,
				BinarySize:  uint64(stmt.ColumnInt64(4)),
				InstalledAt: time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
				Manifest:    &m,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("appstore: list: %w", err)
	}
	return apps, nil
}

// Remove uninstalls an app. Removing an unknown name is ErrNotFound.
func (s *Store) Remove(ctx context.Context, name string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("appstore: remove %s: %w", name, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM apps WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
	})
	if err != nil {
		return fmt.Errorf("appstore: remove %s: %w", name, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("appstore: remove %s: %w", name, ErrNotFound)
	}

	s.logger.Info("removed app", "app", name)
	return nil
}

// scanApp builds an App from a row of the per-name SELECT. Column
// order: version, digest, manifest, binary, binary_size, installed_at.
func scanApp(name string, stmt *sqlite.Stmt) (*App, error) {
	digest, err := modhash.Parse(stmt.ColumnText(1))
	if err != nil {
		return nil, fmt.Errorf("stored digest: %w", err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal([]byte(stmt.ColumnText(2)), &m); err != nil {
		return nil, fmt.Errorf("stored manifest: %w", err)
	}
	return &App{
		Name:        name,
		Version:     stmt.ColumnText(0),
		Digest:      digest,
		BinarySize:  uint64(stmt.ColumnInt64(4)),
		InstalledAt: time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
		Manifest:    &m,
	}, nil
}
