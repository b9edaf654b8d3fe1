// Package store persists compiled module images in SQLite, keyed by the
// SHA-256 of the source they were compiled from.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/kuro/vm"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

func storeLog() commonlog.Logger { return commonlog.GetLogger("kuro.store") }

// ErrNotFound indicates no image is stored under the requested hash.
var ErrNotFound = errors.New("module not found")

// Store handles SQLite storage for module images.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Key returns the content address of a source text.
func Key(source string) [32]byte {
	return vm.HashSource(source)
}

// Open opens (creating if needed) the module database at dbPath. The
// special path ":memory:" gives a private in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		hash TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		stored_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	storeLog().Debugf("opened module store %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores image under hash, replacing any previous image.
func (s *Store) Put(hash [32]byte, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO modules (hash, image, stored_at) VALUES (?, ?, ?)",
		hex.EncodeToString(hash[:]), image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}
	return nil
}

// Get returns the image stored under hash, or ErrNotFound.
func (s *Store) Get(hash [32]byte) ([]byte, error) {
	var image []byte
	err := s.db.QueryRow("SELECT image FROM modules WHERE hash = ?", hex.EncodeToString(hash[:])).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}
	return image, nil
}

// Delete removes the image stored under hash. Deleting a missing hash is
// not an error.
func (s *Store) Delete(hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM modules WHERE hash = ?", hex.EncodeToString(hash[:])); err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return nil
}

// Count returns the number of stored images.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM modules").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting modules: %w", err)
	}
	return n, nil
}

// Hashes lists every stored hash in ascending order.
func (s *Store) Hashes() ([][32]byte, error) {
	rows, err := s.db.Query("SELECT hash FROM modules ORDER BY hash")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var hashes [][32]byte
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning module hash: %w", err)
		}
		var h [32]byte
		if n, err := hex.Decode(h[:], []byte(text)); err != nil || n != len(h) {
			return nil, fmt.Errorf("corrupt module hash %q", text)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
