// Package snapshot persists raw typed-array contents together with their
// element kind so they can be recreated in any runtime later.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"

	"github.com/cryguy/xchg/internal/core"
)

// CompressThreshold is the payload size above which snapshots are stored
// brotli-compressed.
const CompressThreshold = 1024

const (
	encodingRaw    = "raw"
	encodingBrotli = "br"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	encoding   TEXT NOT NULL,
	payload    BLOB,
	created_at INTEGER NOT NULL
)`

// Info describes a stored snapshot without its payload.
type Info struct {
	Name       string           `json:"name" yaml:"name"`
	Kind       core.ElementKind `json:"kind" yaml:"kind"`
	Size       int              `json:"size" yaml:"size"`
	Compressed bool             `json:"compressed" yaml:"compressed"`
	CreatedAt  time.Time        `json:"created_at" yaml:"created_at"`
}

// Snapshot is a stored array: its kind and a copy of its bytes.
type Snapshot struct {
	Info
	Data []byte `json:"-" yaml:"-"`
}

// Store is a SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

// ValidateName rejects names that are empty, too long, or that could
// escape a directory when used as a file name by export tooling.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name must not be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("snapshot name too long")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("snapshot name contains path traversal")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("snapshot name contains path separator")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("snapshot name contains null byte")
	}
	return nil
}

// Open opens (or creates) the store at {dataDir}/snapshots/{name}.sqlite3.
func Open(dataDir, name string) (*Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(dataDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, name+".sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store %q: %w", name, err)
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	return newStore(db)
}

// OpenMemory creates an in-memory store, mostly for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory snapshot store: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores data under name, replacing any earlier snapshot.
func (s *Store) Save(ctx context.Context, name string, kind core.ElementKind, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: cannot snapshot %s", core.ErrUnsupportedKind, kind)
	}
	if len(data)%kind.Size() != 0 {
		return fmt.Errorf("%w: %d bytes is not a multiple of %s element size %d",
			core.ErrLengthMismatch, len(data), kind, kind.Size())
	}

	payload, encoding := data, encodingRaw
	if len(data) > CompressThreshold {
		compressed, err := compress(data)
		if err != nil {
			return fmt.Errorf("compressing snapshot %q: %w", name, err)
		}
		if len(compressed) < len(data) {
			payload, encoding = compressed, encodingBrotli
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, kind, size, encoding, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind, size = excluded.size, encoding = excluded.encoding,
			payload = excluded.payload, created_at = excluded.created_at`,
		name, kind.String(), len(data), encoding, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", name, err)
	}
	return nil
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, size, encoding, payload, created_at FROM snapshots WHERE name = ?`, name)

	var (
		kindName, encoding string
		size               int
		payload            []byte
		created            int64
	)
	if err := row.Scan(&kindName, &size, &encoding, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: snapshot %q", core.ErrNotFound, name)
		}
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	kind, err := core.ParseElementKind(kindName)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, err)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: snapshot %q stores %s", core.ErrUnsupportedKind, name, kind)
	}
	if size < 0 || size%kind.Size() != 0 {
		return nil, fmt.Errorf("snapshot %q: size %d is not a whole number of %s elements: %w",
			name, size, kind, core.ErrLengthMismatch)
	}

	data := payload
	if encoding == encodingBrotli {
		if data, err = decompress(payload, size); err != nil {
			return nil, fmt.Errorf("decompressing snapshot %q: %w", name, err)
		}
	}
	if len(data) != size {
		return nil, fmt.Errorf("snapshot %q: %w", name, &core.LengthMismatchError{Want: size, Got: len(data)})
	}

	return &Snapshot{
		Info: Info{
			Name:       name,
			Kind:       kind,
			Size:       size,
			Compressed: encoding == encodingBrotli,
			CreatedAt:  time.UnixMilli(created),
		},
		Data: data,
	}, nil
}

// List returns every stored snapshot ordered by name.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, size, encoding, created_at FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info               Info
			kindName, encoding string
			created            int64
		)
		if err := rows.Scan(&info.Name, &kindName, &info.Size, &encoding, &created); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if info.Kind, err = core.ParseElementKind(kindName); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", info.Name, err)
		}
		info.Compressed = encoding == encodingBrotli
		info.CreatedAt = time.UnixMilli(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: snapshot %q", core.ErrNotFound, name)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompress inflates at most size+1 bytes, enough to detect a payload
// larger than its recorded size without inflating all of it.
func decompress(data []byte, size int) ([]byte, error) {
	return io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(data)), int64(size)+1))
}
