// Package badger implements the tree store on BadgerDB for persistence
// across restarts. It mirrors the in-memory store's domain behavior exactly;
// only the storage model differs.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/atticfs/attic/pkg/tree"
)

// BadgerStore implements tree.Store using BadgerDB.
//
// Thread safety: badger transactions give snapshot isolation, but the
// domain operations here are read-modify-write sequences that must not
// interleave (allocate id, check sibling, insert). A single RWMutex
// serializes mutations the same way the memory store does; queries take the
// read lock and run in read-only transactions.
type BadgerStore struct {
	mu sync.RWMutex

	db    *badger.DB
	alloc tree.Allocator
	authz tree.Authorizer

	// now is the clock, swappable by tests.
	now func() time.Time
}

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string

	// InMemory runs badger without disk persistence. Used by tests.
	InMemory bool

	// Authz is the permission resolver.
	Authz tree.Authorizer

	// BadgerOptions overrides the defaults entirely when non-nil.
	BadgerOptions *badger.Options
}

// NewBadgerStore opens the database and returns the store.
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.Authz == nil {
		return nil, fmt.Errorf("permission resolver is required")
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		opts = badger.DefaultOptions(config.DBPath)
		opts = opts.WithInMemory(config.InMemory)
		opts = opts.WithLoggingLevel(badger.WARNING)
		// Records are small JSON documents; compression is not worth the
		// CPU on this workload.
		opts = opts.WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerStore{
		db:    db,
		authz: config.Authz,
		now:   time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// dirRecord is the persisted form of a directory. Grant sets are stored as
// sorted slices; the map form only exists in memory.
type dirRecord struct {
	ID         tree.ID   `json:"id"`
	Parent     tree.ID   `json:"parent"`
	Name       string    `json:"name"`
	Owner      tree.ID   `json:"owner"`
	Read       []tree.ID `json:"read"`
	Write      []tree.ID `json:"write"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// fileRecord is the persisted form of a file.
type fileRecord struct {
	ID          tree.ID        `json:"id"`
	Parent      tree.ID        `json:"parent"`
	Name        string         `json:"name"`
	Owner       tree.ID        `json:"owner"`
	Complete    bool           `json:"complete"`
	Size        uint64         `json:"size"`
	ContentID   tree.ContentID `json:"content_id"`
	ContentType string         `json:"content_type"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
}

func dirToRecord(d *tree.Directory) *dirRecord {
	return &dirRecord{
		ID:         d.ID,
		Parent:     d.Parent,
		Name:       d.Name,
		Owner:      d.Owner,
		Read:       d.ReadGroups.Sorted(),
		Write:      d.WriteGroups.Sorted(),
		CreatedAt:  d.CreatedAt,
		ModifiedAt: d.ModifiedAt,
	}
}

func recordToDir(r *dirRecord) *tree.Directory {
	return &tree.Directory{
		ID:          r.ID,
		Parent:      r.Parent,
		Name:        r.Name,
		Owner:       r.Owner,
		ReadGroups:  tree.NewGrantSet(r.Read...),
		WriteGroups: tree.NewGrantSet(r.Write...),
		CreatedAt:   r.CreatedAt,
		ModifiedAt:  r.ModifiedAt,
	}
}

func fileToRecord(f *tree.File) *fileRecord {
	return &fileRecord{
		ID:          f.ID,
		Parent:      f.Parent,
		Name:        f.Name,
		Owner:       f.Owner,
		Complete:    f.Complete,
		Size:        f.Size,
		ContentID:   f.ContentID,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
		ModifiedAt:  f.ModifiedAt,
	}
}

func recordToFile(r *fileRecord) *tree.File {
	return &tree.File{
		ID:          r.ID,
		Parent:      r.Parent,
		Name:        r.Name,
		Owner:       r.Owner,
		Complete:    r.Complete,
		Size:        r.Size,
		ContentID:   r.ContentID,
		ContentType: r.ContentType,
		CreatedAt:   r.CreatedAt,
		ModifiedAt:  r.ModifiedAt,
	}
}

// getDir reads a directory inside a transaction. Returns NotFound for
// missing keys.
func getDir(txn *badger.Txn, id tree.ID) (*tree.Directory, error) {
	item, err := txn.Get(keyDir(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", id, err)
	}

	var rec dirRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode directory %s: %w", id, err)
	}
	return recordToDir(&rec), nil
}

// getFile reads a file inside a transaction.
func getFile(txn *badger.Txn, id tree.ID) (*tree.File, error) {
	item, err := txn.Get(keyFile(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.NewError(tree.ErrNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", id, err)
	}

	var rec fileRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode file %s: %w", id, err)
	}
	return recordToFile(&rec), nil
}

// setDir writes a directory record inside a transaction.
func setDir(txn *badger.Txn, d *tree.Directory) error {
	data, err := json.Marshal(dirToRecord(d))
	if err != nil {
		return fmt.Errorf("failed to encode directory %s: %w", d.ID, err)
	}
	return txn.Set(keyDir(d.ID), data)
}

// setFile writes a file record inside a transaction.
func setFile(txn *badger.Txn, f *tree.File) error {
	data, err := json.Marshal(fileToRecord(f))
	if err != nil {
		return fmt.Errorf("failed to encode file %s: %w", f.ID, err)
	}
	return txn.Set(keyFile(f.ID), data)
}

// childID resolves a (parent, name) pair to the child's id. Returns
// NotFound for missing entries.
func childID(txn *badger.Txn, parent tree.ID, name string) (tree.ID, error) {
	item, err := txn.Get(keyChild(parent, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, tree.NewError(tree.ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read child index: %w", err)
	}

	var id tree.ID
	if err := item.Value(func(val []byte) error {
		parsed, perr := tree.ParseID(string(val))
		id = parsed
		return perr
	}); err != nil {
		return 0, fmt.Errorf("failed to decode child index: %w", err)
	}
	return id, nil
}

// childExists reports whether the parent has a child of either kind with
// the given name.
func childExists(txn *badger.Txn, parent tree.ID, name string) (bool, error) {
	_, err := txn.Get(keyChild(parent, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read child index: %w", err)
	}
	return true, nil
}

// childEntries returns the (name, id) pairs under a parent. Badger iterates
// keys in byte order, so the result is already name-sorted.
func childEntries(txn *badger.Txn, parent tree.ID) ([]childEntry, error) {
	prefix := keyChildScan(parent)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var entries []childEntry
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		name := strings.TrimPrefix(string(item.Key()), string(prefix))

		var id tree.ID
		if err := item.Value(func(val []byte) error {
			parsed, perr := tree.ParseID(string(val))
			id = parsed
			return perr
		}); err != nil {
			return nil, fmt.Errorf("failed to decode child index: %w", err)
		}
		entries = append(entries, childEntry{name: name, id: id})
	}
	return entries, nil
}

type childEntry struct {
	name string
	id   tree.ID
}

// allocateID draws a fresh id, consulting the tombstone index, and reserves
// it in the same transaction. Must be called with the write lock held.
func (s *BadgerStore) allocateID(txn *badger.Txn) (tree.ID, error) {
	id, err := s.alloc.Allocate(func(id tree.ID) bool {
		_, gerr := txn.Get(keyUsed(id))
		return !errors.Is(gerr, badger.ErrKeyNotFound)
	})
	if err != nil {
		return 0, err
	}
	if err := txn.Set(keyUsed(id), nil); err != nil {
		return 0, fmt.Errorf("failed to reserve id: %w", err)
	}
	return id, nil
}

// validateName matches the memory store's rules exactly; the key schema is
// what reserves ':' for every implementation.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/:") {
		return tree.NewError(tree.ErrNameInvalid, name)
	}
	return nil
}

// fileAccessMeta builds the file's effective access metadata from its owner
// and the parent directory's grants.
func fileAccessMeta(txn *badger.Txn, f *tree.File) (tree.AccessMeta, error) {
	meta := tree.AccessMeta{Owner: f.Owner}
	parent, err := getDir(txn, f.Parent)
	if err != nil {
		if tree.IsCode(err, tree.ErrNotFound) {
			return meta, nil
		}
		return meta, err
	}
	meta.ReadGroups = parent.ReadGroups
	meta.WriteGroups = parent.WriteGroups
	return meta, nil
}

// GetDirectory returns the directory with the given id.
func (s *BadgerStore) GetDirectory(ctx context.Context, id tree.ID) (*tree.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var dir *tree.Directory
	err := s.db.View(func(txn *badger.Txn) error {
		var verr error
		dir, verr = getDir(txn, id)
		return verr
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// GetFile returns the file with the given id.
func (s *BadgerStore) GetFile(ctx context.Context, id tree.ID) (*tree.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var f *tree.File
	err := s.db.View(func(txn *badger.Txn) error {
		var verr error
		f, verr = getFile(txn, id)
		return verr
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Healthcheck verifies the database accepts reads.
func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return nil
}
