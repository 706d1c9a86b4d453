package badger

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/atticfs/attic/pkg/tree"
)

// AllContentIDs returns the blob handles referenced by complete files.
func (s *BadgerStore) AllContentIDs(ctx context.Context) ([]tree.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []tree.ContentID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(filePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec fileRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Complete {
				ids = append(ids, rec.ContentID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveStalePending deletes pending files created before the cutoff.
func (s *BadgerStore) RemoveStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Collect first, then delete in one transaction; deleting under an
	// open iterator is not allowed.
	var stale []*fileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(filePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec fileRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if !rec.Complete && rec.CreatedAt.Before(cutoff) {
				staleCopy := rec
				stale = append(stale, &staleCopy)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range stale {
			if err := txn.Delete(keyFile(rec.ID)); err != nil {
				return err
			}
			if err := txn.Delete(keyChild(rec.Parent, rec.Name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}
