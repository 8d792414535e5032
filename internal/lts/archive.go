package lts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/signalnine/matbench/internal/models"
)

// Exporter ships LTS payloads to a long-term store.
type Exporter interface {
	Export(ctx context.Context, payloads []*models.Payload) error
}

// ErrNotArchived is returned by Archive.Get for an unknown run id.
var ErrNotArchived = errors.New("payload not archived")

const archivePrefix = "lts/"

// Archive is a local embedded store of LTS payloads keyed by run id.
type Archive struct {
	db *badger.DB
}

// badgerLogger routes badger's own logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenArchive opens the archive stored in dir, creating it if needed. An
// empty dir opens an in-memory archive.
func OpenArchive(dir string, logger *slog.Logger) (*Archive, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func archiveKey(runID string) []byte {
	return []byte(archivePrefix + runID)
}

// Export stores every payload in one transaction, replacing earlier
// versions with the same run id.
func (a *Archive) Export(ctx context.Context, payloads []*models.Payload) error {
	return a.db.Update(func(txn *badger.Txn) error {
		for _, p := range payloads {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding payload %s: %w", p.Metadata.RunID, err)
			}
			if err := txn.Set(archiveKey(p.Metadata.RunID), data); err != nil {
				return fmt.Errorf("archiving payload %s: %w", p.Metadata.RunID, err)
			}
		}
		return nil
	})
}

func (a *Archive) Get(runID string) (*models.Payload, error) {
	var p models.Payload
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(archiveKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", runID, ErrNotArchived)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every archived payload in run id order.
func (a *Archive) List() ([]*models.Payload, error) {
	var out []*models.Payload
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(archivePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p models.Payload
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}
