package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/jnyinglis/metricforge/metrics/executor"
)

// Key layout: table/<name>/row/<seq> holds a JSON row; the sequence
// preserves insertion order, which the executor relies on for
// deterministic grouping.
const (
	tablePrefix = "table/"
	rowSegment  = "/row/"
)

// BadgerCatalog is a Catalog persisted in BadgerDB.
type BadgerCatalog struct {
	db  *badger.DB
	log *logrus.Entry
}

// OpenBadger opens (or creates) a Badger-backed catalog at path.
func OpenBadger(path string) (*BadgerCatalog, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logging is too chatty here

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	log := logrus.WithField("component", "storage.badger")
	log.WithField("path", path).Debug("catalog opened")

	return &BadgerCatalog{db: db, log: log}, nil
}

// Close releases the underlying database.
func (c *BadgerCatalog) Close() error {
	return c.db.Close()
}

// PutTable replaces a table's rows.
func (c *BadgerCatalog) PutTable(name string, rows []executor.Row) error {
	if err := c.deleteTable(name); err != nil {
		return err
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		for i, row := range rows {
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode row %d of %s: %w", i, name, err)
			}
			key := fmt.Sprintf("%s%s%s%012d", tablePrefix, name, rowSegment, i)
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store table %s: %w", name, err)
	}

	c.log.WithFields(logrus.Fields{"table": name, "rows": len(rows)}).Info("table stored")
	return nil
}

func (c *BadgerCatalog) deleteTable(name string) error {
	prefix := []byte(tablePrefix + name + rowSegment)
	return c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Table implements Catalog. Rows come back in stored order.
func (c *BadgerCatalog) Table(name string) ([]executor.Row, error) {
	prefix := []byte(tablePrefix + name + rowSegment)
	var rows []executor.Row

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var row executor.Row
				if err := json.Unmarshal(val, &row); err != nil {
					return fmt.Errorf("decode row in %s: %w", name, err)
				}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TableNames implements Catalog.
func (c *BadgerCatalog) TableNames() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tablePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, tablePrefix)
			if idx := strings.Index(rest, rowSegment); idx > 0 {
				name := rest[:idx]
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Load implements Catalog: materializes every stored table.
func (c *BadgerCatalog) Load() (executor.Tables, error) {
	names, err := c.TableNames()
	if err != nil {
		return nil, err
	}
	tables := make(executor.Tables, len(names))
	for _, name := range names {
		rows, err := c.Table(name)
		if err != nil {
			return nil, err
		}
		tables[name] = rows
	}
	c.log.WithField("tables", len(tables)).Debug("catalog loaded")
	return tables, nil
}
