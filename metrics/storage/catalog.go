// Package storage supplies row data to the executor. Catalogs sit
// outside the core engine: whatever the backing store, a scan always
// materializes complete in-memory tables before execution.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jnyinglis/metricforge/metrics/executor"
)

// Catalog hands complete tables to the executor.
type Catalog interface {
	// Table returns a table's rows in insertion order.
	Table(name string) ([]executor.Row, error)
	// TableNames lists the stored tables, sorted.
	TableNames() ([]string, error)
	// Load materializes every table.
	Load() (executor.Tables, error)
}

// MemoryCatalog is a Catalog over an in-memory table map.
type MemoryCatalog struct {
	tables executor.Tables
}

// NewMemoryCatalog wraps a table map.
func NewMemoryCatalog(tables executor.Tables) *MemoryCatalog {
	if tables == nil {
		tables = make(executor.Tables)
	}
	return &MemoryCatalog{tables: tables}
}

// Table implements Catalog.
func (c *MemoryCatalog) Table(name string) ([]executor.Row, error) {
	return c.tables[name], nil
}

// TableNames implements Catalog.
func (c *MemoryCatalog) TableNames() ([]string, error) {
	return c.tables.TableNames(), nil
}

// Load implements Catalog.
func (c *MemoryCatalog) Load() (executor.Tables, error) {
	return c.tables, nil
}

// Put replaces a table's rows.
func (c *MemoryCatalog) Put(name string, rows []executor.Row) {
	c.tables[name] = rows
}

// LoadJSONDir reads every *.json file in a directory as a table named
// after the file. Each file holds a JSON array of row objects.
func LoadJSONDir(dir string) (executor.Tables, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read table dir: %w", err)
	}

	tables := make(executor.Tables)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
		var rows []executor.Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("parse table %s: %w", name, err)
		}
		tables[strings.TrimSuffix(name, ".json")] = rows
	}

	return tables, nil
}
