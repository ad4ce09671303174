package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnyinglis/metricforge/metrics/executor"
)

func TestBadgerCatalogRoundTrip(t *testing.T) {
	catalog, err := OpenBadger(filepath.Join(t.TempDir(), "catalog"))
	require.NoError(t, err)
	defer catalog.Close()

	rows := []executor.Row{
		{"region_id": 1.0, "amount": 100.0},
		{"region_id": 1.0, "amount": 50.0},
		{"region_id": 2.0, "amount": 30.0},
	}
	require.NoError(t, catalog.PutTable("sales", rows))
	require.NoError(t, catalog.PutTable("regions", []executor.Row{
		{"region_id": 1.0, "name": "N"},
	}))

	names, err := catalog.TableNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"regions", "sales"}, names)

	got, err := catalog.Table("sales")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Insertion order survives storage.
	assert.Equal(t, 100.0, got[0]["amount"])
	assert.Equal(t, 30.0, got[2]["amount"])

	tables, err := catalog.Load()
	require.NoError(t, err)
	assert.Len(t, tables, 2)
	assert.Len(t, tables["sales"], 3)
}

func TestBadgerPutReplacesTable(t *testing.T) {
	catalog, err := OpenBadger(filepath.Join(t.TempDir(), "catalog"))
	require.NoError(t, err)
	defer catalog.Close()

	require.NoError(t, catalog.PutTable("sales", []executor.Row{
		{"amount": 1.0}, {"amount": 2.0},
	}))
	require.NoError(t, catalog.PutTable("sales", []executor.Row{
		{"amount": 3.0},
	}))

	got, err := catalog.Table("sales")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0]["amount"])
}

func TestMemoryCatalog(t *testing.T) {
	catalog := NewMemoryCatalog(nil)
	catalog.Put("sales", []executor.Row{{"amount": 1.0}})

	rows, err := catalog.Table("sales")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	names, err := catalog.TableNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, names)
}

func TestLoadJSONDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.json"),
		[]byte(`[{"region_id": 1, "amount": 100}, {"region_id": 2, "amount": 30}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	tables, err := LoadJSONDir(dir)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables["sales"], 2)
	// JSON numbers decode as float64, matching the engine's value model.
	assert.Equal(t, 100.0, tables["sales"][0]["amount"])
}
