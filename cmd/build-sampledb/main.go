// build-sampledb loads JSON table files into a Badger catalog so the
// metricforge CLI can serve queries from persistent storage.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jnyinglis/metricforge/metrics/storage"
)

func main() {
	var tablesDir string
	var dbPath string

	flag.StringVar(&tablesDir, "tables", "", "directory of <table>.json row files (required)")
	flag.StringVar(&dbPath, "db", "catalog.db", "badger catalog path to create")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -tables ./data [-db catalog.db]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Builds a Badger table catalog from JSON row files.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if tablesDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	tables, err := storage.LoadJSONDir(tablesDir)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read tables")
	}
	if len(tables) == 0 {
		logrus.Fatal("no .json table files found")
	}

	catalog, err := storage.OpenBadger(dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open catalog")
	}
	defer catalog.Close()

	for _, name := range tables.TableNames() {
		if err := catalog.PutTable(name, tables[name]); err != nil {
			logrus.WithError(err).WithField("table", name).Fatal("failed to store table")
		}
	}

	logrus.WithFields(logrus.Fields{
		"tables": len(tables),
		"path":   dbPath,
	}).Info("catalog built")
}
