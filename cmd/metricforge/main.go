package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/jnyinglis/metricforge/metrics/annotations"
	"github.com/jnyinglis/metricforge/metrics/executor"
	"github.com/jnyinglis/metricforge/metrics/explain"
	"github.com/jnyinglis/metricforge/metrics/model"
	"github.com/jnyinglis/metricforge/metrics/parser"
	"github.com/jnyinglis/metricforge/metrics/planner"
	"github.com/jnyinglis/metricforge/metrics/storage"
)

func main() {
	var modelPath string
	var tablesDir string
	var dbPath string
	var queryStr string
	var interactive bool
	var showExplain bool
	var showSQL bool
	var verbose bool

	flag.StringVar(&modelPath, "model", "", "semantic model YAML file (required)")
	flag.StringVar(&tablesDir, "tables", "", "directory of <table>.json row files")
	flag.StringVar(&dbPath, "db", "", "badger catalog path")
	flag.StringVar(&queryStr, "query", "", "run a single query declaration and exit")
	flag.BoolVar(&interactive, "i", false, "interactive mode")
	flag.BoolVar(&showExplain, "explain", false, "print the plan instead of executing")
	flag.BoolVar(&showSQL, "sql", false, "print the SQL rendering instead of executing")
	flag.BoolVar(&verbose, "verbose", false, "verbose mode (show execution annotations)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -model model.yaml [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "A semantic metrics engine over in-memory tables.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -model shop.yaml -tables ./data -i\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -model shop.yaml -db catalog.db -query 'query q { dimensions: region_name metrics: total_revenue }'\n", os.Args[0])
	}
	flag.Parse()

	if modelPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	m, errs := model.LoadFile(modelPath)
	if len(errs) > 0 {
		for _, err := range errs {
			logrus.WithError(err).Error("model error")
		}
		os.Exit(1)
	}

	tables, err := loadTables(tablesDir, dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load tables")
	}

	var collector *annotations.Collector
	if verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		collector = annotations.NewCollector(formatter.Handle)
	}

	app := &session{
		model:       m,
		tables:      tables,
		collector:   collector,
		showExplain: showExplain,
		showSQL:     showSQL,
	}

	switch {
	case queryStr != "":
		if !app.runInput(queryStr) {
			os.Exit(1)
		}
	case interactive:
		app.repl()
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadTables(tablesDir, dbPath string) (executor.Tables, error) {
	switch {
	case tablesDir != "":
		return storage.LoadJSONDir(tablesDir)
	case dbPath != "":
		catalog, err := storage.OpenBadger(dbPath)
		if err != nil {
			return nil, err
		}
		defer catalog.Close()
		return catalog.Load()
	default:
		return executor.Tables{}, nil
	}
}

type session struct {
	model       *model.Model
	tables      executor.Tables
	collector   *annotations.Collector
	showExplain bool
	showSQL     bool
}

// runInput parses one or more query declarations and runs each.
func (s *session) runInput(input string) bool {
	start := time.Now()
	file, errs := parser.ParseFile(input)
	if len(errs) > 0 {
		for _, perr := range errs {
			color.Red("%s", perr.Error())
		}
		return false
	}
	if s.collector.Enabled() {
		for _, decl := range file.Queries {
			s.collector.AddTiming(annotations.QueryParsed, start, map[string]interface{}{
				"query": decl.Name,
			})
		}
	}
	if len(file.Queries) == 0 {
		color.Yellow("no query declarations in input")
		return false
	}

	ok := true
	for _, decl := range file.Queries {
		if !s.runQuery(planner.FromQueryDecl(decl)) {
			ok = false
		}
	}
	return ok
}

func (s *session) runQuery(spec planner.QuerySpec) bool {
	if s.showExplain || s.showSQL {
		start := time.Now()
		plan, err := planner.BuildLogicalPlan(spec, s.model, planner.Options{})
		if err != nil {
			color.Red("plan error: %v", err)
			return false
		}
		if s.collector.Enabled() {
			s.collector.AddTiming(annotations.PlanCreated, start, map[string]interface{}{
				"root":       plan.RootID,
				"node_count": len(plan.Nodes),
			})
			s.collector.AddTiming(annotations.PlanPhases, start, map[string]interface{}{
				"eval_order": plan.MetricEvalOrder,
			})
		}
		if s.showExplain {
			fmt.Println(explain.Plan(plan, explain.Options{Verbose: true, ShowExpressions: true}))
		}
		if s.showSQL {
			fmt.Println(explain.SQL(plan))
		}
		return true
	}

	result := executor.RunQuery(spec, s.tables, s.model, executor.Options{Collector: s.collector})
	if result.Err != nil {
		color.Red("query error: %v", result.Err)
		return false
	}
	fmt.Println(executor.NewTableFormatter().FormatResult(result))
	fmt.Printf("(%0.2f ms)\n", result.ExecutionTimeMs)
	return true
}

func (s *session) repl() {
	fmt.Println("metricforge interactive mode")
	fmt.Println("Enter query declarations, or .help for commands")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	var buffer strings.Builder

	prompt := func() {
		if buffer.Len() > 0 {
			fmt.Print("... ")
		} else {
			fmt.Print("mf> ")
		}
	}

	prompt()
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if buffer.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			if !s.command(trimmed) {
				return
			}
			prompt()
			continue
		}

		buffer.WriteString(line)
		buffer.WriteByte('\n')

		// A query block completes at its closing brace.
		if strings.Count(buffer.String(), "{") > 0 &&
			strings.Count(buffer.String(), "{") == strings.Count(buffer.String(), "}") {
			s.runInput(buffer.String())
			buffer.Reset()
		}
		prompt()
	}
}

// command handles a dot-command; returning false exits the REPL.
func (s *session) command(cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ".quit", ".exit":
		return false

	case ".help":
		fmt.Println(".tables          list loaded tables")
		fmt.Println(".metrics         list model metrics")
		fmt.Println(".dimensions      list model attributes")
		fmt.Println(".explain on|off  toggle plan output")
		fmt.Println(".sql on|off      toggle SQL output")
		fmt.Println(".quit            exit")

	case ".tables":
		for _, name := range s.tables.TableNames() {
			fmt.Printf("%s (%d rows)\n", name, len(s.tables[name]))
		}

	case ".metrics":
		for _, name := range s.model.MetricNames() {
			def, _ := s.model.Metric(name)
			anchor := ""
			if def.BaseFact != "" {
				anchor = " on " + def.BaseFact
			}
			fmt.Printf("%s%s = %s\n", name, anchor, parser.FormatExpr(def.Expr))
		}

	case ".dimensions":
		for _, name := range s.model.AttributeNames() {
			attr, _ := s.model.Attribute(name)
			fmt.Printf("%s -> %s.%s\n", name, attr.Table, attr.Column)
		}

	case ".explain":
		s.showExplain = len(fields) > 1 && fields[1] == "on"
		fmt.Printf("explain: %v\n", s.showExplain)

	case ".sql":
		s.showSQL = len(fields) > 1 && fields[1] == "on"
		fmt.Printf("sql: %v\n", s.showSQL)

	default:
		color.Yellow("unknown command: %s", fields[0])
	}
	return true
}
