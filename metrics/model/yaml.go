package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jnyinglis/metricforge/metrics/parser"
)

// fileSpec is the YAML shape of a declared model. Metric expressions are
// DSL text, parsed at load time.
type fileSpec struct {
	Facts []struct {
		Name  string `yaml:"name"`
		Table string `yaml:"table"`
	} `yaml:"facts"`
	Dimensions []struct {
		Name  string `yaml:"name"`
		Table string `yaml:"table"`
	} `yaml:"dimensions"`
	Attributes []struct {
		Name   string `yaml:"name"`
		Table  string `yaml:"table"`
		Column string `yaml:"column"`
	} `yaml:"attributes"`
	Joins []struct {
		Fact         string `yaml:"fact"`
		Dimension    string `yaml:"dimension"`
		FactKey      string `yaml:"fact_key"`
		DimensionKey string `yaml:"dimension_key"`
	} `yaml:"joins"`
	Metrics []struct {
		Name string `yaml:"name"`
		On   string `yaml:"on"`
		Expr string `yaml:"expr"`
	} `yaml:"metrics"`
}

// Parse builds a model from YAML bytes. Parse failures in metric
// expressions join the model's own validation errors.
func Parse(data []byte) (*Model, []error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, []error{fmt.Errorf("model yaml: %w", err)}
	}

	var input Input
	var errs []error

	for _, f := range spec.Facts {
		input.Facts = append(input.Facts, Fact{Name: f.Name, Table: f.Table})
	}
	for _, d := range spec.Dimensions {
		input.Dimensions = append(input.Dimensions, Dimension{Name: d.Name, Table: d.Table})
	}
	for _, a := range spec.Attributes {
		input.Attributes = append(input.Attributes, Attribute{Name: a.Name, Table: a.Table, Column: a.Column})
	}
	for _, j := range spec.Joins {
		input.Joins = append(input.Joins, JoinEdge{
			Fact:         j.Fact,
			Dimension:    j.Dimension,
			FactKey:      j.FactKey,
			DimensionKey: j.DimensionKey,
		})
	}
	for _, def := range spec.Metrics {
		expr, parseErrs := parser.ParseMetricExpression(def.Expr)
		for _, pe := range parseErrs {
			errs = append(errs, fmt.Errorf("metric %q: %w", def.Name, pe))
		}
		if len(parseErrs) > 0 {
			continue
		}
		input.Metrics = append(input.Metrics, MetricDefinition{
			Name:     def.Name,
			BaseFact: def.On,
			Expr:     expr,
		})
	}

	m, modelErrs := New(input)
	errs = append(errs, modelErrs...)
	return m, errs
}

// LoadFile reads and parses a YAML model file.
func LoadFile(path string) (*Model, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read model: %w", err)}
	}
	return Parse(data)
}
