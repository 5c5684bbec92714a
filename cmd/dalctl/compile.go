package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter/document"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter/relational"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/config"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	mongospec "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/infrastructure"
)

type compiled struct {
	SQL    string          `json:"sql,omitempty"`
	Params []any           `json:"params,omitempty"`
	Query  json.RawMessage `json:"query,omitempty"`
	Joins  []joinOutput    `json:"joins,omitempty"`
}

type joinOutput struct {
	Target string `json:"target"`
	Alias  string `json:"alias"`
	IDs    []any  `json:"ids"`
}

func NewCompileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the query a filter compiles to",
		Long: `Compile a filter file against the schema and print, as JSON, the SELECT
statement with its parameters (postgres) or the query document (mongodb).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func runCompile(opts *RootOptions, stdin io.Reader, out io.Writer) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	registry, err := loadSchema(opts.Schema)
	if err != nil {
		return err
	}
	in, err := loadFilter(opts.Filter, stdin)
	if err != nil {
		return err
	}
	compiler := filter.NewCompiler(filter.WithLogger(newLogger(cfg)))
	q, err := compiler.BuildCustomQuery(in.Predicates, in.Connectors, registry, opts.Entity)
	if err != nil {
		return err
	}
	entity, _ := registry.Lookup(opts.Entity)

	var result compiled
	for _, j := range q.Joins {
		result.Joins = append(result.Joins, joinOutput{Target: j.TargetEntity, Alias: j.AliasName, IDs: j.IDs})
	}
	switch cfg.Backend {
	case config.Postgres:
		page := adapter.Page{Size: cfg.Page.DefaultSize}
		result.SQL, result.Params, err = relational.BuildSelect(registry, entity, q, page, nil)
		if err != nil {
			return err
		}
	case config.MongoDB:
		doc := bson.D{}
		if q.Filter != nil {
			if doc, err = mongospec.CompileDocument(q.Filter, mongospec.WithFieldMapper(document.FieldMapper(entity))); err != nil {
				return err
			}
		}
		if result.Query, err = bson.MarshalExtJSON(doc, false, false); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
