package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

type filterInput struct {
	Predicates []filter.Predicate `json:"predicates"`
	Connectors []filter.Connector `json:"connectors"`
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// loadSchema reads a JSON array of entities.
func loadSchema(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read schema")
	}
	var entities []*schema.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, errors.Wrapf(err, "decode schema %s", path)
	}
	return schema.NewRegistry(entities...)
}

// loadFilter keeps numbers as json.Number so integral ids stay exact.
func loadFilter(path string, stdin io.Reader) (filterInput, error) {
	var in filterInput
	if path == "" {
		return in, errors.New("--filter is required")
	}
	data, err := readInput(path, stdin)
	if err != nil {
		return in, errors.Wrap(err, "read filter")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return in, errors.Wrap(err, "decode filter")
	}
	return in, nil
}
