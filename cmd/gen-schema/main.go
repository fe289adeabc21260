// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Command gen-schema writes the config file JSON Schema to
// schemas/config.schema.json for editors and CI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/config"
)

func main() {
	outPath, err := generate(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", outPath)
}

// generate writes the schema below root and returns its path.
func generate(root string) (string, error) {
	outPath := filepath.Join(root, "schemas", "config.schema.json")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrap(err)
	}
	data := append(config.Schema.JSON(), '\n')
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return "", oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrap(err)
	}
	return outPath, nil
}
