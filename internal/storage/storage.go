// SPDX-License-Identifier: GPL-3.0-only

// Package storage persists learned brightness samples, one sample set per output.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

const (
	// KindYAML stores each output in its own YAML file.
	KindYAML = "yaml"

	// KindSQLite stores every output in a single SQLite database.
	KindSQLite = "sqlite"
)

// Backend hands out the persistence of individual outputs.
type Backend interface {
	// For returns the persistence for the named output.
	For(output string) controller.Persistence

	// Close releases the backend.
	Close() error
}

// Open creates the backend of the given kind rooted at dataDir.
func Open(kind, dataDir string) (Backend, error) {
	switch kind {
	case KindYAML, "":
		return NewDir(dataDir), nil
	case KindSQLite:
		return OpenSQLite(filepath.Join(dataDir, sqliteFileName))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileName turns an output name into something safe to use as a file name.
// Names that had to be rewritten get a short hash of the original appended,
// so distinct outputs never share a file.
func fileName(output string) string {
	name := unsafeChars.ReplaceAllString(output, "_")
	if name == "." || name == ".." {
		name = ""
	}
	if name == "" {
		name = "default"
	}
	if name != output {
		sum := sha256.Sum256([]byte(output))
		name += "-" + hex.EncodeToString(sum[:4])
	}
	return name
}
