// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package xdg locates ideaboard's per-user files under the XDG base
// directories.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "ideaboard"

// ConfigFileName is the file DefaultConfigFile looks for.
const ConfigFileName = "config.yaml"

// ConfigDir returns $XDG_CONFIG_HOME/ideaboard, falling back to
// ~/.config/ideaboard.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// CertsDir returns the default directory for the gRPC mTLS certificates.
func CertsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "certs"), nil
}

// DefaultConfigFile returns ConfigDir/config.yaml if it exists, else "".
func DefaultConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, ConfigFileName)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}
