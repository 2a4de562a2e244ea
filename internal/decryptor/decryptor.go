// Package decryptor provides the browser script that reverses fragment
// encryption in the published page.
package decryptor

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

//go:embed decrypt.js
var defaultScript string

// ErrUnsafeScript means a custom script cannot be inlined in a <script> element
var ErrUnsafeScript = errors.New("decryptor script contains a closing script tag")

// Default returns the bundled decryptor
func Default() string {
	return defaultScript
}

// Load returns the decryptor to inject. An empty path selects the bundled
// script; a relative path is resolved against rootDir.
func Load(fs afero.Fs, rootDir, path string) (string, error) {
	if path == "" {
		return defaultScript, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootDir, path)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read decryptor script %s: %w", path, err)
	}

	script := string(data)
	if strings.Contains(strings.ToLower(script), "</script") {
		return "", fmt.Errorf("%s: %w", path, ErrUnsafeScript)
	}
	return script, nil
}
