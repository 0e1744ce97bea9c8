package secrets

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// FileLoader returns a Loader reading KEY=VALUE lines from path. Blank
// lines and lines starting with # are skipped; values may be quoted.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
		if err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
		vals := make(map[string]string)
		sc := bufio.NewScanner(bytes.NewReader(data))
		for n := 1; sc.Scan(); n++ {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
			if !ok || key == "" {
				return nil, fmt.Errorf("secrets file %s line %d: expected KEY=VALUE", path, n)
			}
			val = strings.TrimSpace(val)
			if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
				val = val[1 : len(val)-1]
			}
			vals[key] = val
		}
		return vals, sc.Err()
	}
}

// Chain merges loaders in order; later loaders override earlier ones.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		merged := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				merged[k] = v
			}
		}
		return merged, nil
	}
}
