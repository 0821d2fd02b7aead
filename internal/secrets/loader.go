package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Static returns a Loader serving fixed values. Empty values are omitted.
func Static(values map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(values))
		for k, v := range values {
			if v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// FileLoader returns a Loader that reads one file per key from dir, the
// layout used by Docker and Kubernetes secret mounts. Missing files are
// omitted; surrounding whitespace is trimmed. An empty dir loads nothing.
func FileLoader(dir string, keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		if dir == "" {
			return vals, nil
		}
		for _, k := range keys {
			data, err := os.ReadFile(filepath.Join(dir, k))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			if v := strings.TrimSpace(string(data)); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// Layered merges loaders in order; later loaders override earlier ones.
func Layered(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				out[k] = v
			}
		}
		return out, nil
	}
}
