/*
Copyright © 2024 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package credentials

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// LocalProvider loads a `<path> k1=v1 k2=v2 ...` secrets file once and
// serves lookups from memory. Blank lines and lines starting with `#` are
// skipped; when a path is defined more than once, the last definition wins.
type LocalProvider struct {
	Path    string
	records map[string]map[string]string
}

var _ Provider = (*LocalProvider)(nil)

// LoadLocalProvider reads and parses the secrets file at path.
func LoadLocalProvider(path string) (*LocalProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, oerrors.WithKind(oerrors.SourceUnavailable,
			fmt.Errorf("credentials: opening secrets file %q: %w", path, err))
	}
	defer f.Close()

	records := make(map[string]map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, oerrors.WithKind(oerrors.SourceUnavailable,
				fmt.Errorf("credentials: %s:%d: expected \"path k1=v1 ...\"", path, line))
		}
		recordPath := fields[0]
		kv := make(map[string]string, len(fields)-1)
		for _, pair := range fields[1:] {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, oerrors.WithKind(oerrors.SourceUnavailable,
					fmt.Errorf("credentials: %s:%d: malformed key=value pair %q", path, line, pair))
			}
			kv[k] = v
		}
		records[recordPath] = kv
	}
	if err := scanner.Err(); err != nil {
		return nil, oerrors.WithKind(oerrors.SourceUnavailable,
			fmt.Errorf("credentials: reading secrets file %q: %w", path, err))
	}

	return &LocalProvider{Path: path, records: records}, nil
}

// GetSecret looks up key at path from the in-memory table built at load
// time.
func (l *LocalProvider) GetSecret(path, key string) (string, error) {
	record, ok := l.records[path]
	if !ok {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: no secrets entry for %q", path))
	}
	v, ok := record[key]
	if !ok {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: %q has no key %q", path, key))
	}
	return v, nil
}

// ResolveEmbeddedReferences replaces `{{vault "path" "key"}}` occurrences
// throughout doc with values from the local secrets table: local mode must
// substitute these itself since the downstream tool's own Vault
// integration is not active.
func (l *LocalProvider) ResolveEmbeddedReferences(doc any) (any, error) {
	return walkResolveReferences(doc, l.GetSecret)
}

// WriteLocalSecretsFile writes records to path with owner-only (0600)
// permissions, atomically replacing any existing file. Keys within a
// record are written in a stable, sorted order for reproducible output.
func WriteLocalSecretsFile(path string, records map[string]map[string]string) error {
	var sb strings.Builder
	for _, recordPath := range sortedKeys(records) {
		sb.WriteString(recordPath)
		for _, k := range sortedKeys(records[recordPath]) {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(records[recordPath][k])
		}
		sb.WriteString("\n")
	}
	return writeOwnerOnly(path, []byte(sb.String()))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func writeOwnerOnly(path string, data []byte) error {
	dir := "."
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		dir = path[:idx]
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: creating temp secrets file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("credentials: writing temp secrets file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("credentials: syncing temp secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("credentials: closing temp secrets file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("credentials: setting owner-only permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("credentials: renaming temp secrets file into place: %w", err)
	}
	return nil
}
