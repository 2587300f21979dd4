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

package buildassembly

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// ISOResult is what ISO resolution hands back to document assembly: the
// URL (or local path) the builder config should embed, and an optional
// checksum string in "algo:hex" form when one was published alongside it.
type ISOResult struct {
	URL      string
	Checksum string
}

// HTTPHead is the subset of http.Client ResolveISO needs, narrowed so
// tests can substitute a stub instead of making real network calls.
type HTTPHead interface {
	Head(url string) (*http.Response, error)
	Get(url string) (*http.Response, error)
}

var defaultHTTPClient HTTPHead = &http.Client{Timeout: 15 * time.Second}

// ResolveISO locates an installation ISO: in local mode it locates the
// cached ISO file on disk; otherwise it HEAD-probes each candidate URL in
// order and takes the first one that responds successfully, optionally
// fetching a published checksum file alongside it.
func ResolveISO(defs map[string]any, isoLocal bool, isoDir, dist, version, arch string, client HTTPHead) (ISOResult, error) {
	if isoLocal {
		path := filepath.Join(isoDir, dist, version, arch+".iso")
		if _, err := os.Stat(path); err != nil {
			return ISOResult{}, oerrors.WithKind(oerrors.SourceUnavailable,
				fmt.Errorf("buildassembly: local iso %s: %w", path, err))
		}
		return ISOResult{URL: path}, nil
	}

	candidates := isoCandidateURLs(defs)
	if len(candidates) == 0 {
		return ISOResult{}, oerrors.WithKind(oerrors.SourceUnavailable,
			fmt.Errorf("buildassembly: no iso_url candidates configured"))
	}

	if client == nil {
		client = defaultHTTPClient
	}

	var lastErr error
	for _, url := range candidates {
		resp, err := client.Head(url)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			result := ISOResult{URL: url}
			if checksumURL, ok := defs["iso_checksum_url"].(string); ok && checksumURL != "" {
				if sum, err := fetchChecksum(client, checksumURL); err == nil {
					result.Checksum = sum
				}
			}
			return result, nil
		}
		lastErr = fmt.Errorf("iso candidate %s: status %s", url, resp.Status)
	}

	return ISOResult{}, oerrors.WithKind(oerrors.SourceUnavailable,
		fmt.Errorf("buildassembly: no usable iso candidate: %w", lastErr))
}

func isoCandidateURLs(defs map[string]any) []string {
	switch v := defs["iso_url"].(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fetchChecksum(client HTTPHead, url string) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("checksum url %s: status %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	// Checksum files conventionally look like "<hex>  <filename>"; take the
	// first field of the first line.
	line := strings.SplitN(strings.TrimSpace(string(body)), "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("checksum url %s: empty response", url)
	}
	return fields[0], nil
}
