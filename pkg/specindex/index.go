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

package specindex

import "time"

// Entry is one (dist, version, arch) tuple produced by expanding a spec
// file's provides declaration.
type Entry struct {
	Key      string `json:"key"`
	Dist     string `json:"dist"`
	Version  string `json:"version"`
	Arch     string `json:"arch"`
	SpecPath string `json:"spec_path"`
	IsoLocal bool   `json:"iso_local"`
}

// Index is the full set of entries produced by one scan of the specs tree.
type Index struct {
	Entries []Entry   `json:"entries"`
	BuiltAt time.Time `json:"built_at"`
}

// Lookup finds the entry for an exact "dist-version-arch" key.
func (idx *Index) Lookup(key string) (Entry, bool) {
	for _, e := range idx.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

