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
	"context"
	"fmt"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// RemoteProvider reaches a KV v2 mount over the Vault HTTP API. A bearer
// token authenticates the client on first use rather than at construction,
// so building a RemoteProvider never itself fails a build that turns out
// not to need secrets.
type RemoteProvider struct {
	Addr  string
	Token string
	Mount string

	mu     sync.Mutex
	client *vaultapi.Client
}

var _ Provider = (*RemoteProvider)(nil)

// NewRemoteProvider returns a RemoteProvider for the given Vault address,
// bearer token, and KV v2 mount path (e.g. "secret").
func NewRemoteProvider(addr, token, mount string) *RemoteProvider {
	return &RemoteProvider{Addr: addr, Token: token, Mount: mount}
}

func (r *RemoteProvider) authenticated() (*vaultapi.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = r.Addr
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, oerrors.WithKind(oerrors.AuthFailed, fmt.Errorf("credentials: building vault client: %w", err))
	}
	client.SetToken(r.Token)

	r.client = client
	return r.client, nil
}

// GetSecret reads key from the KV v2 entry at path. The mount's
// "data"/"metadata" prefix is added automatically.
func (r *RemoteProvider) GetSecret(path, key string) (string, error) {
	client, err := r.authenticated()
	if err != nil {
		return "", err
	}

	secret, err := client.Logical().ReadWithContext(context.Background(), kvDataPath(r.Mount, path))
	if err != nil {
		return "", oerrors.WithKind(oerrors.SourceUnavailable,
			fmt.Errorf("credentials: reading %q from vault: %w", path, err))
	}
	if secret == nil || secret.Data == nil {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: no secret at %q", path))
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: malformed KV v2 response at %q", path))
	}
	v, ok := data[key]
	if !ok {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: %q has no key %q", path, key))
	}
	s, ok := v.(string)
	if !ok {
		return "", oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("credentials: %q key %q is not a string", path, key))
	}
	return s, nil
}

// ResolveEmbeddedReferences is a no-op for the remote variant: when the
// remote source is active, the downstream tool's own Vault integration
// resolves `{{vault ...}}` references directly, so the document passes
// through unchanged (substitution of embedded references applies only in
// local mode).
func (r *RemoteProvider) ResolveEmbeddedReferences(doc any) (any, error) {
	return doc, nil
}

func kvDataPath(mount, path string) string {
	return mount + "/data/" + path
}
