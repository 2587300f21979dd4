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

package template

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DNSResolver implements Resolver against either the system resolver or a
// location's explicitly configured DNS servers. Search domains are tried in
// order after the bare hostname when a lookup of the bare name fails.
type DNSResolver struct {
	Servers       []string
	SearchDomains []string
	Timeout       time.Duration
}

// NewDNSResolver builds a DNSResolver for a location's configured servers
// and search domains. A nil/empty Servers list falls back to the system
// resolver.
func NewDNSResolver(servers, searchDomains []string) *DNSResolver {
	return &DNSResolver{Servers: servers, SearchDomains: searchDomains, Timeout: 5 * time.Second}
}

// LookupHost resolves host to its first A record, trying host as given and
// then host qualified by each configured search domain in turn.
func (d *DNSResolver) LookupHost(host string) (string, error) {
	resolver := d.resolver()
	candidates := append([]string{host}, qualify(host, d.SearchDomains)...)

	var lastErr error
	for _, candidate := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		addrs, err := resolver.LookupHost(ctx, candidate)
		cancel()
		if err == nil && len(addrs) > 0 {
			return addrs[0], nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("template: resolving %q: %w", host, lastErr)
}

func (d *DNSResolver) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 5 * time.Second
}

func (d *DNSResolver) resolver() *net.Resolver {
	if len(d.Servers) == 0 {
		return net.DefaultResolver
	}
	servers := d.Servers
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var dialer net.Dialer
			var lastErr error
			for _, server := range servers {
				addr := server
				if _, _, err := net.SplitHostPort(server); err != nil {
					addr = net.JoinHostPort(server, "53")
				}
				conn, err := dialer.DialContext(ctx, network, addr)
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
	}
}

func qualify(host string, searchDomains []string) []string {
	out := make([]string, 0, len(searchDomains))
	for _, domain := range searchDomains {
		out = append(out, host+"."+domain)
	}
	return out
}
