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
	"net/netip"
)

// NetworkInfo holds the derived network defs a location's config
// contributes: the subnet split apart from a CIDR (subnet, prefix length,
// netmask, gateway).
type NetworkInfo struct {
	Subnet       string
	PrefixLength int
	Netmask      string
	Gateway      string
}

// SplitCIDR decomposes a "a.b.c.d/n" string into its subnet address,
// prefix length, dotted netmask, and the conventional gateway (the first
// usable host address in the subnet).
func SplitCIDR(cidr string) (NetworkInfo, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("buildassembly: parsing cidr %q: %w", cidr, err)
	}
	masked := prefix.Masked()

	return NetworkInfo{
		Subnet:       masked.Addr().String(),
		PrefixLength: masked.Bits(),
		Netmask:      dottedNetmask(masked),
		Gateway:      firstHostAddress(masked).String(),
	}, nil
}

func dottedNetmask(p netip.Prefix) string {
	if !p.Addr().Is4() {
		return ""
	}
	bits := p.Bits()
	var b [4]byte
	for i := 0; i < bits; i++ {
		b[i/8] |= 1 << (7 - uint(i%8))
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func firstHostAddress(p netip.Prefix) netip.Addr {
	return p.Addr().Next()
}

// ExpandServerList expands a list of server addresses into the dns1, dns2,
// ... (or ntp1, ntp2, ...) defs keys a builder config expects.
func ExpandServerList(prefix string, servers []string) map[string]any {
	out := make(map[string]any, len(servers))
	for i, s := range servers {
		out[fmt.Sprintf("%s%d", prefix, i+1)] = s
	}
	return out
}
