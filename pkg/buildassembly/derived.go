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
	"strings"

	"github.com/sshoecraft/osimager/pkg/template"
)

// DeriveDefs computes the defs keys that exist only because a build is
// being assembled for a specific target: version components, a scratch
// workspace path, the instance's name/FQDN, resolved network addresses,
// and the expanded DNS/NTP lists. It mutates nothing; callers merge the
// result into the accumulator's defs before invoking the Template
// Substitution Engine.
func DeriveDefs(req Request, defs map[string]any, dns template.Resolver) (map[string]any, error) {
	out := make(map[string]any, len(defs)+8)
	for k, v := range defs {
		out[k] = v
	}

	if v, ok := defs["version"]; ok {
		major, minor := splitVersion(fmt.Sprint(v))
		out["version_major"] = major
		out["version_minor"] = minor
	}

	name := req.Name
	if name == "" {
		name = req.Target.SpecKey
	}
	out["name"] = name
	out["instance_name"] = name
	out["workspace"] = strings.Join([]string{"/tmp/osimager", req.Target.Platform, req.Target.Location, name}, "/")

	domain, _ := out["domain"].(string)
	if domain != "" {
		out["fqdn"] = name + "." + domain
	} else {
		out["fqdn"] = name
	}

	if cidr, ok := out["cidr"].(string); ok && cidr != "" {
		net, err := SplitCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("buildassembly: deriving network defs: %w", err)
		}
		out["subnet"] = net.Subnet
		out["prefix_length"] = net.PrefixLength
		out["netmask"] = net.Netmask
		if _, exists := out["gateway"]; !exists {
			out["gateway"] = net.Gateway
		}
	}

	for k, v := range expandListDefs(out, "dns_servers", "dns") {
		out[k] = v
	}
	for k, v := range expandListDefs(out, "ntp_servers", "ntp") {
		out[k] = v
	}

	ip, err := resolveIP(req, out, dns)
	if err != nil {
		return nil, err
	}
	if ip != "" {
		out["ip"] = ip
	}

	return out, nil
}

func splitVersion(v string) (string, string) {
	parts := strings.SplitN(v, ".", 2)
	major := parts[0]
	minor := ""
	if len(parts) == 2 {
		minor = parts[1]
	}
	return major, minor
}

func expandListDefs(defs map[string]any, key, prefix string) map[string]any {
	raw, ok := defs[key]
	if !ok {
		return nil
	}
	var servers []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			servers = append(servers, fmt.Sprint(item))
		}
	case string:
		servers = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if len(servers) == 0 {
		return nil
	}
	return ExpandServerList(prefix, servers)
}

// resolveIP returns the build's address: a caller-supplied override wins,
// otherwise a static "ip" defs value, otherwise a DNS lookup of the
// instance's FQDN when a resolver is available. Lookup failure is
// non-fatal — the build proceeds with an empty address, same as action 4's
// failure mode in the Template Substitution Engine.
func resolveIP(req Request, defs map[string]any, dns template.Resolver) (string, error) {
	if req.IP != "" {
		return req.IP, nil
	}
	if ip, ok := defs["ip"].(string); ok && ip != "" {
		return ip, nil
	}
	if dns == nil {
		return "", nil
	}
	fqdn, _ := defs["fqdn"].(string)
	if fqdn == "" {
		return "", nil
	}
	addr, err := dns.LookupHost(fqdn)
	if err != nil {
		return "", nil
	}
	return addr, nil
}
