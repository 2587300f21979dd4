/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

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

package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeyPatterns contains substrings that mark a defs/evars key as
// holding credential material, as checked by IsSensitiveKey and
// RedactSensitiveValue. Free-form log lines are redacted separately, by
// RedactSensitivePatterns using sensitiveValuePattern below.
var sensitiveKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"credential",
	"api_key",
	"apikey",
	"private_key",
	"privatekey",
	"access_key",
	"accesskey",
	"vault_token",
}

// sensitiveValuePattern matches key=value fragments inside free-form text,
// the shape Packer and Ansible output tends to take when it echoes a
// variable assignment.
var sensitiveValuePattern = regexp.MustCompile(`(?i)(password|token|secret|key|credential)=\S+`)

// IsSensitiveKey reports whether key names credential-shaped data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// RedactSensitiveValue returns "***" when key is sensitive, else value unchanged.
func RedactSensitiveValue(key, value string) string {
	if IsSensitiveKey(key) {
		return "***"
	}
	return value
}

// RedactSensitivePatterns redacts key=value fragments in free-form log lines,
// e.g. a Packer debug line containing "vault_token=s.abc123" becomes
// "vault_token=***".
func RedactSensitivePatterns(line string) string {
	return sensitiveValuePattern.ReplaceAllStringFunc(line, func(match string) string {
		parts := strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return parts[0] + "=***"
		}
		return match
	})
}

// RedactURL strips embedded userinfo credentials from a URL, used when
// logging remote credential-provider addresses or ISO source URLs that may
// carry basic-auth.
func RedactURL(raw string) string {
	if raw == "" {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}

	_, hasPassword := parsed.User.Password()
	redacted := "***"
	if hasPassword {
		redacted = "***:***"
	}

	result := parsed.Scheme + "://" + redacted + "@" + parsed.Host
	if parsed.Path != "" {
		result += parsed.Path
	}
	return result
}
