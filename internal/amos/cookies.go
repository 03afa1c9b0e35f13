package amos

import "strings"

// Jar is a parsed view of the raw Set-Cookie strings returned by the Amos
// login endpoint. The server mixes session fields (uid, token, SESSIONID)
// with ordinary cookie attributes, so everything is parsed as key=value
// pairs and looked up by name.
type Jar struct {
	values map[string]string
	raw    []string
}

// ParseCookies builds a Jar from raw Set-Cookie header values.
// The first occurrence of a name wins.
func ParseCookies(raw []string) Jar {
	jar := Jar{
		values: make(map[string]string),
		raw:    raw,
	}

	for _, cookie := range raw {
		for _, part := range strings.Split(cookie, ";") {
			part = strings.TrimSpace(part)
			key, value, ok := strings.Cut(part, "=")
			if !ok || key == "" {
				continue
			}
			if _, exists := jar.values[key]; !exists {
				jar.values[key] = value
			}
		}
	}

	return jar
}

// Get returns the value for a cookie name and whether it was present.
func (j Jar) Get(name string) (string, bool) {
	value, ok := j.values[name]
	return value, ok
}

// Header returns the raw cookie strings joined for use as a Cookie header.
func (j Jar) Header() string {
	return strings.Join(j.raw, "; ")
}

// Empty reports whether the jar holds no cookies at all.
func (j Jar) Empty() bool {
	return len(j.raw) == 0
}
