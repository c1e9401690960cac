// Package xmlcfg parses the tagged-attribute configuration strings every
// worker binary receives as its second CLI argument: a single string
// containing <key>value</key> fragments in any order, e.g.
//
//	<clientpath>/data/out</clientpath><srvpath>/data/in</srvpath><timetvl>5</timetvl>
//
// This is the Go-native re-expression of the teacher's DSN-style parser in
// client/driver.go:parseDSN, generalized from "key=value&..." query-string
// syntax to the tag syntax every original_source worker's _xmltoarg actually
// consumes.
package xmlcfg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is a parsed tagged-attribute set with typed accessors.
type Config map[string]string

var tagRe = regexp.MustCompile(`<([A-Za-z0-9_]+)>(.*?)</([A-Za-z0-9_]+)>`)

// Parse extracts every <key>value</key> fragment from buf into a Config.
// Unterminated or mismatched tags are skipped rather than erroring, matching
// the teacher's tolerant string-based parsing style (no XML library is used
// anywhere in the source lineage this parser is grounded on).
func Parse(buf string) Config {
	c := make(Config)
	for _, m := range tagRe.FindAllStringSubmatch(buf, -1) {
		key, val, closeKey := m[1], m[2], m[3]
		if key != closeKey {
			continue
		}
		c[key] = val
	}
	return c
}

// String returns the raw value for key, or def if absent.
func (c Config) String(key, def string) string {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

// Require returns the raw value for key, or an error if it is missing or
// empty.
func (c Config) Require(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == "" {
		return "", fmt.Errorf("xmlcfg: missing required key %q", key)
	}
	return v, nil
}

// Int returns key parsed as an int, or def if absent/unparseable.
func (c Config) Int(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Float returns key parsed as a float64, or def if absent/unparseable. Used
// for rate-limit-style fractional config values.
func (c Config) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// Bool returns key parsed as a bool ("true"/"1" => true), or def if absent.
func (c Config) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1"
}

// Seconds returns key parsed as an integer number of seconds turned into a
// time.Duration, or def if absent/unparseable. This matches every
// original_source worker's convention of plain-integer-seconds config
// fields (timetvl, timeout, ...).
func (c Config) Seconds(key string, def time.Duration) time.Duration {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

// StringList splits a comma-separated value into its parts, trimming
// whitespace, dropping empty elements. Used for the sync worker's
// localcols/remotecols column lists.
func (c Config) StringList(key string) []string {
	v, ok := c[key]
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
