package iface

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator is a defense-in-depth check of a registered interface's
// select_sql, run each time the data bus loads an interface definition —
// once per request, right after LoadDefinition. The data bus only ever
// executes SQL an operator pre-declared in t_intercfg, so there is no
// ad-hoc client SQL to police.
//
// Adapted from server/sql_validator.go's SQLValidator: same whitelist and
// injection-pattern engine, narrowed to the single command webserver.cpp's
// ExecSQL ever runs (SELECT) since every interface is a read query.
type Validator struct {
	injectionRegexes []*regexp.Regexp
	maxLength        int
}

// NewValidator compiles the injection-detection patterns once at registry
// startup.
func NewValidator(maxLength int) *Validator {
	if maxLength <= 0 {
		maxLength = 10000
	}
	patterns := []string{
		`(?i)(/\*.*?\*/|--.*?$|#.*?$)`,
		`(?i);\s*(select|insert|update|delete|drop|create|alter)\b`,
		`(?i)\b(load_file|into\s+outfile|into\s+dumpfile)\b`,
		`(?i)\b(exec|execute|sp_executesql)\s*\(`,
		`(?i)\binformation_schema\b`,
		`(?i)\bmysql\.user\b`,
	}
	v := &Validator{maxLength: maxLength}
	for _, p := range patterns {
		v.injectionRegexes = append(v.injectionRegexes, regexp.MustCompile(p))
	}
	return v
}

// Validate reports whether query is an acceptable registered interface
// statement: a single SELECT, within the configured length cap, and free
// of the stacked-query / file-access / schema-probing patterns above.
func (v *Validator) Validate(query string) error {
	if len(query) > v.maxLength {
		return fmt.Errorf("iface.Validate: query exceeds max length %d", v.maxLength)
	}
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return fmt.Errorf("iface.Validate: only SELECT is permitted as interface SQL")
	}
	for _, re := range v.injectionRegexes {
		if re.MatchString(query) {
			return fmt.Errorf("iface.Validate: query matches blocked pattern %q", re.String())
		}
	}
	return nil
}
