package cache

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"link-router/internal/common/errors"
	"link-router/internal/redis"
)

// Pattern is a compiled invalidation glob. Only * is a wildcard, matching any
// run of characters including none; every other character is literal.
// Matching is anchored and case-sensitive.
type Pattern struct {
	glob string
	re   *regexp.Regexp
}

// CompilePattern validates glob and translates it to an anchored regexp.
// Empty globs, invalid UTF-8 and control characters are rejected.
func CompilePattern(glob string) (*Pattern, error) {
	if glob == "" {
		return nil, errors.InvalidPatternError(glob, "pattern is empty")
	}
	if !utf8.ValidString(glob) {
		return nil, errors.InvalidPatternError(glob, "pattern is not valid UTF-8")
	}
	for i, r := range glob {
		if unicode.IsControl(r) {
			return nil, errors.InvalidPatternError(glob, "control character").WithContext("offset", i)
		}
	}

	parts := strings.Split(glob, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	// (?s) lets the wildcard span newlines inside keys
	re, err := regexp.Compile("(?s)^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, errors.InvalidPatternError(glob, err.Error())
	}

	return &Pattern{glob: glob, re: re}, nil
}

// Match reports whether key matches the whole pattern.
func (p *Pattern) Match(key string) bool {
	return p.re.MatchString(key)
}

// RedisMatch returns the glob for SCAN MATCH with every Redis metacharacter
// except * escaped, so the server-side filter agrees with Match.
func (p *Pattern) RedisMatch() string {
	return redis.EscapeGlob(p.glob)
}

// String returns the original glob.
func (p *Pattern) String() string {
	return p.glob
}

// Regexp returns the translated expression.
func (p *Pattern) Regexp() string {
	return p.re.String()
}
