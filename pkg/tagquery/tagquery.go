// Package tagquery parses and rewrites whitespace separated tag strings such
// as locked tags and saved blacklists. Lines are kept; tokens may carry a
// leading "-" (negation) or "~" (or) marker.
package tagquery

import (
	"strings"

	"github.com/OFFIS-RIT/tagrel/pkg/common"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Token is one entry of a tag string line.
type Token struct {
	Prefix string
	Name   string
}

func (t Token) String() string {
	return t.Prefix + t.Name
}

// NormalizeName lowercases a tag name and replaces inner spaces with
// underscores.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = cases.Lower(language.Und).String(name)
	return strings.Join(strings.Fields(name), "_")
}

// StripCategory removes a leading "artist:" style category qualifier.
func StripCategory(name string) string {
	prefix, rest, ok := strings.Cut(name, ":")
	if !ok || rest == "" {
		return name
	}
	if _, known := common.CategoryByName(cases.Fold().String(prefix)); !known {
		return name
	}
	return rest
}

func parseToken(raw string) Token {
	if len(raw) > 1 && (raw[0] == '-' || raw[0] == '~') {
		return Token{Prefix: raw[:1], Name: raw[1:]}
	}
	return Token{Name: raw}
}

// Parse splits a tag string into lines of tokens. Bare markers ("-") are
// dropped and empty lines are skipped.
func Parse(query string) [][]Token {
	var lines [][]Token
	for _, line := range strings.Split(query, "\n") {
		fields := strings.Fields(line)
		tokens := make([]Token, 0, len(fields))
		for _, f := range fields {
			if f == "-" || f == "~" {
				continue
			}
			tokens = append(tokens, parseToken(f))
		}
		if len(tokens) == 0 {
			continue
		}
		lines = append(lines, tokens)
	}
	return lines
}

// ContainsToken reports whether name occurs as a whole token, ignoring case
// and markers.
func ContainsToken(query, name string) bool {
	folded := cases.Fold().String(name)
	for _, line := range Parse(query) {
		for _, t := range line {
			if cases.Fold().String(StripCategory(t.Name)) == folded {
				return true
			}
		}
	}
	return false
}

// Rewrite replaces every whole token whose name matches a key of overrides
// (case-insensitive, ignoring a category qualifier) with the mapped value,
// keeping the token's marker.
// Identical lines are collapsed. It returns the rewritten string and the
// number of tokens replaced; with zero replacements the input is returned
// unchanged so callers can skip the write.
func Rewrite(query string, overrides map[string]string) (string, int) {
	if len(overrides) == 0 || query == "" {
		return query, 0
	}
	folded := make(map[string]string, len(overrides))
	for from, to := range overrides {
		folded[cases.Fold().String(from)] = to
	}

	replaced := 0
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, line := range Parse(query) {
		parts := make([]string, len(line))
		for i, t := range line {
			if to, ok := folded[cases.Fold().String(StripCategory(t.Name))]; ok {
				t.Name = to
				replaced++
			}
			parts[i] = t.String()
		}
		joined := strings.Join(parts, " ")
		if _, dup := seen[joined]; dup {
			continue
		}
		seen[joined] = struct{}{}
		out = append(out, joined)
	}

	if replaced == 0 {
		return query, 0
	}
	return strings.Join(out, "\n"), replaced
}

// Fields splits a live tag string into names.
func Fields(tagString string) []string {
	return strings.Fields(tagString)
}

// ApplyDiff removes and adds names on a live tag string. The result keeps the
// original order with additions appended and never contains duplicates.
func ApplyDiff(tagString string, add, remove []string) string {
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[r] = struct{}{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, name := range strings.Fields(tagString) {
		if _, ok := drop[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range add {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return strings.Join(out, " ")
}

// HasTag reports whether name is one of the live tags.
func HasTag(tagString, name string) bool {
	for _, t := range strings.Fields(tagString) {
		if t == name {
			return true
		}
	}
	return false
}

// ToAliased maps every name through aliases, keeping names without an alias.
// The result is de-duplicated in input order.
func ToAliased(names []string, aliases map[string]string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if to, ok := aliases[name]; ok {
			name = to
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
