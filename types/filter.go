package types

import (
	"fmt"
	"regexp"
)

// Filters gates which discovered methods become runnable cases. The zero
// value admits everything.
type Filters struct {
	// Tags a test must carry. With AllTags every filter tag must be
	// present on the test; otherwise one shared tag suffices. An empty
	// list always matches.
	Tags    []string
	AllTags bool

	// Regexes are matched against the fully dotted path
	// module.Class.Test. An empty list always matches.
	Regexes []*regexp.Regexp
}

// ParseTags interprets a CLI tag list where a leading "+" element switches
// the filter from match-any to match-all.
func ParseTags(raw []string) (tags []string, all bool) {
	if len(raw) > 0 && raw[0] == "+" {
		return raw[1:], true
	}
	return raw, false
}

// CompileRegexes compiles a pattern list for path filtering.
func CompileRegexes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid filter regex %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MatchTags reports whether a test with the given tag set passes the tag
// filter.
func (f Filters) MatchTags(testTags []string) bool {
	if len(f.Tags) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(testTags))
	for _, t := range testTags {
		set[t] = struct{}{}
	}
	if f.AllTags {
		for _, t := range f.Tags {
			if _, ok := set[t]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range f.Tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// MatchPath reports whether the dotted path matches at least one filter
// regex. Matching is unanchored, like a search.
func (f Filters) MatchPath(path string) bool {
	if len(f.Regexes) == 0 {
		return true
	}
	for _, re := range f.Regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
