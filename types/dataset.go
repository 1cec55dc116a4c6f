package types

import (
	"encoding/json"
	"fmt"
)

// Dataset is one named row of test data. Name distinguishes the derived
// class or method built from it, Data seeds suite fields or call
// parameters, and Tags are unioned onto every test the dataset generates.
type Dataset struct {
	Name string
	Data map[string]any
	Tags []string
}

// DatasetSource yields the datasets used for data-driven expansion.
// A declared source that yields zero datasets is a configuration error,
// reported at resolution time rather than silently skipped.
type DatasetSource interface {
	Datasets() ([]Dataset, error)
}

// DatasetList is the trivial in-memory DatasetSource.
type DatasetList []Dataset

func (l DatasetList) Datasets() ([]Dataset, error) {
	return l, nil
}

// GeneratorFactory constructs a DatasetSource from replay-line arguments.
// Factories are registered under a dotted path next to the suites that
// use them.
type GeneratorFactory func(args GeneratorArgs) (DatasetSource, error)

// GeneratorArgs carries the constructor arguments parsed from a replay
// line: a JSON object becomes Keyword, a JSON array becomes Positional.
type GeneratorArgs struct {
	Keyword    map[string]json.RawMessage
	Positional []json.RawMessage
}

// ParseGeneratorArgs interprets the raw JSON argument blob of a replay
// line. An empty blob yields empty args; anything other than a JSON
// object or array is rejected.
func ParseGeneratorArgs(raw string) (GeneratorArgs, error) {
	var args GeneratorArgs
	if raw == "" {
		return args, nil
	}
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return args, fmt.Errorf("invalid generator arguments %q: %w", raw, err)
	}
	switch probe.(type) {
	case map[string]any:
		if err := json.Unmarshal([]byte(raw), &args.Keyword); err != nil {
			return args, fmt.Errorf("invalid keyword arguments %q: %w", raw, err)
		}
	case []any:
		if err := json.Unmarshal([]byte(raw), &args.Positional); err != nil {
			return args, fmt.Errorf("invalid positional arguments %q: %w", raw, err)
		}
	default:
		return args, fmt.Errorf("generator arguments must be a JSON object or array, got %q", raw)
	}
	return args, nil
}

// Empty reports whether no constructor arguments were supplied.
func (a GeneratorArgs) Empty() bool {
	return len(a.Keyword) == 0 && len(a.Positional) == 0
}

// Keywords decodes the keyword arguments into plain Go values.
func (a GeneratorArgs) Keywords() (map[string]any, error) {
	out := make(map[string]any, len(a.Keyword))
	for k, raw := range a.Keyword {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("keyword argument %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// String renders the arguments back into the JSON form a replay line uses.
func (a GeneratorArgs) String() string {
	if len(a.Keyword) > 0 {
		b, err := json.Marshal(a.Keyword)
		if err == nil {
			return string(b)
		}
	}
	if len(a.Positional) > 0 {
		b, err := json.Marshal(a.Positional)
		if err == nil {
			return string(b)
		}
	}
	return ""
}

// MergeTags unions two tag sets, preserving the order of first appearance.
func MergeTags(a, b []string) []string {
	if len(b) == 0 {
		return append([]string(nil), a...)
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, set := range [][]string{a, b} {
		for _, t := range set {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
