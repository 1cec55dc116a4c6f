// Package builder resolves requested test work into runnable batches.
// Package roots and replay-file lines become TestUnits; units are
// expanded against the registry into fully resolved TestCases, applying
// dataset generation and tag/regex filters along the way.
package builder

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/mod/module"

	"github.com/percolator-ci/percolator/diag"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/types"
)

// lineRegex splits a replay line into test name, dotted test path,
// generator path and generator-argument JSON:
//
//	[TestName] (path[: generator[: json]])
var lineRegex = regexp.MustCompile(
	`^([^\s]+)?\s*\(([^:)\s]+)\s*(:\s*([^:)\s]+)\s*(:\s*(.+))?)?\)`)

// Resolver expands package roots and replay files into per-module
// batches of resolved test cases.
//
// Malformed input is terminal: lines that do not parse, dotted paths
// that match nothing registered, unknown explicit classes or generators
// all abort resolution with an error. Problems inside an otherwise valid
// unit (a dataset source yielding nothing, a missing explicit test) go
// through the diag reporter, which continues or halts per its
// configuration.
type Resolver struct {
	reg     *registry.Registry
	filters types.Filters
	diag    *diag.Reporter
	log     *slog.Logger

	walked map[string]bool
}

// NewResolver builds a resolver against one registry.
func NewResolver(reg *registry.Registry, filters types.Filters, rep *diag.Reporter, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if rep == nil {
		rep = diag.NewReporter(log, false)
	}
	return &Resolver{
		reg:     reg,
		filters: filters,
		diag:    rep,
		log:     log,
		walked:  make(map[string]bool),
	}
}

// Resolve turns package roots and an optional replay stream into
// batches, one per module in first-seen order. Replay units come first,
// exactly as the lines appear, then the root-derived units.
func (r *Resolver) Resolve(roots []string, replay io.Reader) ([]types.Batch, error) {
	var units []types.TestUnit

	if replay != nil {
		fileUnits, err := r.parseReplay(replay)
		if err != nil {
			return nil, err
		}
		units = append(units, fileUnits...)
	}

	for _, root := range roots {
		rootUnits, err := r.resolveDotPath(root, "")
		if err != nil {
			return nil, err
		}
		units = append(units, rootUnits...)
	}

	var (
		order   []string
		batches = make(map[string]*types.Batch)
	)
	for _, unit := range units {
		cases, err := r.expandUnit(unit)
		if err != nil {
			return nil, err
		}
		batch, ok := batches[unit.Module]
		if !ok {
			batch = &types.Batch{Module: unit.Module}
			batches[unit.Module] = batch
			order = append(order, unit.Module)
		}
		batch.Cases = append(batch.Cases, cases...)
	}

	out := make([]types.Batch, 0, len(order))
	for _, mod := range order {
		out = append(out, *batches[mod])
	}
	return out, nil
}

// parseReplay reads a replay stream line by line. Blank lines are
// skipped; anything else must match the replay grammar.
func (r *Resolver) parseReplay(replay io.Reader) ([]types.TestUnit, error) {
	var units []types.TestUnit

	scanner := bufio.NewScanner(replay)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineUnits, err := r.parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		units = append(units, lineUnits...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	return units, nil
}

// parseLine resolves one replay line into units. A line whose path names
// a package expands to one unit per module beneath it; the optional test
// name survives the expansion, the generator cannot (it requires an
// exact class).
func (r *Resolver) parseLine(line string) ([]types.TestUnit, error) {
	match := lineRegex.FindStringSubmatch(line)
	if match == nil {
		return nil, fmt.Errorf("failed to parse line %q", line)
	}
	testName, testPath, genPath, genJSON := match[1], match[2], match[4], match[6]

	args, err := types.ParseGeneratorArgs(strings.TrimSpace(genJSON))
	if err != nil {
		return nil, fmt.Errorf("line %q: %w", line, err)
	}

	units, err := r.resolveDotPath(testPath, testName)
	if err != nil {
		return nil, err
	}

	if genPath != "" {
		if len(units) != 1 || units[0].Class == "" {
			return nil, fmt.Errorf("line %q: a data generator requires an exact test class", line)
		}
		if _, ok := r.reg.Generator(genPath); !ok {
			return nil, fmt.Errorf("line %q: generator %s is not registered", line, genPath)
		}
		units[0].Generator = genPath
		units[0].Args = args
	}
	return units, nil
}

// resolveDotPath classifies a dotted path as a package root, an exact
// module, or module.Class, and yields the matching units. The package
// and module checks run on the whole path first so import paths with
// dots in their domain segment never get split.
func (r *Resolver) resolveDotPath(path, testName string) ([]types.TestUnit, error) {
	if err := r.populate(path); err != nil {
		return nil, err
	}

	if modules := r.reg.ModulesUnder(path); len(modules) > 0 {
		if len(modules) == 1 && modules[0] == path {
			return []types.TestUnit{{Module: path, Test: testName}}, nil
		}
		units := make([]types.TestUnit, 0, len(modules))
		for _, mod := range modules {
			units = append(units, types.TestUnit{Module: mod, Test: testName})
		}
		return units, nil
	}

	if i := strings.LastIndex(path, "."); i > 0 {
		mod, class := path[:i], path[i+1:]
		if !strings.Contains(class, "/") {
			if _, ok := r.reg.Module(mod); ok {
				return []types.TestUnit{{Module: mod, Class: class, Test: testName}}, nil
			}
		}
	}

	return nil, fmt.Errorf("failed to validate dotted path %q: nothing registered matches it", path)
}

// populate validates a path's package root and memoizes the walk, so
// repeated references to the same root cost one validation.
func (r *Resolver) populate(path string) error {
	root := path
	if i := strings.LastIndex(root, "."); i > 0 && !strings.Contains(root[i:], "/") {
		// Tolerate a trailing .Class segment; the root check only
		// concerns the import path part.
		if _, ok := r.reg.Module(root[:i]); ok {
			root = root[:i]
		}
	}
	if r.walked[root] {
		return nil
	}
	if err := module.CheckImportPath(root); err != nil {
		return fmt.Errorf("invalid package root %q: %w", path, err)
	}
	r.walked[root] = true
	return nil
}

// effectiveClass is one class expansion result: the registered suite to
// instantiate, the display name (dataset-derived or plain) and the
// class-level data bindings.
type effectiveClass struct {
	suite       *registry.Suite
	name        string
	datasetName string
	data        map[string]any
	generator   string
	genArgs     string
}

// expandUnit resolves one unit into test cases.
func (r *Resolver) expandUnit(u types.TestUnit) ([]types.TestCase, error) {
	mod, ok := r.reg.Module(u.Module)
	if !ok {
		return nil, fmt.Errorf("module %s is not registered", u.Module)
	}

	classes, err := r.effectiveClasses(mod, u)
	if err != nil {
		return nil, err
	}

	var cases []types.TestCase
	for _, class := range classes {
		classCases, err := r.expandClass(u, class)
		if err != nil {
			return nil, err
		}
		cases = append(cases, classCases...)
	}
	return cases, nil
}

// effectiveClasses selects the suites a unit targets and applies
// class-level dataset derivation. A suite with class datasets runs only
// through its derived classes; its base never runs directly.
func (r *Resolver) effectiveClasses(mod *registry.Module, u types.TestUnit) ([]effectiveClass, error) {
	var suites []*registry.Suite
	var derivedOnly *effectiveClass

	if u.Class != "" {
		s, ok := mod.Suite(u.Class)
		if !ok {
			// A replayed line may name a dataset-derived class; map it
			// back to the suite and dataset that derive it.
			derived, found, err := r.findDerivedClass(mod, u.Class)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("class %s.%s is not registered", mod.Path, u.Class)
			}
			derivedOnly = &derived
		} else {
			suites = []*registry.Suite{s}
		}
	} else {
		for _, s := range mod.Suites() {
			// Fixture-named suites only run through their dataset-derived
			// classes; without datasets they are plain shared fixtures.
			if len(s.ClassDatasets()) == 0 && strings.Contains(strings.ToLower(s.Name), "fixture") {
				continue
			}
			suites = append(suites, s)
		}
	}

	if derivedOnly != nil {
		return []effectiveClass{*derivedOnly}, nil
	}

	var out []effectiveClass
	for _, s := range suites {
		expanded, err := r.deriveClasses(s, u)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// deriveClasses expands one suite by its datasets. An explicit generator
// on the unit overrides the registered class datasets.
func (r *Resolver) deriveClasses(s *registry.Suite, u types.TestUnit) ([]effectiveClass, error) {
	if u.HasGenerator() {
		factory, ok := r.reg.Generator(u.Generator)
		if !ok {
			return nil, fmt.Errorf("generator %s is not registered", u.Generator)
		}
		source, err := factory(u.Args)
		if err != nil {
			return nil, fmt.Errorf("generator %s failed to construct: %w", u.Generator, err)
		}
		return r.classesFromSources(s, []types.DatasetSource{source}, u.Generator, u.Args.String())
	}

	sources := s.ClassDatasets()
	if len(sources) == 0 {
		return []effectiveClass{{suite: s, name: s.Name}}, nil
	}
	return r.classesFromSources(s, sources, "", "")
}

func (r *Resolver) classesFromSources(s *registry.Suite, sources []types.DatasetSource, generator, genArgs string) ([]effectiveClass, error) {
	var out []effectiveClass
	for _, source := range sources {
		datasets, err := source.Datasets()
		if err != nil {
			if derr := r.diag.Record("builder", "deriveClasses",
				fmt.Sprintf("dataset source %T on class %s failed", source, s.Name), err); derr != nil {
				return nil, derr
			}
			continue
		}
		if len(datasets) == 0 {
			if derr := r.diag.Record("builder", "deriveClasses",
				fmt.Sprintf("dataset source %T on class %s is empty", source, s.Name), nil); derr != nil {
				return nil, derr
			}
			continue
		}
		for _, ds := range datasets {
			out = append(out, effectiveClass{
				suite:       s,
				name:        types.DeriveClassName(s.Name, ds.Name),
				datasetName: ds.Name,
				data:        ds.Data,
				generator:   generator,
				genArgs:     genArgs,
			})
		}
	}
	return out, nil
}

// findDerivedClass maps a dataset-derived class name back onto the suite
// and dataset producing it, so replay lines naming derived classes
// resolve.
func (r *Resolver) findDerivedClass(mod *registry.Module, name string) (effectiveClass, bool, error) {
	for _, s := range mod.Suites() {
		for _, source := range s.ClassDatasets() {
			datasets, err := source.Datasets()
			if err != nil {
				if derr := r.diag.Record("builder", "findDerivedClass",
					fmt.Sprintf("dataset source %T on class %s failed", source, s.Name), err); derr != nil {
					return effectiveClass{}, false, derr
				}
				continue
			}
			for _, ds := range datasets {
				if types.DeriveClassName(s.Name, ds.Name) == name {
					return effectiveClass{
						suite:       s,
						name:        name,
						datasetName: ds.Name,
						data:        ds.Data,
					}, true, nil
				}
			}
		}
	}
	return effectiveClass{}, false, nil
}

// expandClass enumerates one effective class into cases: an explicit
// test bypasses the filters; otherwise data-driven methods expand by
// their datasets and every candidate passes the tag and regex filters.
func (r *Resolver) expandClass(u types.TestUnit, class effectiveClass) ([]types.TestCase, error) {
	if u.Test != "" {
		return r.explicitTest(u, class)
	}

	var cases []types.TestCase
	for _, method := range class.suite.Methods() {
		switch {
		case strings.HasPrefix(method, types.DataDrivenPrefix):
			expanded, err := r.expandDataDriven(class, method)
			if err != nil {
				return nil, err
			}
			cases = append(cases, expanded...)
		case strings.HasPrefix(method, types.TestPrefix):
			tags := class.suite.TagsFor(method)
			c := r.newCase(class, method, method, "", nil, tags)
			if r.filters.MatchTags(tags) && r.filters.MatchPath(c.Path()) {
				cases = append(cases, c)
			}
		}
	}
	return cases, nil
}

// explicitTest resolves one named test on a class. The name matches a
// method directly or one of the names a data-driven method derives; it
// is exempt from tag and regex filters.
func (r *Resolver) explicitTest(u types.TestUnit, class effectiveClass) ([]types.TestCase, error) {
	if class.suite.HasMethod(u.Test) {
		return []types.TestCase{
			r.newCase(class, u.Test, u.Test, "", nil, class.suite.TagsFor(u.Test)),
		}, nil
	}

	for _, method := range class.suite.Methods() {
		if !strings.HasPrefix(method, types.DataDrivenPrefix) {
			continue
		}
		for _, source := range class.suite.TestDatasets(method) {
			datasets, err := source.Datasets()
			if err != nil {
				continue
			}
			for _, ds := range datasets {
				if types.DeriveTestName(method, ds.Name) != u.Test {
					continue
				}
				tags := types.MergeTags(class.suite.TagsFor(method), ds.Tags)
				return []types.TestCase{
					r.newCase(class, u.Test, method, ds.Name, ds.Data, tags),
				}, nil
			}
		}
	}

	if derr := r.diag.Record("builder", "explicitTest",
		fmt.Sprintf("test %s not found on class %s.%s", u.Test, u.Module, class.name), nil); derr != nil {
		return nil, derr
	}
	return nil, nil
}

// expandDataDriven derives the cases of one data-driven method. Every
// derived candidate carries the union of its method tags and dataset
// tags and still passes the filters.
func (r *Resolver) expandDataDriven(class effectiveClass, method string) ([]types.TestCase, error) {
	sources := class.suite.TestDatasets(method)
	if len(sources) == 0 {
		if derr := r.diag.Record("builder", "expandDataDriven",
			fmt.Sprintf("data-driven test %s on class %s has no registered datasets", method, class.suite.Name), nil); derr != nil {
			return nil, derr
		}
		return nil, nil
	}

	var cases []types.TestCase
	for _, source := range sources {
		datasets, err := source.Datasets()
		if err != nil {
			if derr := r.diag.Record("builder", "expandDataDriven",
				fmt.Sprintf("dataset source %T on %s.%s failed", source, class.suite.Name, method), err); derr != nil {
				return nil, derr
			}
			continue
		}
		if len(datasets) == 0 {
			if derr := r.diag.Record("builder", "expandDataDriven",
				fmt.Sprintf("dataset source %T on %s.%s is empty", source, class.suite.Name, method), nil); derr != nil {
				return nil, derr
			}
			continue
		}
		for _, ds := range datasets {
			name := types.DeriveTestName(method, ds.Name)
			tags := types.MergeTags(class.suite.TagsFor(method), ds.Tags)
			c := r.newCase(class, name, method, ds.Name, ds.Data, tags)
			if r.filters.MatchTags(tags) && r.filters.MatchPath(c.Path()) {
				cases = append(cases, c)
			}
		}
	}
	return cases, nil
}

func (r *Resolver) newCase(class effectiveClass, test, baseTest, dataset string, methodData map[string]any, tags []string) types.TestCase {
	dsName := dataset
	if dsName == "" {
		dsName = class.datasetName
	}
	return types.TestCase{
		Module:        class.suite.Type.PkgPath(),
		Class:         class.name,
		BaseClass:     class.suite.Name,
		Test:          test,
		BaseTest:      baseTest,
		DatasetName:   dsName,
		ClassData:     class.data,
		MethodData:    methodData,
		Tags:          tags,
		ExpectFail:    class.suite.ExpectFail(baseTest),
		Generator:     class.generator,
		GeneratorArgs: class.genArgs,
	}
}

// WriteList renders batches in replay syntax, one case per line, the
// same shape Resolve parses back.
func (r *Resolver) WriteList(w io.Writer, batches []types.Batch) error {
	for _, batch := range batches {
		for _, c := range batch.Cases {
			var line string
			switch {
			case c.Generator != "" && c.GeneratorArgs != "":
				line = fmt.Sprintf("%s (%s.%s: %s: %s)", c.BaseTest, c.Module, c.BaseClass, c.Generator, c.GeneratorArgs)
			case c.Generator != "":
				line = fmt.Sprintf("%s (%s.%s: %s)", c.BaseTest, c.Module, c.BaseClass, c.Generator)
			default:
				line = fmt.Sprintf("%s (%s.%s)", c.Test, c.Module, c.Class)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return fmt.Errorf("failed to write test list: %w", err)
			}
		}
	}
	return nil
}
