package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/percolator-ci/percolator/suite"
	"github.com/percolator-ci/percolator/types"
)

// Registry manages registered test suites, dataset generators and module
// hooks. Suites register themselves from init functions via the
// package-level Default registry; resolution reads it concurrently.
type Registry struct {
	mu         sync.RWMutex
	modules    map[string]*Module
	order      []string
	generators map[string]types.GeneratorFactory
}

// Module groups the suites registered under one import path, plus the
// optional module-level setup and teardown hooks.
type Module struct {
	Path string

	suites   []*Suite
	byName   map[string]*Suite
	setUp    func(context.Context) error
	tearDown func(context.Context) error
}

// Suite is the registered metadata for one suite type: its name, its
// reflected struct type, tags, datasets and per-test annotations.
type Suite struct {
	Name string
	Type reflect.Type

	tags         []string
	datasets     []types.DatasetSource
	testTags     map[string][]string
	testDatasets map[string][]types.DatasetSource
	descriptions map[string]string
	expectFail   map[string]bool
}

// Option customizes one suite registration.
type Option func(*Suite)

// WithName overrides the suite's registered class name. The default is
// the struct type's name.
func WithName(name string) Option {
	return func(s *Suite) { s.Name = name }
}

// WithTags attaches class-level tags, inherited by every test of the
// suite.
func WithTags(tags ...string) Option {
	return func(s *Suite) { s.tags = append(s.tags, tags...) }
}

// WithTestTags attaches tags to one test method.
func WithTestTags(test string, tags ...string) Option {
	return func(s *Suite) { s.testTags[test] = append(s.testTags[test], tags...) }
}

// WithDatasets attaches class-level dataset sources. Resolution derives
// one class per dataset, binding the dataset's values onto suite fields.
func WithDatasets(sources ...types.DatasetSource) Option {
	return func(s *Suite) { s.datasets = append(s.datasets, sources...) }
}

// WithTestDatasets attaches dataset sources to one data-driven test
// method. Resolution derives one test per dataset.
func WithTestDatasets(test string, sources ...types.DatasetSource) Option {
	return func(s *Suite) { s.testDatasets[test] = append(s.testDatasets[test], sources...) }
}

// WithTestDescription records a one-line description for a test, shown
// by the most verbose console mode.
func WithTestDescription(test, description string) Option {
	return func(s *Suite) { s.descriptions[test] = description }
}

// WithExpectedFailures marks tests whose failure is the expected
// outcome. A pass from one of these is reported as an unexpected
// success.
func WithExpectedFailures(tests ...string) Option {
	return func(s *Suite) {
		for _, test := range tests {
			s.expectFail[test] = true
		}
	}
}

// ModuleOption customizes a module registration.
type ModuleOption func(*Module)

// WithSetUp installs a hook that runs once before any of the module's
// tests. A failure is reported as a non-test error and the module's
// tests do not run.
func WithSetUp(fn func(context.Context) error) ModuleOption {
	return func(m *Module) { m.setUp = fn }
}

// WithTearDown installs a hook that runs once after all the module's
// tests finish.
func WithTearDown(fn func(context.Context) error) ModuleOption {
	return func(m *Module) { m.tearDown = fn }
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		modules:    make(map[string]*Module),
		generators: make(map[string]types.GeneratorFactory),
	}
}

// Default is the process-wide registry that init-time registration
// targets.
var Default = New()

// Register adds a suite to the Default registry, panicking on invalid
// input. It is meant to be called from init functions, where a panic is
// the only useful failure mode.
func Register(s any, opts ...Option) {
	if err := Default.Add(s, opts...); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// RegisterGenerator adds a dataset generator factory to the Default
// registry under its dotted name, panicking on conflict.
func RegisterGenerator(name string, factory types.GeneratorFactory) {
	if err := Default.AddGenerator(name, factory); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// RegisterModule records module-level hooks on the Default registry,
// panicking on invalid input.
func RegisterModule(path string, opts ...ModuleOption) {
	if err := Default.AddModule(path, opts...); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// Add registers a suite. The value must be a non-nil pointer to a struct
// that embeds suite.Fixture; its import path becomes the module path and
// its type name the default class name.
func (r *Registry) Add(s any, opts ...Option) error {
	if s == nil {
		return fmt.Errorf("suite is nil")
	}
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("suite %T is not a non-nil struct pointer", s)
	}
	if !suite.Embeds(s) {
		return fmt.Errorf("suite %T does not embed suite.Fixture", s)
	}

	tp := v.Elem().Type()
	entry := &Suite{
		Name:         tp.Name(),
		Type:         tp,
		testTags:     make(map[string][]string),
		testDatasets: make(map[string][]types.DatasetSource),
		descriptions: make(map[string]string),
		expectFail:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(entry)
	}
	if entry.Name == "" {
		return fmt.Errorf("suite %T has no name", s)
	}

	path := tp.PkgPath()
	if path == "" {
		return fmt.Errorf("suite %T has no package path", s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mod := r.ensureModule(path)
	if _, exists := mod.byName[entry.Name]; exists {
		return fmt.Errorf("suite %s already registered in module %s", entry.Name, path)
	}
	mod.suites = append(mod.suites, entry)
	mod.byName[entry.Name] = entry
	return nil
}

// AddGenerator registers a dataset generator factory under a dotted
// name, the same name replay files reference.
func (r *Registry) AddGenerator(name string, factory types.GeneratorFactory) error {
	if name == "" {
		return fmt.Errorf("generator name is empty")
	}
	if factory == nil {
		return fmt.Errorf("generator %s has a nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.generators[name]; exists {
		return fmt.Errorf("generator %s already registered", name)
	}
	r.generators[name] = factory
	return nil
}

// AddModule records module-level hooks for an import path. Calling it is
// only needed for hooks; suite registration creates modules implicitly.
func (r *Registry) AddModule(path string, opts ...ModuleOption) error {
	if path == "" {
		return fmt.Errorf("module path is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	mod := r.ensureModule(path)
	for _, opt := range opts {
		opt(mod)
	}
	return nil
}

// ensureModule returns the module for path, creating it in registration
// order. Callers hold the write lock.
func (r *Registry) ensureModule(path string) *Module {
	if mod, ok := r.modules[path]; ok {
		return mod
	}
	mod := &Module{Path: path, byName: make(map[string]*Suite)}
	r.modules[path] = mod
	r.order = append(r.order, path)
	return mod
}

// Module returns the registered module for an exact import path.
func (r *Registry) Module(path string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[path]
	return mod, ok
}

// Modules lists every registered module path in registration order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ModulesUnder lists the registered module paths at or below a package
// root, sorted. A path is below the root when it equals the root or
// extends it at a path-segment boundary.
func (r *Registry) ModulesUnder(root string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, path := range r.order {
		if path == root || strings.HasPrefix(path, root+"/") {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Generator returns a registered dataset generator factory by name.
func (r *Registry) Generator(name string) (types.GeneratorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.generators[name]
	return factory, ok
}

// Suites returns the module's suites in registration order.
func (m *Module) Suites() []*Suite {
	out := make([]*Suite, len(m.suites))
	copy(out, m.suites)
	return out
}

// Suite returns one of the module's suites by class name.
func (m *Module) Suite(name string) (*Suite, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// SetUp runs the module setup hook, if any.
func (m *Module) SetUp(ctx context.Context) error {
	if m.setUp == nil {
		return nil
	}
	return m.setUp(ctx)
}

// TearDown runs the module teardown hook, if any.
func (m *Module) TearDown(ctx context.Context) error {
	if m.tearDown == nil {
		return nil
	}
	return m.tearDown(ctx)
}

// tType is the parameter type every test method must accept.
var tType = reflect.TypeOf((*suite.T)(nil))

// Methods returns the names of the suite's exported methods with the
// test signature func(*suite.T), in reflection's sorted order. Lifecycle
// hooks match the signature too; callers filter by prefix.
func (s *Suite) Methods() []string {
	ptr := reflect.PointerTo(s.Type)
	var out []string
	for i := 0; i < ptr.NumMethod(); i++ {
		m := ptr.Method(i)
		if m.Type.NumIn() == 2 && m.Type.NumOut() == 0 && m.Type.In(1) == tType {
			out = append(out, m.Name)
		}
	}
	return out
}

// HasMethod reports whether the suite has a method with the test
// signature under the given name.
func (s *Suite) HasMethod(name string) bool {
	m, ok := reflect.PointerTo(s.Type).MethodByName(name)
	if !ok {
		return false
	}
	return m.Type.NumIn() == 2 && m.Type.NumOut() == 0 && m.Type.In(1) == tType
}

// New returns a fresh instance of the suite as a struct pointer.
func (s *Suite) New() any {
	return reflect.New(s.Type).Interface()
}

// Tags returns the class-level tags.
func (s *Suite) Tags() []string {
	return s.tags
}

// TagsFor returns the union of class-level tags and the tags registered
// for one test.
func (s *Suite) TagsFor(test string) []string {
	return types.MergeTags(s.tags, s.testTags[test])
}

// ClassDatasets returns the class-level dataset sources.
func (s *Suite) ClassDatasets() []types.DatasetSource {
	return s.datasets
}

// TestDatasets returns the dataset sources registered for one
// data-driven test method.
func (s *Suite) TestDatasets(test string) []types.DatasetSource {
	return s.testDatasets[test]
}

// Description returns the registered description for a test, if any.
func (s *Suite) Description(test string) string {
	return s.descriptions[test]
}

// ExpectFail reports whether a test is registered as an expected
// failure.
func (s *Suite) ExpectFail(test string) bool {
	return s.expectFail[test]
}
