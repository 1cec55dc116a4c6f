package types

import "strings"

// TestStatus represents the outcome of a single test.
type TestStatus string

const (
	StatusUnset             TestStatus = "unset"
	StatusSuccess           TestStatus = "success"
	StatusFailure           TestStatus = "failure"
	StatusError             TestStatus = "error"
	StatusSkipped           TestStatus = "skipped"
	StatusExpectedFailure   TestStatus = "expected-failure"
	StatusUnexpectedSuccess TestStatus = "unexpected-success"
)

// Determined reports whether the status marks a finished test.
func (s TestStatus) Determined() bool {
	return s != StatusUnset && s != ""
}

// Counts reports whether the status counts against the run's success
// predicate.
func (s TestStatus) Counts() bool {
	return s == StatusFailure || s == StatusError || s == StatusUnexpectedSuccess
}

const (
	// TestPrefix marks a suite method as a runnable test.
	TestPrefix = "Test"
	// DataDrivenPrefix marks a suite method as a data-driven template
	// expanded once per dataset.
	DataDrivenPrefix = "DDTest"
)

// TestUnit identifies one requested unit of test work before expansion:
// an owning module, an optional explicit class, an optional data generator
// with its constructor arguments, and an optional explicit test name.
// Units are immutable after construction and enumerated exactly once
// during resolution.
//
// Invariant: a unit that names a Generator must also name a Class; data
// cannot be applied to an implicit class search.
type TestUnit struct {
	Module    string
	Class     string
	Generator string // dotted path of a registered generator factory
	Args      GeneratorArgs
	Test      string
}

// HasGenerator reports whether the unit carries a data generator.
func (u TestUnit) HasGenerator() bool {
	return u.Generator != ""
}

// TestCase is one fully resolved, self-contained test descriptor. A case
// carries everything a worker needs to run the test: the registered suite
// to instantiate (BaseClass), the method to invoke (BaseTest), dataset
// bindings, and effective tags. Workers re-resolve the descriptor against
// the registry, so cases cross queues without carrying live objects.
type TestCase struct {
	Module      string
	Class       string // display class name, possibly dataset-derived
	BaseClass   string // registered suite name to instantiate
	Test        string // display test name, possibly dataset-derived
	BaseTest    string // method to invoke
	DatasetName string
	ClassData   map[string]any // suite field bindings from a class-level dataset
	MethodData  map[string]any // call parameters from a method-level dataset
	Tags        []string
	ExpectFail  bool

	// Generator provenance, kept so dry-run listings stay replayable.
	Generator     string
	GeneratorArgs string
}

// Path returns the fully dotted path module.Class.Test used by regex
// filters, result keys and display output.
func (c TestCase) Path() string {
	return c.Module + "." + c.Class + "." + c.Test
}

// Derived reports whether the case was synthesized from a dataset.
func (c TestCase) Derived() bool {
	return c.DatasetName != ""
}

// Batch is the unit of top-level work distribution: one module and every
// case resolved for it, in discovery order.
type Batch struct {
	Module string
	Cases  []TestCase
}

// DeriveClassName builds the class name for a dataset-derived class: the
// base name with every case-insensitive "fixture" substring removed,
// suffixed with the dataset name.
func DeriveClassName(base, dataset string) string {
	return stripFixture(base) + "_" + dataset
}

// DeriveTestName builds the method name for a dataset-derived test: the
// base name with the data-driven marker stripped back to the plain test
// prefix, suffixed with the dataset name.
func DeriveTestName(base, dataset string) string {
	name := base
	if strings.HasPrefix(name, DataDrivenPrefix) {
		name = TestPrefix + strings.TrimPrefix(name, DataDrivenPrefix)
	}
	return name + "_" + dataset
}

func stripFixture(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	for i := 0; i < len(name); {
		if j := strings.Index(lower[i:], "fixture"); j >= 0 {
			b.WriteString(name[i : i+j])
			i += j + len("fixture")
			continue
		}
		b.WriteString(name[i:])
		break
	}
	return b.String()
}
