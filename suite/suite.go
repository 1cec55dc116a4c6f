// Package suite is the authoring surface for percolator test suites.
//
// A suite is a struct that embeds Fixture and carries exported methods
// with the signature func(*suite.T). Methods prefixed "Test" run as
// tests; methods prefixed "DDTest" are data-driven templates expanded
// once per registered dataset. Suites are registered from an init
// function via the registry package:
//
//	type CartSuite struct {
//		suite.Fixture
//		Region string
//	}
//
//	func (s *CartSuite) SetUpClass(t *suite.T) { ... }
//	func (s *CartSuite) TestAdd(t *suite.T)    { ... }
//
//	func init() {
//		registry.Register(&CartSuite{}, registry.WithTags("smoke"))
//	}
//
// The harness owns all control flow: it instantiates a fresh suite value
// per test, binds dataset fields, and drives the SetUpClass/SetUp/test/
// TearDown/TearDownClass sequence described by the runner package.
package suite

// Config exposes the resolved test configuration to suites, by section
// and key. Values set in the environment override values from the file.
type Config interface {
	Get(section, key string) (string, bool)
}

// ClassSetup is implemented by suites needing one-time setup before any
// of the class's tests run. A skip signalled here skips the whole class.
type ClassSetup interface {
	SetUpClass(t *T)
}

// ClassTeardown is implemented by suites needing one-time teardown after
// the class's tests finish. It only runs when SetUpClass completed.
type ClassTeardown interface {
	TearDownClass(t *T)
}

// TestSetup is implemented by suites needing per-test setup.
type TestSetup interface {
	SetUp(t *T)
}

// TestTeardown is implemented by suites needing per-test teardown. It
// runs whenever SetUp completed, whether or not the test body passed.
type TestTeardown interface {
	TearDown(t *T)
}
