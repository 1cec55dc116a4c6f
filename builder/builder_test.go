package builder

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percolator-ci/percolator/diag"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/suite"
	"github.com/percolator-ci/percolator/types"
)

const testModule = "github.com/percolator-ci/percolator/builder"

type CartSuite struct {
	suite.Fixture
	Region string
}

func (s *CartSuite) TestAdd(t *suite.T)     {}
func (s *CartSuite) TestRemove(t *suite.T)  {}
func (s *CartSuite) DDTestQuote(t *suite.T) {}

type PricingFixture struct {
	suite.Fixture
	Currency string
}

func (s *PricingFixture) TestRound(t *suite.T) {}

type SharedFixture struct {
	suite.Fixture
}

func (s *SharedFixture) TestNever(t *suite.T) {}

type failingSource struct{}

func (failingSource) Datasets() ([]types.Dataset, error) {
	return nil, errors.New("backing store down")
}

func quoteDatasets() types.DatasetList {
	return types.DatasetList{
		{Name: "eu", Data: map[string]any{"rate": 0.2}, Tags: []string{"eu"}},
		{Name: "us", Data: map[string]any{"rate": 0.07}},
	}
}

func currencyDatasets() types.DatasetList {
	return types.DatasetList{
		{Name: "usd", Data: map[string]any{"Currency": "USD"}},
		{Name: "gbp", Data: map[string]any{"Currency": "GBP"}},
	}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Add(&CartSuite{},
		registry.WithTags("cart"),
		registry.WithTestTags("TestAdd", "smoke"),
		registry.WithTestDatasets("DDTestQuote", quoteDatasets()),
	))
	require.NoError(t, reg.Add(&PricingFixture{},
		registry.WithDatasets(currencyDatasets()),
	))
	require.NoError(t, reg.Add(&SharedFixture{}))
	return reg
}

func newResolver(t *testing.T, reg *registry.Registry, filters types.Filters) *Resolver {
	t.Helper()
	return NewResolver(reg, filters, diag.NewReporter(nil, false), nil)
}

func casePaths(batches []types.Batch) []string {
	var out []string
	for _, b := range batches {
		for _, c := range b.Cases {
			out = append(out, c.Path())
		}
	}
	return out
}

func TestResolveRootDiscoversAndExpands(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{})

	batches, err := r.Resolve([]string{"github.com/percolator-ci/percolator"}, nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, testModule, batches[0].Module)

	assert.Equal(t, []string{
		// Method order is alphabetical; data-driven methods expand in
		// dataset order and the fixture-named suite runs only through
		// its derived classes.
		testModule + ".CartSuite.TestQuote_eu",
		testModule + ".CartSuite.TestQuote_us",
		testModule + ".CartSuite.TestAdd",
		testModule + ".CartSuite.TestRemove",
		testModule + ".Pricing_usd.TestRound",
		testModule + ".Pricing_gbp.TestRound",
	}, casePaths(batches))
}

func TestResolveExcludesPlainFixtures(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{})
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)
	for _, path := range casePaths(batches) {
		assert.NotContains(t, path, "SharedFixture")
	}
}

func TestDerivedClassCarriesBindingsAndProvenance(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{})
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)

	var derived *types.TestCase
	for i, c := range batches[0].Cases {
		if c.Class == "Pricing_usd" {
			derived = &batches[0].Cases[i]
			break
		}
	}
	require.NotNil(t, derived)
	assert.Equal(t, "PricingFixture", derived.BaseClass)
	assert.Equal(t, "usd", derived.DatasetName)
	assert.Equal(t, map[string]any{"Currency": "USD"}, derived.ClassData)
	assert.True(t, derived.Derived())
}

func TestDataDrivenCaseMergesDatasetTags(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{})
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)

	var eu *types.TestCase
	for i, c := range batches[0].Cases {
		if c.Test == "TestQuote_eu" {
			eu = &batches[0].Cases[i]
			break
		}
	}
	require.NotNil(t, eu)
	assert.Equal(t, "DDTestQuote", eu.BaseTest)
	assert.Equal(t, map[string]any{"rate": 0.2}, eu.MethodData)
	assert.ElementsMatch(t, []string{"cart", "eu"}, eu.Tags)
}

func TestTagFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters types.Filters
		want    []string
	}{
		{
			name:    "any mode matches intersection",
			filters: types.Filters{Tags: []string{"smoke"}},
			want:    []string{testModule + ".CartSuite.TestAdd"},
		},
		{
			name:    "class tags inherited",
			filters: types.Filters{Tags: []string{"cart"}},
			want: []string{
				testModule + ".CartSuite.TestQuote_eu",
				testModule + ".CartSuite.TestQuote_us",
				testModule + ".CartSuite.TestAdd",
				testModule + ".CartSuite.TestRemove",
			},
		},
		{
			name:    "all mode requires every tag",
			filters: types.Filters{Tags: []string{"cart", "eu"}, AllTags: true},
			want:    []string{testModule + ".CartSuite.TestQuote_eu"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, newTestRegistry(t), tt.filters)
			batches, err := r.Resolve([]string{testModule}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, casePaths(batches))
		})
	}
}

func TestRegexFilterMatchesDottedPath(t *testing.T) {
	regexes, err := types.CompileRegexes([]string{`CartSuite\.TestRe`})
	require.NoError(t, err)

	r := newResolver(t, newTestRegistry(t), types.Filters{Regexes: regexes})
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{testModule + ".CartSuite.TestRemove"}, casePaths(batches))
}

func TestResolveReplayLines(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddGenerator(testModule+".Currencies",
		func(args types.GeneratorArgs) (types.DatasetSource, error) {
			kw, err := args.Keywords()
			if err != nil {
				return nil, err
			}
			names, _ := kw["names"].([]any)
			var out types.DatasetList
			for _, n := range names {
				out = append(out, types.Dataset{
					Name: fmt.Sprint(n),
					Data: map[string]any{"Currency": strings.ToUpper(fmt.Sprint(n))},
				})
			}
			return out, nil
		}))

	replay := strings.Join([]string{
		"TestAdd (" + testModule + ".CartSuite)",
		"(" + testModule + ".CartSuite)",
		fmt.Sprintf(`TestRound (%s.PricingFixture: %s.Currencies: {"names": ["chf"]})`, testModule, testModule),
	}, "\n")

	r := newResolver(t, reg, types.Filters{})
	batches, err := r.Resolve(nil, strings.NewReader(replay))
	require.NoError(t, err)
	require.Len(t, batches, 1, "same module merges into one batch")

	assert.Equal(t, []string{
		testModule + ".CartSuite.TestAdd",
		testModule + ".CartSuite.TestQuote_eu",
		testModule + ".CartSuite.TestQuote_us",
		testModule + ".CartSuite.TestAdd",
		testModule + ".CartSuite.TestRemove",
		testModule + ".Pricing_chf.TestRound",
	}, casePaths(batches))

	last := batches[0].Cases[len(batches[0].Cases)-1]
	assert.Equal(t, map[string]any{"Currency": "CHF"}, last.ClassData)
	assert.Equal(t, testModule+".Currencies", last.Generator)
}

func TestExplicitTestBypassesFilters(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{Tags: []string{"no-such-tag"}})
	batches, err := r.Resolve(nil, strings.NewReader("TestRemove ("+testModule+".CartSuite)"))
	require.NoError(t, err)
	assert.Equal(t, []string{testModule + ".CartSuite.TestRemove"}, casePaths(batches))
}

func TestExplicitDerivedNamesResolve(t *testing.T) {
	replay := strings.Join([]string{
		// A data-driven derived test name maps back to its template.
		"TestQuote_us (" + testModule + ".CartSuite)",
		// A dataset-derived class name maps back to its base suite.
		"TestRound (" + testModule + ".Pricing_gbp)",
	}, "\n")

	r := newResolver(t, newTestRegistry(t), types.Filters{})
	batches, err := r.Resolve(nil, strings.NewReader(replay))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Cases, 2)

	quote := batches[0].Cases[0]
	assert.Equal(t, "DDTestQuote", quote.BaseTest)
	assert.Equal(t, map[string]any{"rate": 0.07}, quote.MethodData)

	round := batches[0].Cases[1]
	assert.Equal(t, "PricingFixture", round.BaseClass)
	assert.Equal(t, map[string]any{"Currency": "GBP"}, round.ClassData)
}

func TestResolveHardErrors(t *testing.T) {
	reg := newTestRegistry(t)
	tests := []struct {
		name string
		line string
	}{
		{"malformed line", "not a replay line at all"},
		{"bad json", `TestRound (` + testModule + `.PricingFixture: x.Gen: {broken)`},
		{"generator without class", `(` + testModule + `: x.Gen)`},
		{"unknown path", "(github.com/percolator-ci/nowhere.Suite)"},
		{"unknown class", "(" + testModule + ".GhostSuite)"},
		{"unknown generator", "TestRound (" + testModule + ".PricingFixture: x.Ghost)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, reg, types.Filters{})
			_, err := r.Resolve(nil, strings.NewReader(tt.line))
			assert.Error(t, err)
		})
	}
}

func TestInvalidRootFails(t *testing.T) {
	r := newResolver(t, newTestRegistry(t), types.Filters{})
	_, err := r.Resolve([]string{"bad path!"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid package root")
}

func TestEmptyDatasetSourceIsReported(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&CartSuite{},
		registry.WithTestDatasets("DDTestQuote", types.DatasetList{}),
	))

	rep := diag.NewReporter(nil, false)
	r := NewResolver(reg, types.Filters{}, rep, nil)
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		testModule + ".CartSuite.TestAdd",
		testModule + ".CartSuite.TestRemove",
	}, casePaths(batches))
	assert.Equal(t, 1, rep.Count(), "empty dataset list is a reported problem")
}

func TestFailingDatasetSourceHaltMode(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&PricingFixture{},
		registry.WithDatasets(failingSource{}),
	))

	r := NewResolver(reg, types.Filters{}, diag.NewReporter(nil, true), nil)
	_, err := r.Resolve([]string{testModule}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution halted")
}

func TestDataDrivenWithoutDatasetsIsReported(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&CartSuite{}))

	rep := diag.NewReporter(nil, false)
	r := NewResolver(reg, types.Filters{}, rep, nil)
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(casePaths(batches), " "), "Quote")
	assert.Equal(t, 1, rep.Count())
}

func TestWriteListRoundTrips(t *testing.T) {
	reg := newTestRegistry(t)
	r := newResolver(t, reg, types.Filters{})
	batches, err := r.Resolve([]string{testModule}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteList(&buf, batches))
	listing := buf.String()
	assert.Contains(t, listing, "TestQuote_eu ("+testModule+".CartSuite)")
	assert.Contains(t, listing, "TestRound ("+testModule+".Pricing_usd)")

	// The listing parses back into the same set of cases.
	again := newResolver(t, reg, types.Filters{})
	replayed, err := again.Resolve(nil, strings.NewReader(listing))
	require.NoError(t, err)
	assert.ElementsMatch(t, casePaths(batches), casePaths(replayed))
}
