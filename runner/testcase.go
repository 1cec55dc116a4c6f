package runner

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/percolator-ci/percolator/logging"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/suite"
	"github.com/percolator-ci/percolator/types"
)

// runCase executes one resolved case and records exactly one result
// entry on agg. The case gets a fresh suite value with dataset fields
// bound, then SetUp, the test method, and TearDown, with panic recovery
// at every step. Log records written through the test's logger are
// captured onto its result log.
func (r *runner) runCase(ctx context.Context, entry *registry.Suite, cs *suite.ClassState, tc types.TestCase, agg *results.Aggregate) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Path()))
	defer span.End()

	r.ui.StartTest(tc.Path())

	handle := agg.StartTest(tc.Path(), entry.Description(tc.BaseTest))
	handle.Module = tc.Module
	handle.Class = tc.Class

	capture := logging.NewCaptureHandler()
	testLogger := slog.New(capture)
	defer func() {
		handle.Records = append(handle.Records, capture.Records()...)
		r.ui.TestFinished(tc.Path(), handle.EffectiveStatus())
	}()

	inst := entry.New()
	if err := suite.Attach(inst, cs, testLogger, r.cfg); err != nil {
		agg.AddError(handle, err.Error())
		return
	}
	if err := suite.ApplyBindings(inst, tc.ClassData); err != nil {
		agg.AddError(handle, fmt.Sprintf("dataset binding: %v", err))
		return
	}

	t := suite.NewT(ctx, handle, testLogger, r.cfg, tc.MethodData)

	// A broken SetUp settles the test on its own: the body and TearDown
	// only run when setup finished cleanly.
	if setup, ok := inst.(suite.TestSetup); ok {
		err := suite.Invoke(t, setup.SetUp)
		switch {
		case err != nil:
			agg.AddError(handle, err.Error())
			return
		case t.Skipped():
			agg.AddSkip(handle, t.SkipReason())
			return
		case t.Failed():
			agg.AddFailure(handle, t.FailureText())
			return
		}
	}

	method := reflect.ValueOf(inst).MethodByName(tc.BaseTest)
	if !method.IsValid() {
		agg.AddError(handle, fmt.Sprintf("method %s is not defined on %s", tc.BaseTest, tc.BaseClass))
		return
	}

	bodyErr := suite.Invoke(t, func(h *suite.T) {
		method.Call([]reflect.Value{reflect.ValueOf(h)})
	})

	var teardownErr error
	if teardown, ok := inst.(suite.TestTeardown); ok {
		teardownErr = suite.Invoke(t, teardown.TearDown)
	}

	resolveOutcome(agg, handle, t, tc.ExpectFail, bodyErr, teardownErr)
}

// resolveOutcome routes a finished test to the matching result call.
// Expected-failure tests invert failure and success; a skip always stays
// a skip. With no direct outcome the status derives from subtests.
func resolveOutcome(agg *results.Aggregate, handle *results.TestLog, t *suite.T, expectFail bool, hookErrs ...error) {
	var errTexts []string
	for _, err := range hookErrs {
		if err != nil {
			errTexts = append(errTexts, err.Error())
		}
	}

	status := types.StatusSuccess
	var text string
	switch {
	case len(errTexts) > 0:
		status, text = types.StatusError, strings.Join(errTexts, "\n\n")
	case t.Skipped():
		status, text = types.StatusSkipped, t.SkipReason()
	case t.Failed():
		status, text = types.StatusFailure, t.FailureText()
	default:
		if derived, derivedText := handle.DerivedOutcome(); derived.Determined() {
			status, text = derived, derivedText
		}
	}

	if expectFail {
		switch status {
		case types.StatusFailure, types.StatusError:
			agg.AddExpectedFailure(handle, text)
			return
		case types.StatusSuccess:
			agg.AddUnexpectedSuccess(handle)
			return
		}
	}

	switch status {
	case types.StatusError:
		agg.AddError(handle, text)
	case types.StatusFailure:
		agg.AddFailure(handle, text)
	case types.StatusSkipped:
		agg.AddSkip(handle, text)
	default:
		agg.AddSuccess(handle)
	}
}
