package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/percolator-ci/percolator/logging"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/results"
	"github.com/percolator-ci/percolator/suite"
	"github.com/percolator-ci/percolator/types"
)

// RunBatch executes one module's cases: module setup once, the module's
// class groups in discovery order, module teardown once. Breakage in a
// module hook becomes a single non-test error; a failed setup means the
// module's tests never run.
func (r *runner) RunBatch(ctx context.Context, batch types.Batch) *results.Aggregate {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("module %s", batch.Module))
	defer span.End()

	agg := results.NewAggregate()
	defer agg.Finish()

	r.ui.StartBatch(batch.Module, len(batch.Cases))

	mod, ok := r.registry.Module(batch.Module)
	if !ok {
		agg.AddNonTestError(batch.Module, fmt.Sprintf("module %s is not registered", batch.Module)).Module = batch.Module
		return agg
	}

	if err := guardHook(ctx, mod.SetUp); err != nil {
		r.log.Error("Module setup failed, skipping its tests", "module", batch.Module, "error", err)
		agg.AddNonTestError(batch.Module+".setUpModule", err.Error()).Module = batch.Module
		return agg
	}

	r.runClassGroups(ctx, mod, groupByClass(batch.Cases), agg)

	if err := guardHook(ctx, mod.TearDown); err != nil {
		r.log.Error("Module teardown failed", "module", batch.Module, "error", err)
		agg.AddNonTestError(batch.Module+".tearDownModule", err.Error()).Module = batch.Module
	}
	return agg
}

// guardHook runs a module hook, converting a panic into an error.
func guardHook(ctx context.Context, hook func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n\n%s", rec, debug.Stack())
		}
	}()
	return hook(ctx)
}

// classGroup is one class's cases in discovery order.
type classGroup struct {
	name  string
	cases []types.TestCase
}

// groupByClass splits a batch's cases into class groups, preserving the
// order classes first appear in.
func groupByClass(cases []types.TestCase) []classGroup {
	var groups []classGroup
	index := make(map[string]int)
	for _, tc := range cases {
		i, ok := index[tc.Class]
		if !ok {
			i = len(groups)
			index[tc.Class] = i
			groups = append(groups, classGroup{name: tc.Class})
		}
		groups[i].cases = append(groups[i].cases, tc)
	}
	return groups
}

// runClassGroups dispatches class groups serially or across the class
// worker pool. Groups are independent either way: each fills its own
// aggregate, merged back in discovery order.
func (r *runner) runClassGroups(ctx context.Context, mod *registry.Module, groups []classGroup, agg *results.Aggregate) {
	if r.classWorkers <= 1 || len(groups) == 1 {
		for _, group := range groups {
			if ctx.Err() != nil {
				return
			}
			agg.Merge(r.runClassGroup(ctx, mod, group))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(min(r.classWorkers, len(groups)))
	parts := make([]*results.Aggregate, len(groups))
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			parts[i] = r.runClassGroup(ctx, mod, group)
			return nil
		})
	}
	_ = g.Wait()

	for _, part := range parts {
		agg.Merge(part)
	}
}

// runClassGroup executes one class group: class setup exactly once, the
// group's tests, then the cleanup drain and class teardown. A skip
// signalled during setup records one module-level skip and zero per-test
// entries; any other setup breakage records one non-test error. The
// cleanup drain runs on every path that reached setup; teardown only
// when setup completed.
func (r *runner) runClassGroup(ctx context.Context, mod *registry.Module, group classGroup) *results.Aggregate {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("class %s", group.name))
	defer span.End()

	agg := results.NewAggregate()
	defer agg.Finish()
	scope := mod.Path + "." + group.name
	scoped := func(name, errText string) {
		l := agg.AddNonTestError(name, errText)
		l.Module, l.Class = mod.Path, group.name
	}

	base := group.cases[0]
	entry, ok := mod.Suite(base.BaseClass)
	if !ok {
		scoped(scope, fmt.Sprintf("suite %s is not registered in module %s", base.BaseClass, mod.Path))
		return agg
	}

	capture := logging.NewCaptureHandler()
	classLogger := slog.New(capture)
	defer func() { agg.AddRecords(capture.Records()) }()

	cs := suite.NewClassState()
	inst := entry.New()
	if err := suite.Attach(inst, cs, classLogger, r.cfg); err != nil {
		scoped(scope, err.Error())
		return agg
	}
	if err := suite.ApplyBindings(inst, base.ClassData); err != nil {
		scoped(scope, fmt.Sprintf("dataset binding: %v", err))
		return agg
	}

	// Cleanup tasks drain before teardown, in reverse registration
	// order, on every exit below this point. Individual failures are
	// logged and never stop the drain.
	defer func() {
		for _, cleanupErr := range cs.DrainCleanups() {
			classLogger.Error("Class cleanup task failed", "class", scope, "error", cleanupErr)
		}
		if !cs.SetupCompleted() {
			return
		}
		teardown, ok := inst.(suite.ClassTeardown)
		if !ok {
			return
		}
		tt := suite.NewT(ctx, results.NewTestLog(scope), classLogger, r.cfg, nil)
		if err := suite.Invoke(tt, teardown.TearDownClass); err != nil {
			scoped(scope+".tearDownClass", err.Error())
		} else if tt.Failed() {
			scoped(scope+".tearDownClass", tt.FailureText())
		}
	}()

	if setup, ok := inst.(suite.ClassSetup); ok {
		st := suite.NewT(ctx, results.NewTestLog(scope), classLogger, r.cfg, nil)
		err := suite.Invoke(st, setup.SetUpClass)
		switch {
		case err != nil:
			r.log.Error("Class setup failed, skipping its tests", "class", scope, "error", err)
			scoped(scope+".setUpClass", err.Error())
			return agg
		case st.Skipped():
			r.log.Info("Class skipped during setup", "class", scope, "reason", st.SkipReason())
			l := agg.AddModuleSkip(scope, st.SkipReason())
			l.Module, l.Class = mod.Path, group.name
			return agg
		case st.Failed():
			scoped(scope+".setUpClass", st.FailureText())
			return agg
		}
	}
	cs.MarkSetupCompleted()

	r.runCases(ctx, entry, cs, group.cases, agg)
	return agg
}

// runCases dispatches a class group's tests serially or across the test
// worker pool, each against its own aggregate merged back afterwards.
func (r *runner) runCases(ctx context.Context, entry *registry.Suite, cs *suite.ClassState, cases []types.TestCase, agg *results.Aggregate) {
	if r.testWorkers <= 1 || len(cases) == 1 {
		for _, tc := range cases {
			if ctx.Err() != nil {
				return
			}
			r.runCase(ctx, entry, cs, tc, agg)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(min(r.testWorkers, len(cases)))
	parts := make([]*results.Aggregate, len(cases))
	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			part := results.NewAggregate()
			r.runCase(ctx, entry, cs, tc, part)
			parts[i] = part
			return nil
		})
	}
	_ = g.Wait()

	for _, part := range parts {
		agg.Merge(part)
	}
}
