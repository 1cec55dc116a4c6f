// Package runner executes resolved test cases across two levels of
// worker pools.
//
// The main components are:
//   - TestRunner: Drives a run; a fixed pool of module workers pulls
//     batches from a channel and sends one Aggregate back per batch
//   - batch execution: One worker runs a module's class groups with
//     setup and teardown exactly once per scope, serially or under a
//     bounded class pool
//   - single-test contract: Each case gets a fresh suite value, bound
//     dataset fields, the SetUp/test/TearDown sequence with panic
//     recovery, and its own captured log records
//   - ProgressIndicator: Optional live feedback while workers complete
//     tests asynchronously
//
// Results never cross goroutines by sharing: every scope fills its own
// Aggregate and the collector merges them as batches finish.
package runner
