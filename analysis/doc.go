// Package analysis turns captured frames into per-frame analyses by
// calling the vision endpoint in rate-paced batches.
//
// The contract callers rely on: AnalyzeBatch always returns exactly one
// FrameAnalysis per input frame, in input order. A failed inference call
// degrades that one frame to an errored analysis; it never aborts the
// batch and is never retried. Between batches the analyzer sleeps a
// fixed delay to stay inside the upstream rate limit. Results are
// cached by frame content so identical frames with identical prompts
// cost one upstream call, and concurrent misses on the same key are
// collapsed through singleflight.
package analysis
