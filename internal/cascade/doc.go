// Package cascade runs the two-stage behavior detection cascade.
//
// A pass takes one frame through a primary detector, the tracker, a
// per-track secondary detector run on scaled crops, the cover matcher and
// the sequence statistics engine. One Pipeline serves one behavior, as
// described by its Profile; the stages themselves live in the tracking,
// cover and sequence packages and the inference engine sits behind
// detect.Engine.
//
// Passes are applied to the tracker and statistics strictly in submission
// order, whether they arrive through SyncInfer or AsyncInfer.
package cascade
