// Package tracking associates per-frame detections into tracks with stable
// identities.
//
// Responsibilities: the Tracker contract consumed by the cascade, a
// ByteTrack-style multi-object tracker (staged IoU association over
// high- and low-score detections), track lifecycle (tentative, tracked,
// lost, removed) and the Hungarian solver used for assignment.
// Key types: Object, Track, ByteTracker.
//
// Trackers are not safe for concurrent use; callers serialise Update.
package tracking
