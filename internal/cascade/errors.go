package cascade

import "errors"

var (
	// ErrConfiguration is returned for a profile or model set that does
	// not fit the behavior. The pipeline keeps its previous models.
	ErrConfiguration = errors.New("cascade: configuration error")

	// ErrInference marks a pass aborted by a failed engine call. The
	// tracker and statistics stay consistent for later frames.
	ErrInference = errors.New("cascade: inference failed")

	// ErrNotLoaded is returned when inferring before LoadModels succeeded.
	ErrNotLoaded = errors.New("cascade: models not loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cascade: pipeline closed")
)
