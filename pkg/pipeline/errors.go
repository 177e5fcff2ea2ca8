package pipeline

import "errors"

// Sentinel errors for session lifecycle.
var (
	// ErrSessionActive is returned by StartSession while a session runs.
	ErrSessionActive = errors.New("pipeline: session already active")

	// ErrNoSession is returned by StopSession when no session runs.
	ErrNoSession = errors.New("pipeline: no active session")

	// ErrFramesOutstanding is returned by StopSession when an admitted frame
	// was not released in time. The next session waits for it.
	ErrFramesOutstanding = errors.New("pipeline: admitted frames not released")

	// ErrNoClassifier is returned by New without a classifier.
	ErrNoClassifier = errors.New("pipeline: classifier required")
)
