package capture

import "errors"

// Error taxonomy for the recording session lifecycle. Fatal errors prevent or
// abort a session; PermissionDenied and Unsupported are non-fatal for the
// optional tracks and degrade the session to video-only.
var (
	// ErrAlreadyInProgress is returned when startRecording is called while a
	// session exists (any state other than idle).
	ErrAlreadyInProgress = errors.New("recording already in progress")

	// ErrNoActiveSession is returned when stop is called from idle.
	ErrNoActiveSession = errors.New("no active recording session")

	// ErrSourceUnavailable means the mandatory video track could not be
	// acquired (missing source, denied OS permission prompt).
	ErrSourceUnavailable = errors.New("capture source unavailable")

	// ErrPermissionDenied means the optional microphone track was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrUnsupported means system-audio capture is not available on this
	// platform or engine build.
	ErrUnsupported = errors.New("system audio capture unsupported")

	// ErrEncoderFailure is a fatal mid-session encoder error; the controller
	// reacts with a forced cleanup equivalent to cancel.
	ErrEncoderFailure = errors.New("encoder failure")
)
