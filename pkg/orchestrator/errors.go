package orchestrator

import "errors"

// Sentinel errors classifying why a capability could not serve a request.
// All of them are caught at the operation boundary and converted to degraded
// output; none escape to callers under normal operation.
var (
	// ErrUnsupported means the host does not expose the capability at all.
	ErrUnsupported = errors.New("orchestrator: capability not exposed by host")

	// ErrUnavailable means the host reports the capability cannot run on
	// this device.
	ErrUnavailable = errors.New("orchestrator: capability unavailable on this device")

	// ErrNeedsGesture means the capability needs a one-time asset
	// download, which requires a direct user interaction the current call
	// does not have.
	ErrNeedsGesture = errors.New("orchestrator: model download requires a user interaction")

	// ErrStreamFailed means both the streaming protocol and the batch
	// retry failed.
	ErrStreamFailed = errors.New("orchestrator: generation failed")

	// ErrNoSession means a chat operation was invoked with no live chat
	// session.
	ErrNoSession = errors.New("orchestrator: no active chat session")
)
