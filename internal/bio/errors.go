package bio

import "errors"

// ErrUnknownKind is the §4.3.4 "unknown job kind" failure. Pool.Submit
// panics with it on the calling goroutine, before anything is queued,
// when the kind is not one of the three fixed queues — a programmer
// error, never a recoverable one.
var ErrUnknownKind = errors.New("bio: unknown job kind")
