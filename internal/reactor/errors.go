package reactor

import "errors"

// ErrOutOfRange is returned by AddFile when fd is at or past the
// loop's capacity (§4.1 "add_file").
var ErrOutOfRange = errors.New("reactor: fd out of range")

// ErrStopped is returned by operations attempted against a Loop whose
// Destroy has already run.
var ErrStopped = errors.New("reactor: loop is stopped")
