package box

import "errors"

// ErrLoopStopped is returned by Submit and Do once the loop has exited.
var ErrLoopStopped = errors.New("box: loop stopped")
