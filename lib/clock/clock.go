// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the current time for testability. Production code
// injects Real(); tests inject Fake() with deterministic control.
//
// Every expiry decision in the bridge (challenges, grants, pending
// enrollments) reads the clock at the moment of the check. There are
// no background sweeper goroutines, so Now is the only operation the
// managers need.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package. Times
// returned by its Now carry Go's monotonic clock reading, so interval
// comparisons (Before/After/Sub) are immune to wall-clock steps.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
