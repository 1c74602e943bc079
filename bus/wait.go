package bus

import (
	"sync"
	"time"
)

// waitUntil blocks on cv (whose Locker must already be held by the
// caller) until either Broadcast is called or deadline passes, whichever
// is first. sync.Cond has no native deadline support, so a one-shot timer
// is armed to broadcast at the deadline; SendRequest re-checks both the
// response table and the deadline after every wakeup to tolerate
// spurious wakeups, per spec.md §4.9.
func waitUntil(cv *sync.Cond, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, func() {
		cv.L.Lock()
		cv.Broadcast()
		cv.L.Unlock()
	})
	defer timer.Stop()
	cv.Wait()
}
