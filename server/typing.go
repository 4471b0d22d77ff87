package main

/******************************************************************************
 *
 *  Description :
 *
 *    Transient typing state of conversation participants.
 *
 *****************************************************************************/

import (
	"sync"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// How long a key-press notification is considered current.
const typingTimeout = 3 * time.Second

// typingTracker holds the last key-press time per participant of one
// conversation. The state is best effort: it is never persisted and is lost
// on restart. Stale entries are filtered on read rather than by timers.
type typingTracker struct {
	mu   sync.Mutex
	seen map[types.Uid]time.Time

	// Clock, replaceable in tests.
	now func() time.Time
}

func newTypingTracker() *typingTracker {
	return &typingTracker{
		seen: make(map[types.Uid]time.Time),
		now:  types.TimeNow,
	}
}

// note records a key press by the given user.
func (tt *typingTracker) note(uid types.Uid) {
	now := tt.now()
	tt.mu.Lock()
	tt.seen[uid] = now
	tt.mu.Unlock()
}

// clear drops the typing state of the given user, i.e. when the user sends
// the message being typed.
func (tt *typingTracker) clear(uid types.Uid) {
	tt.mu.Lock()
	delete(tt.seen, uid)
	tt.mu.Unlock()
}

// isTyping reports whether the given user pressed a key within the timeout.
// Expired entries are pruned here.
func (tt *typingTracker) isTyping(uid types.Uid) bool {
	deadline := tt.now().Add(-typingTimeout)
	tt.mu.Lock()
	defer tt.mu.Unlock()

	ts, ok := tt.seen[uid]
	if !ok {
		return false
	}
	if ts.Before(deadline) || ts.Equal(deadline) {
		delete(tt.seen, uid)
		return false
	}
	return true
}
