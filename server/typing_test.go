package main

import (
	"testing"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

func TestTypingExpiry(t *testing.T) {
	base := types.TimeNow()
	current := base
	tt := newTypingTracker()
	tt.now = func() time.Time { return current }

	alice := types.Uid(100)

	tt.note(alice)
	if !tt.isTyping(alice) {
		t.Error("typing immediately after key press: want true")
	}

	// Two seconds later the indicator is still on.
	current = base.Add(2 * time.Second)
	if !tt.isTyping(alice) {
		t.Error("typing after 2s: want true")
	}

	// Four seconds later it has expired.
	current = base.Add(4 * time.Second)
	if tt.isTyping(alice) {
		t.Error("typing after 4s: want false")
	}

	// The stale entry was pruned on read.
	tt.mu.Lock()
	_, ok := tt.seen[alice]
	tt.mu.Unlock()
	if ok {
		t.Error("stale entry not pruned")
	}
}

func TestTypingRefreshAndClear(t *testing.T) {
	base := types.TimeNow()
	current := base
	tt := newTypingTracker()
	tt.now = func() time.Time { return current }

	alice := types.Uid(100)
	bob := types.Uid(200)

	tt.note(alice)
	current = base.Add(2 * time.Second)
	tt.note(alice)

	// A refresh extends the deadline.
	current = base.Add(4 * time.Second)
	if !tt.isTyping(alice) {
		t.Error("typing 2s after refresh: want true")
	}

	// Sending the message clears the indicator at once.
	tt.clear(alice)
	if tt.isTyping(alice) {
		t.Error("typing after clear: want false")
	}

	// State is tracked per user.
	tt.note(bob)
	if tt.isTyping(alice) {
		t.Error("alice marked typing by bob's key press")
	}
	if !tt.isTyping(bob) {
		t.Error("bob typing: want true")
	}
}
