package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestUidEncodeDecode(t *testing.T) {
	uids := []Uid{1, 0x7FFFFFFFFFFFFFFF, 0x8000000000000000, 0xFFFFFFFFFFFFFFFF, 12345678901234567}
	for _, uid := range uids {
		text, err := uid.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", uid, err)
		}
		if len(text) != uidBase64Unpadded {
			t.Errorf("MarshalText(%d): wrong length %d", uid, len(text))
		}
		var back Uid
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if back != uid {
			t.Errorf("round trip %d -> %s -> %d", uid, text, back)
		}
	}
}

func TestParseUserId(t *testing.T) {
	uid := Uid(9876543210)
	if got := ParseUserId(uid.UserId()); got != uid {
		t.Errorf("ParseUserId(%s) = %d, want %d", uid.UserId(), got, uid)
	}
	if got := ParseUserId(uid.String()); !got.IsZero() {
		t.Errorf("ParseUserId without prefix = %d, want zero", got)
	}
	if got := ParseUserId("usr"); !got.IsZero() {
		t.Errorf("ParseUserId(\"usr\") = %d, want zero", got)
	}
}

func TestConvName(t *testing.T) {
	alice, bob := Uid(0x1122334455667788), Uid(0x8877665544332211)

	// Same pair in either order yields the same name.
	name := alice.ConvName(bob)
	if name == "" {
		t.Fatal("ConvName returned empty string")
	}
	if name2 := bob.ConvName(alice); name2 != name {
		t.Errorf("ConvName is order-dependent: %s != %s", name, name2)
	}

	u1, u2, err := ParseConv(name)
	if err != nil {
		t.Fatalf("ParseConv(%s): %v", name, err)
	}
	if u1 != alice || u2 != bob {
		t.Errorf("ParseConv(%s) = %d, %d; want %d, %d", name, u1, u2, alice, bob)
	}

	if self := alice.ConvName(alice); self != "" {
		t.Errorf("ConvName with self = %q, want empty", self)
	}
	if zero := alice.ConvName(ZeroUid); zero != "" {
		t.Errorf("ConvName with zero = %q, want empty", zero)
	}
	if _, _, err := ParseConv("usr" + alice.String()); err == nil {
		t.Error("ParseConv accepted a user id")
	}
}

func TestEditable(t *testing.T) {
	now := TimeNow()
	author := Uid(100)
	other := Uid(200)

	msg := Message{From: author.String()}
	msg.CreatedAt = now.Add(-10 * time.Minute)

	if err := msg.Editable(author, now); err != nil {
		t.Errorf("fresh message by author: %v", err)
	}
	if err := msg.Editable(other, now); err != ErrNotAuthor {
		t.Errorf("edit by non-author: got %v, want %v", err, ErrNotAuthor)
	}

	// Boundary: exactly at the window the edit is no longer allowed.
	msg.CreatedAt = now.Add(-EditWindow)
	if err := msg.Editable(author, now); err != ErrEditWindowExpired {
		t.Errorf("edit at the window boundary: got %v, want %v", err, ErrEditWindowExpired)
	}
	msg.CreatedAt = now.Add(-EditWindow + time.Millisecond)
	if err := msg.Editable(author, now); err != nil {
		t.Errorf("edit just inside the window: %v", err)
	}

	msg.CreatedAt = now.Add(-time.Minute)
	msg.Deleted = true
	if err := msg.Editable(author, now); err != ErrNotAuthor {
		t.Errorf("edit of deleted message: got %v, want %v", err, ErrNotAuthor)
	}

	sys := Message{From: author.String(), Type: MessageSystem}
	sys.CreatedAt = now
	if err := sys.Editable(author, now); err != ErrNotAuthor {
		t.Errorf("edit of system message: got %v, want %v", err, ErrNotAuthor)
	}
}

func TestToggleReaction(t *testing.T) {
	now := TimeNow()
	alice, bob := Uid(100), Uid(200)

	var reactions []Reaction
	reactions, added := ToggleReaction(reactions, alice, "🔥", now)
	if !added || len(reactions) != 1 {
		t.Fatalf("first toggle: added=%v, len=%d", added, len(reactions))
	}

	// Same pair again removes it.
	reactions, added = ToggleReaction(reactions, alice, "🔥", now)
	if added || len(reactions) != 0 {
		t.Fatalf("second toggle: added=%v, len=%d", added, len(reactions))
	}

	// Different emoji and different user are independent.
	reactions, _ = ToggleReaction(reactions, alice, "🔥", now)
	reactions, _ = ToggleReaction(reactions, alice, "❤️", now)
	reactions, _ = ToggleReaction(reactions, bob, "🔥", now)
	if len(reactions) != 3 {
		t.Fatalf("independent toggles: len=%d, want 3", len(reactions))
	}
	reactions, added = ToggleReaction(reactions, bob, "🔥", now)
	if added || len(reactions) != 2 {
		t.Fatalf("removal of one pair: added=%v, len=%d", added, len(reactions))
	}
	for _, r := range reactions {
		if r.User == bob.String() {
			t.Errorf("removed the wrong reaction: %+v", r)
		}
	}
}

func TestGroupReactions(t *testing.T) {
	now := TimeNow()
	alice, bob, carol := Uid(100), Uid(200), Uid(300)

	reactions := []Reaction{
		{User: alice.String(), Emoji: "🔥", CreatedAt: now},
		{User: bob.String(), Emoji: "❤️", CreatedAt: now.Add(time.Second)},
		{User: carol.String(), Emoji: "🔥", CreatedAt: now.Add(2 * time.Second)},
	}

	want := []ReactionGroup{
		{Emoji: "🔥", Count: 2, Users: []string{alice.String(), carol.String()}},
		{Emoji: "❤️", Count: 1, Users: []string{bob.String()}, Mine: true},
	}
	got := GroupReactions(reactions, bob)
	if !cmp.Equal(got, want) {
		t.Errorf("GroupReactions mismatch:\n%s", cmp.Diff(want, got))
	}

	if got := GroupReactions(nil, bob); got != nil {
		t.Errorf("GroupReactions(nil) = %v, want nil", got)
	}
}

func TestSortMessages(t *testing.T) {
	now := TimeNow()
	mk := func(id Uid, at time.Time) Message {
		var m Message
		m.SetUid(id)
		m.CreatedAt = at
		return m
	}

	msgs := []Message{
		mk(3, now.Add(time.Second)),
		mk(2, now),
		mk(1, now),
	}
	SortMessages(msgs)

	wantOrder := []Uid{1, 2, 3}
	for i, w := range wantOrder {
		if msgs[i].Uid() != w {
			t.Errorf("position %d: got %d, want %d", i, msgs[i].Uid(), w)
		}
	}
}

func TestUidGenerator(t *testing.T) {
	var ug UidGenerator
	if err := ug.Init(1, []byte("0123456789012345")); err != nil {
		t.Fatal(err)
	}

	seen := map[Uid]bool{}
	for i := 0; i < 100; i++ {
		uid := ug.Get()
		if uid.IsZero() {
			t.Fatal("generated zero uid")
		}
		if seen[uid] {
			t.Fatalf("duplicate uid %d", uid)
		}
		seen[uid] = true

		if back := ug.EncodeInt64(ug.DecodeUid(uid)); back != uid {
			t.Errorf("decode/encode round trip: %d != %d", back, uid)
		}
	}
}
