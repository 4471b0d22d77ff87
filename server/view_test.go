package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

var (
	viewCreator = types.Uid(1001)
	viewViewer  = types.Uid(2002)
)

func viewMsg(id types.Uid, ts time.Time, text string) types.Message {
	msg := types.Message{
		Conversation: viewCreator.ConvName(viewViewer),
		From:         viewCreator.String(),
		Text:         text,
	}
	msg.SetUid(id)
	msg.CreatedAt = ts
	msg.UpdatedAt = ts
	return msg
}

func TestViewSetPageAndCursor(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	page := []types.Message{
		viewMsg(types.Uid(10), base, "first"),
		viewMsg(types.Uid(11), base.Add(time.Minute), "second"),
	}
	v.setPage(page, true)

	if len(v.msgs) != 2 {
		t.Fatalf("window size expected 2, got %d", len(v.msgs))
	}
	if v.msgs[0].Text != "first" || v.msgs[1].Text != "second" {
		t.Error("page order must be preserved")
	}
	if !v.hasMore {
		t.Error("hasMore not carried over")
	}

	want := encodeCursor(base, types.Uid(10))
	if got := v.cursor(); got != want {
		t.Errorf("cursor expected %q, got %q", want, got)
	}
}

func TestViewCursorEmptyWindow(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	if got := v.cursor(); got != "" {
		t.Errorf("empty window cursor expected blank, got %q", got)
	}
}

func TestViewMergeOlderKeepsLiveCopies(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	v.setPage([]types.Message{
		viewMsg(types.Uid(20), base.Add(2*time.Minute), "overlap live"),
		viewMsg(types.Uid(21), base.Add(3*time.Minute), "newest"),
	}, true)

	// The stored copy of message 20 is stale relative to the window.
	stale := viewMsg(types.Uid(20), base.Add(2*time.Minute), "overlap stale")
	older := []types.Message{
		viewMsg(types.Uid(18), base, "oldest"),
		viewMsg(types.Uid(19), base.Add(time.Minute), "older"),
		stale,
	}

	if !v.mergeOlder(older, false) {
		t.Fatal("merge with new messages must report a change")
	}

	wantIds := []string{
		types.Uid(18).String(), types.Uid(19).String(),
		types.Uid(20).String(), types.Uid(21).String(),
	}
	var gotIds []string
	for i := range v.msgs {
		gotIds = append(gotIds, v.msgs[i].Id)
	}
	if !cmp.Equal(wantIds, gotIds) {
		t.Errorf("merged order mismatch: %s", cmp.Diff(wantIds, gotIds))
	}

	// The live copy wins over the stale stored one.
	if v.msgs[2].Text != "overlap live" {
		t.Errorf("overlapping message replaced by stale copy: %q", v.msgs[2].Text)
	}
	if v.hasMore {
		t.Error("hasMore must be updated by the merge")
	}
}

func TestViewMergeOlderNoChange(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	page := []types.Message{viewMsg(types.Uid(30), base, "only")}

	v.setPage(page, true)
	if v.mergeOlder(page, true) {
		t.Error("merging an already loaded page must not report a change")
	}
	if !v.mergeOlder(page, false) {
		t.Error("hasMore transition alone is still a change")
	}
}

func TestViewLiveAppend(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	v.setPage([]types.Message{viewMsg(types.Uid(40), base, "old")}, false)

	fresh := viewMsg(types.Uid(41), base.Add(time.Minute), "new")
	if !v.liveAppend(&fresh) {
		t.Error("append with viewer at the bottom must request auto-scroll")
	}
	if len(v.msgs) != 2 || v.msgs[1].Id != fresh.Id {
		t.Fatal("message not appended at the bottom")
	}

	// Duplicate delivery replaces in place and never scrolls.
	fresh.Text = "new, edited"
	if v.liveAppend(&fresh) {
		t.Error("duplicate append must not request auto-scroll")
	}
	if len(v.msgs) != 2 {
		t.Fatalf("duplicate append grew the window to %d", len(v.msgs))
	}
	if v.msgs[1].Text != "new, edited" {
		t.Error("duplicate append must refresh the window copy")
	}

	v.nearBottom = false
	another := viewMsg(types.Uid(42), base.Add(2*time.Minute), "while scrolled up")
	if v.liveAppend(&another) {
		t.Error("append with viewer scrolled up must not request auto-scroll")
	}
}

func TestViewLiveUpdate(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	v.setPage([]types.Message{viewMsg(types.Uid(50), base, "original")}, false)

	edited := viewMsg(types.Uid(50), base, "edited")
	edited.Edited = true
	if !v.liveUpdate(&edited) {
		t.Fatal("update of a loaded message must report a change")
	}
	if v.msgs[0].Text != "edited" || !v.msgs[0].Edited {
		t.Error("window copy not replaced")
	}

	outside := viewMsg(types.Uid(51), base.Add(-time.Hour), "not loaded")
	if v.liveUpdate(&outside) {
		t.Error("update of a message outside the window must be ignored")
	}
}

func TestViewDeletedMessagePlaceholder(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	msg := viewMsg(types.Uid(60), base, "secret")
	msg.Attachments = []types.Attachment{{Type: types.MediaImage, Url: "/v0/file/s/abc"}}
	msg.Deleted = true

	view := msgToView(&msg, viewViewer)
	if !view.Deleted {
		t.Error("deleted flag lost")
	}
	if view.Text != "" || view.Attachments != nil || view.Reactions != nil {
		t.Error("deleted message must carry no content")
	}
	if view.Id != msg.Id || !view.CreatedAt.Equal(base) {
		t.Error("deleted message must keep its identity and position")
	}
}

func TestViewSnapshot(t *testing.T) {
	v := newLiveView("cnvTest", viewViewer)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	v.setPage([]types.Message{viewMsg(types.Uid(70), base, "hello")}, true)
	v.perm = convPerm{canSend: true, canSendMedia: true}

	ts := base.Add(time.Minute)
	snap := v.snapshot(ts, true)
	if snap.View == nil {
		t.Fatal("snapshot must carry a view packet")
	}
	if snap.View.Conv != "cnvTest" || snap.RcptTo != "cnvTest" {
		t.Error("snapshot addressed to the wrong conversation")
	}
	if !snap.View.HasMore || snap.View.Cursor == "" || !snap.View.AutoScroll {
		t.Error("snapshot flags lost")
	}
	if snap.View.Perm == nil || !snap.View.Perm.CanSend {
		t.Error("snapshot must include the permission snapshot")
	}
}
