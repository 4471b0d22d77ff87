package main

/******************************************************************************
 *
 *  Description :
 *
 *    Server-side merged message view of a conversation.
 *
 *    The server owns the merge of stored history pages and live updates.
 *    Each attached session holds one liveView; the session receives {view}
 *    snapshots and renders them as-is, it never splices pages itself.
 *
 *****************************************************************************/

import (
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// liveView is the message window of one conversation as seen by one session.
// It is owned by the conversation's goroutine: no locking.
type liveView struct {
	conv   string
	viewer types.Uid

	// Messages in ascending display order.
	msgs []MsgViewMessage
	// More history exists beyond the oldest loaded message.
	hasMore bool

	// The viewer is at the bottom of the window, so live appends should
	// keep the client scrolled to the bottom.
	nearBottom bool

	// Viewer's permission snapshot included with each emitted {view}.
	perm convPerm
}

func newLiveView(conv string, viewer types.Uid) *liveView {
	return &liveView{conv: conv, viewer: viewer, nearBottom: true}
}

// msgToView converts a stored message to its wire form for the given viewer.
// Deleted messages keep their place in the window but carry no content.
func msgToView(msg *types.Message, viewer types.Uid) MsgViewMessage {
	view := MsgViewMessage{
		Id:        msg.Id,
		From:      types.ParseUid(msg.From).UserId(),
		CreatedAt: msg.CreatedAt,
		Type:      msg.Type,
		Edited:    msg.Edited,
		Deleted:   msg.Deleted,
	}
	if msg.Deleted {
		return view
	}

	view.Text = msg.Text
	view.Meta = msg.Meta
	view.Reactions = types.GroupReactions(msg.Reactions, viewer)
	for _, att := range msg.Attachments {
		view.Attachments = append(view.Attachments, MsgAttachment{
			Type:   string(att.Type),
			Url:    att.Url,
			Width:  att.Width,
			Height: att.Height,
		})
	}
	return view
}

// setPage replaces the window with the latest history page.
func (v *liveView) setPage(page []types.Message, hasMore bool) {
	v.msgs = make([]MsgViewMessage, 0, len(page))
	for i := range page {
		v.msgs = append(v.msgs, msgToView(&page[i], v.viewer))
	}
	v.hasMore = hasMore
	v.nearBottom = true
}

// cursor names the oldest message of the window: the position to resume
// loading history from. Empty when the window is empty.
func (v *liveView) cursor() string {
	if len(v.msgs) == 0 {
		return ""
	}
	return encodeCursor(v.msgs[0].CreatedAt, types.ParseUid(v.msgs[0].Id))
}

// mergeOlder prepends an older history page to the window. Messages already
// present keep their existing entries: live updates may have made the stored
// copy stale and the live copy is newer. Returns true if the window changed.
func (v *liveView) mergeOlder(page []types.Message, hasMore bool) bool {
	existing := make(map[string]bool, len(v.msgs))
	for i := range v.msgs {
		existing[v.msgs[i].Id] = true
	}

	var older []MsgViewMessage
	for i := range page {
		if !existing[page[i].Id] {
			older = append(older, msgToView(&page[i], v.viewer))
		}
	}

	changed := len(older) > 0 || v.hasMore != hasMore
	v.hasMore = hasMore
	if len(older) == 0 {
		return changed
	}

	merged := make([]MsgViewMessage, 0, len(older)+len(v.msgs))
	merged = append(merged, older...)
	merged = append(merged, v.msgs...)
	v.msgs = merged
	return true
}

// liveAppend adds a freshly published message to the bottom of the window.
// Returns true if the client should stay scrolled to the bottom.
func (v *liveView) liveAppend(msg *types.Message) bool {
	view := msgToView(msg, v.viewer)

	// Publishes are serialized per conversation, so the new message belongs
	// at the bottom. Guard against duplicate delivery anyway.
	for i := range v.msgs {
		if v.msgs[i].Id == view.Id {
			v.msgs[i] = view
			return false
		}
	}

	v.msgs = append(v.msgs, view)
	return v.nearBottom
}

// liveUpdate replaces the window's copy of an edited, deleted or
// reacted-upon message. Messages outside the loaded window are ignored: the
// stored copy is already updated and will be correct when scrolled to.
// Returns true if the window changed.
func (v *liveView) liveUpdate(msg *types.Message) bool {
	for i := range v.msgs {
		if v.msgs[i].Id == msg.Id {
			v.msgs[i] = msgToView(msg, v.viewer)
			return true
		}
	}
	return false
}

// snapshot builds the {view} packet for the current window state.
func (v *liveView) snapshot(ts time.Time, autoScroll bool) *ServerComMessage {
	return &ServerComMessage{View: &MsgServerView{
		Conv:       v.conv,
		Timestamp:  ts,
		Msgs:       v.msgs,
		HasMore:    v.hasMore,
		Cursor:     v.cursor(),
		AutoScroll: autoScroll,
		Perm:       v.perm.wireMsg(),
	}, RcptTo: v.conv, Timestamp: ts}
}
