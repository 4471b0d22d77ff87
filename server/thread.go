/******************************************************************************
 *
 *  Description :
 *
 *    Conversation runtime. All writes to a conversation and all {view}
 *    snapshots sent to its attached sessions pass through a single
 *    goroutine, which serializes them.
 *
 *****************************************************************************/

package main

import (
	"strings"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/push"
	"github.com/RinKhimera/fantribe-messenger/server/queue"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Default and maximum number of messages in a single history page.
const (
	defMessagesPage = 24
	maxMessagesPage = 128
)

// How long an idle conversation stays live after the last session detaches.
const idleThreadTimeout = time.Second * 15

// threadExit is a request from the hub to terminate the conversation
// goroutine.
type threadExit struct {
	// Channel to report completion, may be nil.
	done chan<- bool
}

// Thread is the runtime of a single live conversation.
type Thread struct {
	// Routable name, "cnv..."
	name string

	hub *Hub

	// Attach requests from the hub, buffered: joins queue here while the
	// conversation record is loading.
	reg chan *sessionJoin

	// Detach requests from sessions, buffered.
	unreg chan *sessionLeave

	// Client requests routed by attached sessions, buffered.
	client chan *ClientComMessage

	// Server-generated messages routed by the hub, buffered.
	supply chan *ServerComMessage

	// Termination request from the hub, buffer 1.
	exit chan *threadExit

	// Transient typing state. Has its own lock: the hub reads it directly.
	typing *typingTracker

	// Loaded conversation record. Nil until the first successful join.
	conv *types.Conversation

	// Attached sessions, each with its own message window.
	sessions map[*Session]*liveView

	// Fires when the conversation has been idle long enough to unload.
	killTimer *time.Timer
}

func newThread(name string, hub *Hub) *Thread {
	return &Thread{
		name:     name,
		hub:      hub,
		reg:      make(chan *sessionJoin, 32),
		unreg:    make(chan *sessionLeave, 32),
		client:   make(chan *ClientComMessage, 64),
		supply:   make(chan *ServerComMessage, 32),
		exit:     make(chan *threadExit, 1),
		typing:   newTypingTracker(),
		sessions: make(map[*Session]*liveView),
	}
}

func (t *Thread) run() {
	t.killTimer = time.NewTimer(idleThreadTimeout)

	for {
		select {
		case join := <-t.reg:
			t.handleJoin(join)

		case leave := <-t.unreg:
			t.handleLeave(leave)

		case msg := <-t.client:
			t.handleClient(msg)

		case msg := <-t.supply:
			t.handleSupply(msg)

		case <-t.killTimer.C:
			// Ask the hub to take the conversation offline. The hub replies
			// with an exit request.
			t.hub.unreg <- &threadUnreg{conv: t.name}

		case req := <-t.exit:
			for sess := range t.sessions {
				sess.delSub(t.name)
			}
			if req.done != nil {
				req.done <- true
			}
			return
		}
	}
}

// loadConversation loads the conversation record, creating it when the join
// names a peer rather than an existing conversation.
func (t *Thread) loadConversation(join *sessionJoin) error {
	me := types.ParseUserId(join.pkt.AsUser)

	if join.pkt.Sub.With != "" {
		peer := types.ParseUserId(join.pkt.Sub.With)

		users, err := store.Users.GetAll(me, peer)
		if err != nil {
			return err
		}
		if len(users) != 2 {
			return types.ErrNotFound
		}
		byId := map[string]*types.User{
			users[0].Id: &users[0],
			users[1].Id: &users[1],
		}
		meUser, peerUser := byId[me.String()], byId[peer.String()]
		if meUser == nil || peerUser == nil {
			return types.ErrNotFound
		}

		// Exactly one side takes the creator role. When both accounts are
		// creators the messaged peer takes it: the requester is acting as a
		// subscriber. When neither is a creator there is no subscription to
		// gate on and the conversation cannot exist.
		var creator, user types.Uid
		switch {
		case peerUser.IsCreator:
			creator, user = peer, me
		case meUser.IsCreator:
			creator, user = me, peer
		default:
			return types.ErrPermissionDenied
		}

		conv, err := store.Conversations.GetOrCreate(creator, user)
		if err != nil {
			return err
		}
		t.conv = conv
		return nil
	}

	conv, err := store.Conversations.Get(t.name)
	if err != nil {
		return err
	}
	if conv == nil {
		return types.ErrNotFound
	}
	t.conv = conv
	return nil
}

// handleJoin attaches a session to the conversation, sending it the
// conversation descriptor and the initial message window.
func (t *Thread) handleJoin(join *sessionJoin) {
	pkt, sess := join.pkt, join.sess
	asUid := types.ParseUserId(pkt.AsUser)

	if t.conv == nil {
		if err := t.loadConversation(join); err != nil {
			logs.Warn.Println("thread: load failed", t.name, err, sess.sid)
			sess.queueOut(decodeStoreError(err, pkt.Id, pkt.RcptTo, pkt.Timestamp))
			return
		}
	}

	if err := globals.perm.checkRead(t.conv, asUid); err != nil {
		sess.queueOut(decodeStoreError(err, pkt.Id, t.name, pkt.Timestamp))
		return
	}

	perm, err := globals.perm.eval(t.conv, asUid, pkt.Timestamp)
	if err != nil {
		logs.Warn.Println("thread: perm eval failed", t.name, err, sess.sid)
		sess.queueOut(ErrUnknown(pkt.Id, t.name, pkt.Timestamp))
		return
	}

	limit := defMessagesPage
	if pkt.Sub.Get != nil && pkt.Sub.Get.Msgs != nil && pkt.Sub.Get.Msgs.Limit > 0 {
		limit = pkt.Sub.Get.Msgs.Limit
		if limit > maxMessagesPage {
			limit = maxMessagesPage
		}
	}
	page, hasMore, err := t.loadPage(&types.BrowseOpt{}, limit)
	if err != nil {
		logs.Warn.Println("thread: message load failed", t.name, err, sess.sid)
		sess.queueOut(ErrUnknown(pkt.Id, t.name, pkt.Timestamp))
		return
	}

	view := newLiveView(t.name, asUid)
	view.perm = perm
	view.setPage(page, hasMore)

	t.sessions[sess] = view
	sess.addSub(t.name, &Subscription{msgs: t.client, done: t.unreg})
	t.killTimer.Stop()

	sess.queueOut(NoErrParams(pkt.Id, t.name, pkt.Timestamp, map[string]string{"conv": t.name}))
	sess.queueOut(t.makeDesc(pkt.Id, asUid, pkt.Timestamp))
	sess.queueOut(view.snapshot(pkt.Timestamp, false))
}

// handleLeave detaches a session. With a packet it is an explicit {leave}
// which gets a reply; without one the session is gone.
func (t *Thread) handleLeave(leave *sessionLeave) {
	if _, attached := t.sessions[leave.sess]; !attached {
		if leave.pkt != nil {
			leave.sess.queueOut(ErrNotFound(leave.pkt.Id, t.name, leave.pkt.Timestamp))
		}
		return
	}

	delete(t.sessions, leave.sess)
	if leave.pkt != nil {
		leave.sess.queueOut(NoErr(leave.pkt.Id, t.name, leave.pkt.Timestamp))
	}

	if len(t.sessions) == 0 {
		t.killTimer.Reset(idleThreadTimeout)
	}
}

func (t *Thread) handleClient(msg *ClientComMessage) {
	if _, attached := t.sessions[msg.sess]; !attached {
		// The session detached while the request was in flight.
		return
	}

	switch {
	case msg.Pub != nil:
		t.handlePublish(msg)
	case msg.Edit != nil:
		t.handleEdit(msg)
	case msg.Del != nil:
		t.handleDelete(msg)
	case msg.React != nil:
		t.handleReact(msg)
	case msg.Note != nil:
		t.handleNote(msg)
	case msg.Get != nil:
		t.handleGet(msg)
	case msg.Set != nil:
		t.handleSet(msg)
	default:
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
	}
}

// handleSupply processes a server-generated message: currently only the
// administrative lock notification.
func (t *Thread) handleSupply(msg *ServerComMessage) {
	if msg.Info == nil || msg.Info.What != "lock" {
		return
	}

	// Re-read the conversation: the lock was persisted outside this
	// goroutine.
	conv, err := store.Conversations.Get(t.name)
	if err != nil || conv == nil {
		logs.Warn.Println("thread: reload on lock failed", t.name, err)
		return
	}
	t.conv = conv

	// The transition may have left a system message in history.
	var sysMsg *types.Message
	if msg.Info.Msg != "" {
		if id := types.ParseUid(msg.Info.Msg); !id.IsZero() {
			if sysMsg, err = store.Messages.Get(t.name, id); err != nil {
				logs.Warn.Println("thread: system message fetch failed", t.name, err)
			}
		}
	}

	for sess, view := range t.sessions {
		perm, err := globals.perm.eval(t.conv, view.viewer, msg.Timestamp)
		if err != nil {
			logs.Warn.Println("thread: perm eval failed", t.name, err, sess.sid)
			continue
		}
		view.perm = perm
		if sysMsg != nil {
			view.liveAppend(sysMsg)
		}
		sess.queueOut(&ServerComMessage{Info: msg.Info, RcptTo: t.name, Timestamp: msg.Timestamp})
		sess.queueOut(view.snapshot(msg.Timestamp, false))
	}
}

// checkSend validates that the viewer may post to the conversation right now.
// Returns a ready-to-send error packet, nil when the send is allowed.
func (t *Thread) checkSend(asUid types.Uid, wantMedia bool, id string, ts time.Time) *ServerComMessage {
	if err := globals.perm.checkRead(t.conv, asUid); err != nil {
		return decodeStoreError(err, id, t.name, ts)
	}
	perm, err := globals.perm.eval(t.conv, asUid, ts)
	if err != nil {
		logs.Warn.Println("thread: perm eval failed", t.name, err)
		return ErrUnknown(id, t.name, ts)
	}
	if !perm.canSend {
		return ErrLocked(id, t.name, ts, perm.lockedReason)
	}
	if wantMedia && !perm.canSendMedia {
		return ErrPermissionDenied(id, t.name, ts)
	}
	return nil
}

func (t *Thread) handlePublish(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)

	atts, err := parseAttachments(msg.Pub.Attachments)
	if err != nil {
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
		return
	}

	if reply := t.checkSend(asUid, len(atts) > 0, msg.Id, msg.Timestamp); reply != nil {
		msg.sess.queueOut(reply)
		return
	}

	text := strings.TrimSpace(msg.Pub.Text)
	if text == "" && len(atts) == 0 {
		msg.sess.queueOut(ErrEmptyMessage(msg.Id, t.name, msg.Timestamp))
		return
	}

	stored := &types.Message{
		Conversation: t.name,
		From:         asUid.String(),
		Text:         text,
		Attachments:  atts,
	}
	preview := messagePreview(stored)

	stored, err = store.Messages.Save(stored, preview)
	if err != nil {
		logs.Warn.Println("thread: message save failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	statsInc("TotalMessages", 1)

	// Sending implies the participant stopped typing.
	t.typing.clear(asUid)

	// Keep the in-memory copy aligned with what the adapter persisted.
	t.conv.Preview = preview
	t.conv.TouchedAt = stored.CreatedAt
	recipient := t.conv.OtherUser(asUid)
	if recipient.String() == t.conv.Creator {
		t.conv.CreatorUnread++
	} else {
		t.conv.UserUnread++
	}

	msg.sess.queueOut(NoErrParams(msg.Id, t.name, msg.Timestamp, map[string]any{
		"msg": stored.Id,
		"ts":  stored.CreatedAt,
	}))

	t.broadcastAppend(stored)
	t.pushNewMessage(asUid, recipient, stored, preview)

	globals.events.Publish(&queue.Event{
		What:      "message.created",
		Conv:      t.name,
		From:      asUid.UserId(),
		Params:    map[string]any{"msg": stored.Id, "attachments": len(stored.Attachments)},
		Timestamp: stored.CreatedAt,
	})
}

// broadcastAppend adds the new message to every attached window and sends the
// updated snapshots.
func (t *Thread) broadcastAppend(stored *types.Message) {
	for sess, view := range t.sessions {
		autoScroll := view.liveAppend(stored)
		sess.queueOut(view.snapshot(stored.CreatedAt, autoScroll))
	}
}

// broadcastUpdate replaces the edited, deleted or reacted-upon message in
// every window which holds it and sends the updated snapshots.
func (t *Thread) broadcastUpdate(stored *types.Message, ts time.Time) {
	for sess, view := range t.sessions {
		if view.liveUpdate(stored) {
			sess.queueOut(view.snapshot(ts, false))
		}
	}
}

// pushNewMessage sends a push notification for the new message to the
// recipient, unless the recipient muted the conversation.
func (t *Thread) pushNewMessage(from, recipient types.Uid, stored *types.Message, preview string) {
	if t.conv.MutedFor(recipient) {
		return
	}

	// Count the recipient's attached sessions: a delivered message needs no
	// notification banner.
	delivered := 0
	for _, view := range t.sessions {
		if view.viewer == recipient {
			delivered++
		}
	}

	rcpt := &push.Receipt{
		To: map[types.Uid]push.Recipient{
			recipient: {Delivered: delivered, Unread: t.conv.UnreadFor(recipient)},
		},
		Payload: push.Payload{
			What:         push.ActMsg,
			Conversation: t.name,
			Timestamp:    stored.CreatedAt,
			From:         from.UserId(),
			MsgId:        stored.Id,
			Preview:      preview,
		},
	}
	// Delivery may block on the push service. Keep it off the thread loop.
	globals.taskPool.Schedule(func() { push.Push(rcpt) })
}

func (t *Thread) handleEdit(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)

	msgId := types.ParseUid(msg.Edit.Msg)
	if msgId.IsZero() {
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
		return
	}

	if reply := t.checkSend(asUid, false, msg.Id, msg.Timestamp); reply != nil {
		msg.sess.queueOut(reply)
		return
	}

	stored, err := store.Messages.Get(t.name, msgId)
	if err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	if stored == nil {
		msg.sess.queueOut(ErrNotFound(msg.Id, t.name, msg.Timestamp))
		return
	}

	if err := stored.Editable(asUid, msg.Timestamp); err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}

	text := strings.TrimSpace(msg.Edit.Text)
	if text == "" && len(stored.Attachments) == 0 {
		msg.sess.queueOut(ErrEmptyMessage(msg.Id, t.name, msg.Timestamp))
		return
	}

	if err := store.Messages.Update(t.name, msgId, map[string]any{
		"Text":   text,
		"Edited": true,
	}); err != nil {
		logs.Warn.Println("thread: edit failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	stored.Text = text
	stored.Edited = true

	t.refreshPreview(stored)

	msg.sess.queueOut(NoErr(msg.Id, t.name, msg.Timestamp))
	t.broadcastUpdate(stored, msg.Timestamp)
}

func (t *Thread) handleDelete(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)

	msgId := types.ParseUid(msg.Del.Msg)
	if msgId.IsZero() {
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
		return
	}

	// Deleting one's own message stays possible while the conversation is
	// locked.
	if err := globals.perm.checkRead(t.conv, asUid); err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}

	stored, err := store.Messages.Get(t.name, msgId)
	if err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	if stored == nil {
		msg.sess.queueOut(ErrNotFound(msg.Id, t.name, msg.Timestamp))
		return
	}
	if stored.Type == types.MessageSystem || stored.From != asUid.String() {
		msg.sess.queueOut(ErrNotAuthor(msg.Id, t.name, msg.Timestamp))
		return
	}
	if stored.Deleted {
		// Already deleted, nothing to do.
		msg.sess.queueOut(NoErr(msg.Id, t.name, msg.Timestamp))
		return
	}

	// Soft delete: the row keeps its place in history, the content is gone.
	if err := store.Messages.Update(t.name, msgId, map[string]any{
		"Deleted":     true,
		"Text":        "",
		"Attachments": nil,
		"Reactions":   nil,
	}); err != nil {
		logs.Warn.Println("thread: delete failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	stored.Deleted = true
	stored.Text = ""
	stored.Attachments = nil
	stored.Reactions = nil

	t.refreshPreview(stored)

	msg.sess.queueOut(NoErr(msg.Id, t.name, msg.Timestamp))
	t.broadcastUpdate(stored, msg.Timestamp)

	globals.events.Publish(&queue.Event{
		What:      "message.deleted",
		Conv:      t.name,
		From:      asUid.UserId(),
		Params:    map[string]any{"msg": stored.Id},
		Timestamp: msg.Timestamp,
	})
}

// refreshPreview recomputes the conversation preview when the changed
// message is the one the preview was built from.
func (t *Thread) refreshPreview(stored *types.Message) {
	if !stored.CreatedAt.Equal(t.conv.TouchedAt) {
		return
	}

	preview := messagePreview(stored)
	if preview == t.conv.Preview {
		return
	}
	if err := store.Conversations.Update(t.name, map[string]any{"Preview": preview}); err != nil {
		logs.Warn.Println("thread: preview update failed", t.name, err)
		return
	}
	t.conv.Preview = preview
}

func (t *Thread) handleReact(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)

	msgId := types.ParseUid(msg.React.Msg)
	if msgId.IsZero() || msg.React.Emoji == "" {
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
		return
	}

	if reply := t.checkSend(asUid, false, msg.Id, msg.Timestamp); reply != nil {
		msg.sess.queueOut(reply)
		return
	}

	stored, err := store.Messages.Get(t.name, msgId)
	if err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	if stored == nil || stored.Deleted {
		msg.sess.queueOut(ErrNotFound(msg.Id, t.name, msg.Timestamp))
		return
	}

	reactions, added := types.ToggleReaction(stored.Reactions, asUid, msg.React.Emoji, msg.Timestamp)
	if err := store.Messages.Update(t.name, msgId, map[string]any{
		"Reactions": reactions,
	}); err != nil {
		logs.Warn.Println("thread: reaction update failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}
	stored.Reactions = reactions

	msg.sess.queueOut(NoErrParams(msg.Id, t.name, msg.Timestamp, map[string]any{
		"added": added,
	}))
	t.broadcastUpdate(stored, msg.Timestamp)
}

// handleNote processes transient notifications: typing and read receipts.
// Notes are never acknowledged, failures are only logged.
func (t *Thread) handleNote(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)
	if globals.perm.checkRead(t.conv, asUid) != nil {
		return
	}

	switch msg.Note.What {
	case "kp":
		t.typing.note(asUid)

	case "read":
		if err := store.Conversations.MarkRead(t.name, asUid); err != nil {
			logs.Warn.Println("thread: mark read failed", t.name, err)
			return
		}
		if asUid.String() == t.conv.Creator {
			t.conv.CreatorUnread = 0
		} else {
			t.conv.UserUnread = 0
		}

	default:
		return
	}

	// Fan out to the other attached sessions. The sender's other sessions
	// receive it too, which lets them sync their own unread state.
	info := &ServerComMessage{
		Info:      &MsgServerInfo{Conv: t.name, From: asUid.UserId(), What: msg.Note.What},
		RcptTo:    t.name,
		Timestamp: msg.Timestamp,
		SkipSid:   msg.sess.sid,
	}
	for sess := range t.sessions {
		if sess.sid != msg.sess.sid {
			sess.queueOut(info)
		}
	}
}

func (t *Thread) handleGet(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)
	if err := globals.perm.checkRead(t.conv, asUid); err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}

	switch msg.Get.What {
	case "desc":
		msg.sess.queueOut(t.makeDesc(msg.Id, asUid, msg.Timestamp))

	case "msgs":
		t.handleGetMsgs(msg)

	case "typing":
		ts := msg.Timestamp
		msg.sess.queueOut(&ServerComMessage{Meta: &MsgServerMeta{
			Id:        msg.Id,
			Conv:      t.name,
			Timestamp: &ts,
			Desc: &MsgConvDesc{
				Conv:   t.name,
				Typing: t.typing.isTyping(t.conv.OtherUser(asUid)),
			},
		}, RcptTo: t.name, Timestamp: ts})

	case "perms":
		perm, err := globals.perm.eval(t.conv, asUid, msg.Timestamp)
		if err != nil {
			logs.Warn.Println("thread: perm eval failed", t.name, err, msg.sess.sid)
			msg.sess.queueOut(ErrUnknown(msg.Id, t.name, msg.Timestamp))
			return
		}
		ts := msg.Timestamp
		msg.sess.queueOut(&ServerComMessage{Meta: &MsgServerMeta{
			Id:        msg.Id,
			Conv:      t.name,
			Timestamp: &ts,
			Desc:      &MsgConvDesc{Conv: t.name, Perm: perm.wireMsg()},
		}, RcptTo: t.name, Timestamp: ts})

	default:
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
	}
}

// handleGetMsgs loads a page of history into the session's window. A request
// without a cursor reloads the latest page. A cursor which no longer names
// the oldest loaded message is stale, i.e. it was superseded by a newer
// request, and is dropped.
func (t *Thread) handleGetMsgs(msg *ClientComMessage) {
	view := t.sessions[msg.sess]

	limit := defMessagesPage
	var before string
	if msg.Get.Msgs != nil {
		before = msg.Get.Msgs.Before
		if msg.Get.Msgs.Limit > 0 {
			limit = msg.Get.Msgs.Limit
			if limit > maxMessagesPage {
				limit = maxMessagesPage
			}
		}
	}

	if before == "" {
		page, hasMore, err := t.loadPage(&types.BrowseOpt{}, limit)
		if err != nil {
			logs.Warn.Println("thread: message load failed", t.name, err, msg.sess.sid)
			msg.sess.queueOut(ErrUnknown(msg.Id, t.name, msg.Timestamp))
			return
		}
		view.setPage(page, hasMore)
		msg.sess.queueOut(view.snapshot(msg.Timestamp, false))
		return
	}

	if before != view.cursor() {
		msg.sess.queueOut(NoContentParams(msg.Id, t.name, msg.Timestamp, map[string]string{"what": "msgs"}))
		return
	}

	opts, err := msgOpts2storeOpts(msg.Get.Msgs)
	if err != nil {
		msg.sess.queueOut(ErrMalformed(msg.Id, t.name, msg.Timestamp))
		return
	}
	page, hasMore, err := t.loadPage(opts, limit)
	if err != nil {
		logs.Warn.Println("thread: message load failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(ErrUnknown(msg.Id, t.name, msg.Timestamp))
		return
	}

	if view.mergeOlder(page, hasMore) {
		msg.sess.queueOut(view.snapshot(msg.Timestamp, false))
	} else {
		msg.sess.queueOut(NoContentParams(msg.Id, t.name, msg.Timestamp, map[string]string{"what": "msgs"}))
	}
}

// handleSet updates the viewer's pinned/muted toggles.
func (t *Thread) handleSet(msg *ClientComMessage) {
	asUid := types.ParseUserId(msg.AsUser)
	if err := globals.perm.checkRead(t.conv, asUid); err != nil {
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}

	isCreator := asUid.String() == t.conv.Creator
	update := make(map[string]any)
	if msg.Set.Pinned != nil {
		if isCreator {
			update["CreatorPinned"] = *msg.Set.Pinned
		} else {
			update["UserPinned"] = *msg.Set.Pinned
		}
	}
	if msg.Set.Muted != nil {
		if isCreator {
			update["CreatorMuted"] = *msg.Set.Muted
		} else {
			update["UserMuted"] = *msg.Set.Muted
		}
	}

	if err := store.Conversations.Update(t.name, update); err != nil {
		logs.Warn.Println("thread: set failed", t.name, err, msg.sess.sid)
		msg.sess.queueOut(decodeStoreError(err, msg.Id, t.name, msg.Timestamp))
		return
	}

	if msg.Set.Pinned != nil {
		if isCreator {
			t.conv.CreatorPinned = *msg.Set.Pinned
		} else {
			t.conv.UserPinned = *msg.Set.Pinned
		}
	}
	if msg.Set.Muted != nil {
		if isCreator {
			t.conv.CreatorMuted = *msg.Set.Muted
		} else {
			t.conv.UserMuted = *msg.Set.Muted
		}
	}

	msg.sess.queueOut(NoErr(msg.Id, t.name, msg.Timestamp))
}

// loadPage fetches up to limit messages ending at opts' cursor. Asks the
// store for one extra row to learn whether older history remains.
func (t *Thread) loadPage(opts *types.BrowseOpt, limit int) ([]types.Message, bool, error) {
	opts.Limit = limit + 1
	page, err := store.Messages.GetAll(t.name, opts)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(page) > limit
	if hasMore {
		// The extra row is the oldest one: the page is in ascending order.
		page = page[1:]
	}
	return page, hasMore, nil
}

// makeDesc builds the conversation descriptor {meta} for the given viewer.
func (t *Thread) makeDesc(id string, asUid types.Uid, ts time.Time) *ServerComMessage {
	peer := t.conv.OtherUser(asUid)

	var public any
	if peerUser, err := store.Users.Get(peer); err != nil {
		logs.Warn.Println("thread: peer fetch failed", t.name, err)
	} else if peerUser != nil {
		public = peerUser.Public
	}

	perm, err := globals.perm.eval(t.conv, asUid, ts)
	if err != nil {
		logs.Warn.Println("thread: perm eval failed", t.name, err)
	}

	touched := t.conv.TouchedAt
	return &ServerComMessage{Meta: &MsgServerMeta{
		Id:        id,
		Conv:      t.name,
		Timestamp: &ts,
		Desc: &MsgConvDesc{
			Conv:      t.name,
			With:      peer.UserId(),
			Public:    public,
			TouchedAt: &touched,
			Preview:   t.conv.Preview,
			Unread:    t.conv.UnreadFor(asUid),
			Pinned:    t.conv.PinnedFor(asUid),
			Muted:     t.conv.MutedFor(asUid),
			Typing:    t.typing.isTyping(peer),
			Perm:      perm.wireMsg(),
		},
	}, RcptTo: t.name, Timestamp: ts}
}

// parseAttachments validates client-supplied attachment references.
func parseAttachments(atts []MsgAttachment) ([]types.Attachment, error) {
	if len(atts) == 0 {
		return nil, nil
	}

	out := make([]types.Attachment, 0, len(atts))
	for _, att := range atts {
		mt := types.MediaType(att.Type)
		switch mt {
		case types.MediaImage, types.MediaVideo, types.MediaAudio:
		default:
			return nil, types.ErrMalformed
		}
		if att.Url == "" {
			return nil, types.ErrMalformed
		}
		out = append(out, types.Attachment{
			Type:   mt,
			Url:    att.Url,
			Width:  att.Width,
			Height: att.Height,
		})
	}
	return out, nil
}
