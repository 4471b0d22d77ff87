/******************************************************************************
 *
 *  Description :
 *
 *    Handling of user sessions/connections. One user may have multiple
 *    sessions. Each session may be attached to multiple conversations.
 *
 *****************************************************************************/

package main

import (
	"container/list"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/queue"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Maximum number of queued messages before session is considered stale.
const sendQueueLimit = 128

// Wire transport.
const (
	NONE = iota
	WEBSOCK
	LPOLL
)

// Session represents a single WS connection or a long polling session. A
// user may have multiple sessions.
type Session struct {
	// Protocol - NONE (unset), WEBSOCK, LPOLL.
	proto int

	// Websocket. Set only for websocket sessions.
	ws *websocket.Conn

	// Pointer to session's record in sessionStore. Set only for long poll
	// sessions.
	lpTracker *list.Element

	// IP address of the client. For long polling this is the IP of the last
	// poll.
	remoteAddr string

	// User agent, a string provided by an authenticated client in {hi}
	// packet.
	userAgent string

	// Protocol version of the client: ((major & 0xff) << 8) | (minor & 0xff).
	ver int

	// Device ID of the client.
	deviceID string
	// Platform: web, ios, android.
	platf string
	// Human language of the client.
	lang string

	// ID of the current user. Zero if not authenticated.
	uid types.Uid

	// Authentication level - NONE (unset), ANON, AUTH, ROOT.
	authLvl auth.Level

	// Time when the long polling session was last refreshed.
	lastTouched time.Time

	// Time when the session received any packet from client.
	lastAction int64

	// Outbound messages, buffered. The content must be serialized in format
	// suitable for the session.
	send chan any

	// Channel for shutting down the session, buffer 1. Content in the same
	// format as for 'send'.
	stop chan any

	// detach - channel for detaching session from a conversation, buffered.
	detach chan string

	// Map of conversation subscriptions, indexed by conversation name.
	// Don't access directly. Use getters/setters.
	subs map[string]*Subscription
	// Mutex for subs access: both conversation goroutines and network
	// goroutines access subs concurrently.
	subsLock sync.RWMutex

	// Session ID.
	sid string

	// Needed for long polling: the client may issue multiple requests in
	// parallel.
	lock sync.Mutex
}

// Subscription is a mapper of sessions to conversations.
type Subscription struct {
	// Channel to route client requests to the conversation, copy of
	// Thread.client.
	msgs chan<- *ClientComMessage

	// Session sends a signal to the conversation when the session is
	// detached. This is a copy of Thread.unreg.
	done chan<- *sessionLeave
}

func (s *Session) addSub(conv string, sub *Subscription) {
	s.subsLock.Lock()
	s.subs[conv] = sub
	s.subsLock.Unlock()
}

func (s *Session) getSub(conv string) *Subscription {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()

	return s.subs[conv]
}

func (s *Session) delSub(conv string) {
	s.subsLock.Lock()
	delete(s.subs, conv)
	s.subsLock.Unlock()
}

func (s *Session) countSub() int {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()
	return len(s.subs)
}

// unsubAll tells all conversations the session is attached to that the
// session is gone.
func (s *Session) unsubAll() {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()

	for _, sub := range s.subs {
		// sub.done is the same as Thread.unreg.
		sub.done <- &sessionLeave{sess: s}
	}
}

// queueOut attempts to send a ServerComMessage to a session write loop; if
// the send buffer is full, timeout is 50 usec.
func (s *Session) queueOut(msg *ServerComMessage) bool {
	if s == nil {
		return true
	}

	select {
	case s.send <- s.serialize(msg):
	case <-time.After(time.Microsecond * 50):
		logs.Err.Println("s.queueOut: timeout", s.sid)
		return false
	}
	return true
}

// cleanUp is called when the session is terminated to detach from all
// conversations and remove the session from the store.
func (s *Session) cleanUp(expired bool) {
	if !expired {
		globals.sessionStore.Delete(s)
	}
	s.unsubAll()
}

// dispatchRaw parses a raw byte payload and dispatches it.
func (s *Session) dispatchRaw(raw []byte) {
	now := types.TimeNow()

	if len(raw) > globals.maxMessageSize {
		s.queueOut(ErrMalformed("", "", now))
		return
	}

	var msg ClientComMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logs.Warn.Println("s.dispatch: parse error", err, s.sid)
		s.queueOut(ErrMalformed("", "", now))
		return
	}

	s.dispatch(&msg)
}

func (s *Session) dispatch(msg *ClientComMessage) {
	now := types.TimeNow()
	msg.Timestamp = now
	msg.sess = s
	msg.init = true
	msg.AsUser = s.uid.UserId()
	msg.AuthLvl = int(s.authLvl)

	// Locking-unlocking is needed for long polling: the client may issue
	// multiple requests in parallel. Should not affect performance.
	if s.proto == LPOLL {
		s.lock.Lock()
		defer s.lock.Unlock()
	}

	var handler func(*ClientComMessage)

	// checkVers ensures the client has performed the {hi} handshake.
	checkVers := func(handler func(*ClientComMessage)) func(*ClientComMessage) {
		return func(m *ClientComMessage) {
			if s.ver == 0 {
				s.queueOut(ErrCommandOutOfSequence(m.Id, m.RcptTo, m.Timestamp))
				return
			}
			handler(m)
		}
	}

	// checkUser ensures the session is authenticated.
	checkUser := func(handler func(*ClientComMessage)) func(*ClientComMessage) {
		return func(m *ClientComMessage) {
			if m.AsUser == "" {
				s.queueOut(ErrAuthRequired(m.Id, m.RcptTo, m.Timestamp))
				return
			}
			handler(m)
		}
	}

	switch {
	case msg.Hi != nil:
		handler = s.hello
		msg.Id = msg.Hi.Id

	case msg.Acc != nil:
		handler = checkVers(s.acc)
		msg.Id = msg.Acc.Id

	case msg.Login != nil:
		handler = checkVers(s.login)
		msg.Id = msg.Login.Id

	case msg.Sub != nil:
		handler = checkVers(checkUser(s.subscribe))
		msg.Id = msg.Sub.Id
		msg.RcptTo = msg.Sub.Conv

	case msg.Leave != nil:
		handler = checkVers(checkUser(s.leave))
		msg.Id = msg.Leave.Id
		msg.RcptTo = msg.Leave.Conv

	case msg.Pub != nil:
		handler = checkVers(checkUser(s.publish))
		msg.Id = msg.Pub.Id
		msg.RcptTo = msg.Pub.Conv

	case msg.Edit != nil:
		handler = checkVers(checkUser(s.editMsg))
		msg.Id = msg.Edit.Id
		msg.RcptTo = msg.Edit.Conv

	case msg.Del != nil:
		handler = checkVers(checkUser(s.delMsg))
		msg.Id = msg.Del.Id
		msg.RcptTo = msg.Del.Conv

	case msg.React != nil:
		handler = checkVers(checkUser(s.react))
		msg.Id = msg.React.Id
		msg.RcptTo = msg.React.Conv

	case msg.Note != nil:
		handler = s.note
		msg.RcptTo = msg.Note.Conv

	case msg.Get != nil:
		handler = checkVers(checkUser(s.get))
		msg.Id = msg.Get.Id
		msg.RcptTo = msg.Get.Conv

	case msg.Set != nil:
		handler = checkVers(checkUser(s.set))
		msg.Id = msg.Set.Id
		msg.RcptTo = msg.Set.Conv

	default:
		// Unknown message.
		s.queueOut(ErrMalformed("", "", now))
		logs.Warn.Println("s.dispatch: unknown message", s.sid)
		return
	}

	statsInc("IncomingMessagesTotal", 1)
	handler(msg)
}

// hello is a response to a handshake {hi} message.
func (s *Session) hello(msg *ClientComMessage) {
	var params map[string]any

	if s.ver == 0 {
		s.ver = parseVersion(msg.Hi.Version)
		if s.ver == 0 {
			logs.Warn.Println("s.hello: malformed version", s.sid)
			s.queueOut(ErrMalformed(msg.Id, "", msg.Timestamp))
			return
		}
		// Check version compatibility.
		if s.ver < minSupportedVersionValue {
			s.ver = 0
			s.queueOut(ErrVersionNotSupported(msg.Id, msg.Timestamp))
			return
		}

		params = map[string]any{
			"ver":   currentVersion,
			"build": store.Store.GetAdapterName() + ":" + buildstamp,
		}
	} else if msg.Hi.Version == "" || parseVersion(msg.Hi.Version) == s.ver {
		// Save changed device ID or lang.
		if !s.uid.IsZero() && msg.Hi.DeviceID != "" {
			if err := store.Devices.Update(s.uid, s.deviceID, &types.DeviceDef{
				DeviceId: msg.Hi.DeviceID,
				Platform: msg.Hi.Platform,
				LastSeen: msg.Timestamp,
				Lang:     msg.Hi.Lang,
			}); err != nil {
				logs.Warn.Println("s.hello: device update failed", err, s.sid)
				s.queueOut(ErrUnknown(msg.Id, "", msg.Timestamp))
				return
			}
		}
	} else {
		// Version cannot be changed mid-session.
		s.queueOut(ErrCommandOutOfSequence(msg.Id, "", msg.Timestamp))
		return
	}

	if msg.Hi.UserAgent != "" {
		s.userAgent = msg.Hi.UserAgent
	}
	if msg.Hi.DeviceID != "" {
		s.deviceID = msg.Hi.DeviceID
	}
	if msg.Hi.Platform != "" {
		s.platf = msg.Hi.Platform
	}
	if msg.Hi.Lang != "" {
		s.lang = msg.Hi.Lang
	}

	ctrl := &MsgServerCtrl{Id: msg.Id, Code: 201, Text: "created", Timestamp: msg.Timestamp}
	if len(params) > 0 {
		ctrl.Params = params
	}
	s.queueOut(&ServerComMessage{Ctrl: ctrl})
}

// acc is an account creation or update request.
func (s *Session) acc(msg *ClientComMessage) {
	authhdl := store.Store.GetLogicalAuthHandler(msg.Acc.Scheme)

	if strings.HasPrefix(msg.Acc.User, "new") {
		// Request to create a new account.

		if msg.Acc.Login && !s.uid.IsZero() {
			// The session cannot authenticate with the new account because
			// it's already authenticated.
			s.queueOut(ErrCommandOutOfSequence(msg.Id, "", msg.Timestamp))
			return
		}

		if authhdl == nil {
			// New accounts must have an authentication scheme.
			s.queueOut(ErrAuthUnknownScheme(msg.Id, "", msg.Timestamp))
			return
		}

		// Check if login is unique.
		if ok, err := authhdl.IsUnique(msg.Acc.Secret, s.remoteAddr); !ok {
			logs.Warn.Println("s.acc: check unique failed", err, s.sid)
			s.queueOut(decodeAuthError(err, msg.Id, msg.Timestamp))
			return
		}

		user := types.User{
			IsCreator: msg.Acc.IsCreator,
			Public:    msg.Acc.Public,
		}
		if _, err := store.Users.Create(&user); err != nil {
			logs.Warn.Println("s.acc: failed to create user", err, s.sid)
			s.queueOut(ErrUnknown(msg.Id, "", msg.Timestamp))
			return
		}

		rec, err := authhdl.AddRecord(&auth.Rec{Uid: user.Uid(), AuthLevel: auth.LevelAuth},
			msg.Acc.Secret, s.remoteAddr)
		if err != nil {
			logs.Warn.Println("s.acc: add auth record failed", err, s.sid)
			// Delete incomplete user record.
			store.Users.Delete(user.Uid(), false)
			s.queueOut(decodeAuthError(err, msg.Id, msg.Timestamp))
			return
		}

		var reply *ServerComMessage
		if msg.Acc.Login {
			reply = s.onLogin(msg.Id, msg.Timestamp, rec)
		} else {
			reply = NoErrCreated(msg.Id, "", msg.Timestamp)
			reply.Ctrl.Params = map[string]any{"user": user.Uid().UserId()}
		}
		s.queueOut(reply)

		statsInc("CreatedAccounts", 1)

	} else {
		// Existing account.

		if s.uid.IsZero() {
			s.queueOut(ErrPermissionDenied(msg.Id, "", msg.Timestamp))
			return
		}

		uid := s.uid
		if msg.Acc.User != "" && msg.Acc.User != s.uid.UserId() {
			if s.authLvl != auth.LevelRoot {
				s.queueOut(ErrPermissionDenied(msg.Id, "", msg.Timestamp))
				return
			}
			uid = types.ParseUserId(msg.Acc.User)
			if uid.IsZero() {
				s.queueOut(ErrMalformed(msg.Id, "", msg.Timestamp))
				return
			}
		}

		if authhdl != nil {
			// Request to update the authentication secret.
			if _, err := authhdl.UpdateRecord(&auth.Rec{Uid: uid}, msg.Acc.Secret, s.remoteAddr); err != nil {
				logs.Warn.Println("s.acc: failed to update auth secret", err, s.sid)
				s.queueOut(decodeAuthError(err, msg.Id, msg.Timestamp))
				return
			}
		} else if msg.Acc.Scheme != "" {
			s.queueOut(ErrAuthUnknownScheme(msg.Id, "", msg.Timestamp))
			return
		}

		if msg.Acc.Public != nil {
			if err := store.Users.Update(uid, map[string]any{"Public": msg.Acc.Public}); err != nil {
				logs.Warn.Println("s.acc: failed to update user", err, s.sid)
				s.queueOut(ErrUnknown(msg.Id, "", msg.Timestamp))
				return
			}
		}

		s.queueOut(NoErr(msg.Id, "", msg.Timestamp))
	}
}

// login authenticates the session.
func (s *Session) login(msg *ClientComMessage) {
	if !s.uid.IsZero() {
		s.queueOut(ErrCommandOutOfSequence(msg.Id, "", msg.Timestamp))
		return
	}

	handler := store.Store.GetLogicalAuthHandler(msg.Login.Scheme)
	if handler == nil {
		logs.Warn.Println("s.login: unknown authentication scheme", msg.Login.Scheme, s.sid)
		s.queueOut(ErrAuthUnknownScheme(msg.Id, "", msg.Timestamp))
		return
	}

	rec, _, err := handler.Authenticate(msg.Login.Secret, s.remoteAddr)
	if err != nil {
		s.queueOut(decodeAuthError(err, msg.Id, msg.Timestamp))
		return
	}

	s.queueOut(s.onLogin(msg.Id, msg.Timestamp, rec))
}

// onLogin performs steps after successful authentication.
func (s *Session) onLogin(msgID string, timestamp time.Time, rec *auth.Rec) *ServerComMessage {
	// Authenticate the session.
	s.uid = rec.Uid
	s.authLvl = rec.AuthLevel

	// Record the device used in this session.
	if s.deviceID != "" {
		if err := store.Devices.Update(rec.Uid, "", &types.DeviceDef{
			DeviceId: s.deviceID,
			Platform: s.platf,
			LastSeen: timestamp,
			Lang:     s.lang,
		}); err != nil {
			logs.Warn.Println("s.onLogin: failed to update device record", err, s.sid)
		}
	}

	params := map[string]any{
		"user":    rec.Uid.UserId(),
		"authlvl": rec.AuthLevel.String(),
	}

	// Issue or renew the session token.
	if tokenHdl := store.Store.GetLogicalAuthHandler("token"); tokenHdl != nil {
		token, expires, err := tokenHdl.GenSecret(rec)
		if err == nil {
			params["token"] = token
			params["expires"] = expires
		} else {
			logs.Warn.Println("s.onLogin: failed to generate token", err, s.sid)
		}
	}

	reply := NoErr(msgID, "", timestamp)
	reply.Ctrl.Params = params
	return reply
}

// subscribe attaches the session to a conversation, creating it if needed.
func (s *Session) subscribe(msg *ClientComMessage) {
	var conv string

	if msg.Sub.With != "" {
		// Conversation addressed by the peer: derive the name.
		me := types.ParseUserId(msg.AsUser)
		peer := types.ParseUserId(msg.Sub.With)
		if peer.IsZero() || peer == me {
			s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
			return
		}
		conv = me.ConvName(peer)
	} else if strings.HasPrefix(msg.Sub.Conv, "cnv") {
		conv = msg.Sub.Conv
	} else {
		s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}
	msg.RcptTo = conv

	if s.getSub(conv) != nil {
		s.queueOut(NoErrParams(msg.Id, conv, msg.Timestamp, map[string]string{"conv": conv}))
		return
	}

	// Hub will send Ctrl success/failure packets back to session.
	globals.hub.join <- &sessionJoin{pkt: msg, sess: s}
}

// leave detaches the session from a conversation.
func (s *Session) leave(msg *ClientComMessage) {
	if sub := s.getSub(msg.RcptTo); sub != nil {
		// Unlink from conversation, conversation will send a reply.
		s.delSub(msg.RcptTo)
		sub.done <- &sessionLeave{pkt: msg, sess: s}
	} else {
		s.queueOut(ErrNotFound(msg.Id, msg.RcptTo, msg.Timestamp))
	}
}

// routeToConv forwards the message to the conversation the session is
// attached to.
func (s *Session) routeToConv(msg *ClientComMessage) {
	if sub := s.getSub(msg.RcptTo); sub != nil {
		select {
		case sub.msgs <- msg:
		default:
			// The conversation is too busy.
			s.queueOut(ErrUnknown(msg.Id, msg.RcptTo, msg.Timestamp))
		}
	} else {
		// Request to an unattached conversation.
		s.queueOut(ErrCommandOutOfSequence(msg.Id, msg.RcptTo, msg.Timestamp))
	}
}

// publish sends a message to a conversation.
func (s *Session) publish(msg *ClientComMessage) {
	s.routeToConv(msg)
}

// editMsg replaces the text of an earlier message.
func (s *Session) editMsg(msg *ClientComMessage) {
	s.routeToConv(msg)
}

// delMsg soft-deletes a message.
func (s *Session) delMsg(msg *ClientComMessage) {
	s.routeToConv(msg)
}

// react toggles an emoji reaction.
func (s *Session) react(msg *ClientComMessage) {
	s.routeToConv(msg)
}

// note forwards a transient {note} to the conversation. Not acknowledged.
func (s *Session) note(msg *ClientComMessage) {
	if s.ver == 0 || msg.AsUser == "" {
		// Silently ignore the message: have not received {hi} or sender not
		// authenticated.
		return
	}

	switch msg.Note.What {
	case "kp", "read":
	default:
		return
	}

	if sub := s.getSub(msg.RcptTo); sub != nil {
		select {
		case sub.msgs <- msg:
		default:
		}
	}
}

// get is a query of conversation state.
func (s *Session) get(msg *ClientComMessage) {
	if msg.Get.What == "" {
		s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}

	if msg.RcptTo == "" {
		// Queries without a conversation are handled by the session itself.
		if msg.Get.What == "convs" {
			s.replyListConvs(msg)
		} else {
			s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
		}
		return
	}

	s.routeToConv(msg)
}

// set is an update of conversation state.
func (s *Session) set(msg *ClientComMessage) {
	if msg.Set.Lock != nil {
		// Administrative lock override is not a participant operation.
		s.setLock(msg)
		return
	}

	if msg.Set.Pinned == nil && msg.Set.Muted == nil {
		s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}
	s.routeToConv(msg)
}

// setLock handles the administrative lock override: root sessions only.
// The override is the only lock reason ever persisted.
func (s *Session) setLock(msg *ClientComMessage) {
	if s.authLvl != auth.LevelRoot {
		s.queueOut(ErrPermissionDenied(msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}

	reason := *msg.Set.Lock
	if reason != "" && reason != types.LockAdminBlocked {
		s.queueOut(ErrMalformed(msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}

	if err := store.Conversations.SetLock(msg.RcptTo, reason); err != nil {
		s.queueOut(decodeStoreError(err, msg.Id, msg.RcptTo, msg.Timestamp))
		return
	}

	// Record the transition as a system message so it shows up in history.
	sys := &types.Message{
		Conversation: msg.RcptTo,
		Type:         types.MessageSystem,
		Text:         "Conversation verrouillée par la modération",
		Meta:         map[string]any{"what": "locked", "reason": reason},
	}
	if reason == "" {
		sys.Text = "Conversation déverrouillée"
		sys.Meta = map[string]any{"what": "unlocked"}
	}
	var sysId string
	if saved, err := store.Messages.Save(sys, messagePreview(sys)); err != nil {
		logs.Warn.Println("s.setLock: system message save failed", err, s.sid)
	} else {
		sysId = saved.Id
	}

	// Tell the live conversation, if any, to re-read its state and notify
	// attached sessions.
	globals.hub.route <- &ServerComMessage{
		Info:      &MsgServerInfo{Conv: msg.RcptTo, What: "lock", Lock: reason, Msg: sysId},
		RcptTo:    msg.RcptTo,
		Timestamp: msg.Timestamp,
	}

	what := "conversation.locked"
	if reason == "" {
		what = "conversation.unlocked"
	}
	globals.events.Publish(&queue.Event{
		What:      what,
		Conv:      msg.RcptTo,
		Params:    map[string]any{"reason": reason},
		Timestamp: msg.Timestamp,
	})

	s.queueOut(NoErr(msg.Id, msg.RcptTo, msg.Timestamp))
}

// replyListConvs sends the viewer's conversation list as {meta}.
func (s *Session) replyListConvs(msg *ClientComMessage) {
	uid := types.ParseUserId(msg.AsUser)

	convs, err := store.Conversations.GetAll(uid, 0)
	if err != nil {
		logs.Warn.Println("s.replyListConvs:", err, s.sid)
		s.queueOut(decodeStoreError(err, msg.Id, "", msg.Timestamp))
		return
	}

	if len(convs) == 0 {
		s.queueOut(NoContentParams(msg.Id, "", msg.Timestamp, map[string]string{"what": "convs"}))
		return
	}

	// Collect peers to attach their public profiles.
	peers := make([]types.Uid, 0, len(convs))
	for i := range convs {
		peers = append(peers, convs[i].OtherUser(uid))
	}
	users, err := store.Users.GetAll(peers...)
	if err != nil {
		logs.Warn.Println("s.replyListConvs: users fetch failed", err, s.sid)
		s.queueOut(decodeStoreError(err, msg.Id, "", msg.Timestamp))
		return
	}
	public := make(map[string]any, len(users))
	for i := range users {
		public[users[i].Id] = users[i].Public
	}

	now := msg.Timestamp
	meta := &MsgServerMeta{Id: msg.Id, Timestamp: &now}
	for i := range convs {
		conv := &convs[i]
		peer := conv.OtherUser(uid)
		perm, err := globals.perm.eval(conv, uid, now)
		if err != nil {
			logs.Warn.Println("s.replyListConvs: perm eval failed", err, s.sid)
			continue
		}

		touched := conv.TouchedAt
		meta.Convs = append(meta.Convs, MsgConvDesc{
			Conv:      conv.Name,
			With:      peer.UserId(),
			Public:    public[peer.String()],
			TouchedAt: &touched,
			Preview:   conv.Preview,
			Unread:    conv.UnreadFor(uid),
			Pinned:    conv.PinnedFor(uid),
			Muted:     conv.MutedFor(uid),
			Typing:    globals.hub.isTyping(conv.Name, peer),
			Perm:      perm.wireMsg(),
		})
	}

	s.queueOut(&ServerComMessage{Meta: meta, Id: msg.Id, Timestamp: now})
}

func (s *Session) serialize(msg *ServerComMessage) any {
	out, _ := json.Marshal(msg)
	return out
}
