package main

/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures
 *
 *****************************************************************************/

import (
	"net/http"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// MsgBrowseOpts defines message query parameters.
type MsgBrowseOpts struct {
	// Load messages strictly older than the message named by this cursor.
	// Empty cursor means the latest page.
	Before string `json:"before,omitempty"`
	// Limit the number of messages loaded.
	Limit int `json:"limit,omitempty"`
}

// MsgGetQuery is a conversation metadata or data query.
type MsgGetQuery struct {
	// What data to fetch: comma separated "desc", "msgs", "convs".
	What string `json:"what"`

	// Parameters of the "msgs" request.
	Msgs *MsgBrowseOpts `json:"msgs,omitempty"`
}

// MsgSetQuery is an update to conversation state.
type MsgSetQuery struct {
	// Pin or unpin the conversation for the requesting participant.
	Pinned *bool `json:"pinned,omitempty"`
	// Mute or unmute notifications for the requesting participant.
	Muted *bool `json:"muted,omitempty"`
	// Administrative lock override, root sessions only: either
	// "admin_blocked" or "" to clear.
	Lock *string `json:"lock,omitempty"`
}

// MsgAttachment is a client-provided reference to an uploaded media object.
type MsgAttachment struct {
	// Media type: "image", "video", "audio".
	Type string `json:"type"`
	// URL returned by the file upload endpoint.
	Url string `json:"url"`
	// Optional dimensions of visual media.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Client to Server (C2S) messages.

// MsgClientHi is a handshake {hi} message.
type MsgClientHi struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// User agent.
	UserAgent string `json:"ua,omitempty"`
	// Protocol version, i.e. "1.0".
	Version string `json:"ver,omitempty"`
	// Client's unique device ID.
	DeviceID string `json:"dev,omitempty"`
	// ISO 639-1 human language of the connected device.
	Lang string `json:"lang,omitempty"`
	// Platform code: ios, android, web.
	Platform string `json:"platf,omitempty"`
}

// MsgClientAcc is an {acc} message for creating or updating a user account.
type MsgClientAcc struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// "newXYZ" to create a new user or UserId of the user to update.
	User string `json:"user,omitempty"`
	// Authentication scheme used to create the account.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret, usually "login:password".
	Secret []byte `json:"secret,omitempty"`
	// Authenticate session with the newly created account.
	Login bool `json:"login,omitempty"`
	// True if the account belongs to a content creator.
	IsCreator bool `json:"creator,omitempty"`
	// Public user info: display name, avatar and such. Opaque to the server.
	Public any `json:"public,omitempty"`
}

// MsgClientLogin is a login {login} message.
type MsgClientLogin struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Authentication scheme.
	Scheme string `json:"scheme,omitempty"`
	// Shared secret.
	Secret []byte `json:"secret"`
}

// MsgClientSub is a subscription request {sub} message: attach the session to
// a conversation, creating the conversation if necessary.
type MsgClientSub struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation to attach to, mutually exclusive with With.
	Conv string `json:"conv,omitempty"`
	// UserId of the peer: the conversation with this user is looked up or
	// created.
	With string `json:"with,omitempty"`
	// Query for data to fetch on attach.
	Get *MsgGetQuery `json:"get,omitempty"`
}

// MsgClientLeave is a request to detach the session from a conversation
// {leave}.
type MsgClientLeave struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation to detach from.
	Conv string `json:"conv"`
}

// MsgClientPub is a client message to a conversation {pub}.
type MsgClientPub struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation to publish to.
	Conv string `json:"conv"`
	// Message text.
	Text string `json:"text,omitempty"`
	// Media attachments.
	Attachments []MsgAttachment `json:"att,omitempty"`
}

// MsgClientEdit is a request to replace the text of an earlier message
// {edit}.
type MsgClientEdit struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation holding the message.
	Conv string `json:"conv"`
	// Id of the message to edit.
	Msg string `json:"msg"`
	// Replacement text.
	Text string `json:"text"`
}

// MsgClientDel is a request to delete an earlier message {del}.
type MsgClientDel struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation holding the message.
	Conv string `json:"conv"`
	// Id of the message to delete.
	Msg string `json:"msg"`
}

// MsgClientReact is a request to toggle an emoji reaction on a message
// {react}.
type MsgClientReact struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation holding the message.
	Conv string `json:"conv"`
	// Id of the message to react to.
	Msg string `json:"msg"`
	// The emoji to toggle.
	Emoji string `json:"emoji"`
}

// MsgClientNote is a transient notification {note}: typing or read receipt.
// Not acknowledged by the server.
type MsgClientNote struct {
	// Conversation being notified.
	Conv string `json:"conv"`
	// What is being reported: "kp" (key press) or "read".
	What string `json:"what"`
}

// MsgClientGet is a query of conversation state {get}.
type MsgClientGet struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation to query; empty for "convs".
	Conv string `json:"conv,omitempty"`
	MsgGetQuery
}

// MsgClientSet is an update of conversation state {set}.
type MsgClientSet struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Conversation to update.
	Conv string `json:"conv"`
	MsgSetQuery
}

// ClientComMessage is a wrapper for client messages.
type ClientComMessage struct {
	Hi    *MsgClientHi    `json:"hi"`
	Acc   *MsgClientAcc   `json:"acc"`
	Login *MsgClientLogin `json:"login"`
	Sub   *MsgClientSub   `json:"sub"`
	Leave *MsgClientLeave `json:"leave"`
	Pub   *MsgClientPub   `json:"pub"`
	Edit  *MsgClientEdit  `json:"edit"`
	Del   *MsgClientDel   `json:"del"`
	React *MsgClientReact `json:"react"`
	Note  *MsgClientNote  `json:"note"`
	Get   *MsgClientGet   `json:"get"`
	Set   *MsgClientSet   `json:"set"`

	// Internal fields, routed between the session and the conversation
	// runtime. Never marshaled.

	// Message Id denormalized.
	Id string `json:"-"`
	// Conversation name denormalized.
	RcptTo string `json:"-"`
	// Sender's UserId as string.
	AsUser string `json:"-"`
	// Sender's authentication level.
	AuthLvl int `json:"-"`
	// Timestamp when this message was received by the server.
	Timestamp time.Time `json:"-"`

	// Originating session to send an acknowledgement to.
	sess *Session
	// The message is initialized, i.e. AsUser and Timestamp are set.
	init bool
}

// Server to Client (S2C) messages.

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id     string `json:"id,omitempty"`
	Conv   string `json:"conv,omitempty"`
	Params any    `json:"params,omitempty"`

	Code      int       `json:"code"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// MsgPermissions is the viewer-dependent permission snapshot of a
// conversation.
type MsgPermissions struct {
	// The viewer may send messages.
	CanSend bool `json:"can_send"`
	// The viewer may attach media to messages.
	CanSendMedia bool `json:"can_send_media"`
	// Why sending is disabled; empty when CanSend is true.
	LockedReason string `json:"locked_reason,omitempty"`
}

// MsgConvDesc is a conversation descriptor as seen by a specific viewer.
type MsgConvDesc struct {
	// Conversation name.
	Conv string `json:"conv"`
	// UserId of the other participant.
	With string `json:"with,omitempty"`
	// Public info of the other participant.
	Public any `json:"public,omitempty"`

	TouchedAt *time.Time `json:"touched,omitempty"`
	// Preview of the latest message: truncated text or a media placeholder.
	Preview string `json:"preview,omitempty"`
	// Viewer's unread message count.
	Unread int `json:"unread,omitempty"`

	Pinned bool `json:"pinned,omitempty"`
	Muted  bool `json:"muted,omitempty"`
	// True if the other participant is typing right now.
	Typing bool `json:"typing,omitempty"`

	Perm *MsgPermissions `json:"perm,omitempty"`
}

// MsgServerMeta is a conversation metadata {meta} message.
type MsgServerMeta struct {
	Id   string `json:"id,omitempty"`
	Conv string `json:"conv,omitempty"`

	Timestamp *time.Time `json:"ts,omitempty"`

	// Descriptor of the conversation being queried.
	Desc *MsgConvDesc `json:"desc,omitempty"`
	// The viewer's conversation list, most recently touched first.
	Convs []MsgConvDesc `json:"convs,omitempty"`
}

// MsgViewMessage is a single message within a {view} snapshot.
type MsgViewMessage struct {
	Id        string    `json:"id"`
	From      string    `json:"from"`
	CreatedAt time.Time `json:"ts"`

	// Empty for regular messages, "system" for server-generated ones.
	Type string `json:"type,omitempty"`

	Text        string          `json:"text,omitempty"`
	Attachments []MsgAttachment `json:"att,omitempty"`
	// Structured metadata of system messages.
	Meta map[string]any `json:"meta,omitempty"`

	Edited  bool `json:"edited,omitempty"`
	Deleted bool `json:"deleted,omitempty"`

	Reactions []types.ReactionGroup `json:"reactions,omitempty"`
}

// MsgServerView is the merged message snapshot of a conversation {view}.
// The server owns the merge of history pages and live updates: the client
// renders the snapshot as-is.
type MsgServerView struct {
	Conv      string    `json:"conv"`
	Timestamp time.Time `json:"ts"`

	// Messages in ascending display order.
	Msgs []MsgViewMessage `json:"msgs"`
	// More history is available beyond the oldest loaded message.
	HasMore bool `json:"more,omitempty"`
	// Cursor naming the oldest loaded message; pass it back to load more.
	Cursor string `json:"cursor,omitempty"`
	// The update was caused by a new message while the viewer was at the
	// bottom: the client should keep the view pinned to the bottom.
	AutoScroll bool `json:"scroll,omitempty"`

	// Viewer's permission snapshot.
	Perm *MsgPermissions `json:"perm,omitempty"`
}

// MsgServerInfo is a transient info message {info}: typing and read
// notifications, lock state changes.
type MsgServerInfo struct {
	Conv string `json:"conv"`
	// UserId of the user who triggered the notification.
	From string `json:"from,omitempty"`
	// What the notification is about: "kp", "read", "lock".
	What string `json:"what"`
	// Current lock reason, present when What == "lock".
	Lock string `json:"lock,omitempty"`
	// Id of the system message recording the transition, when one was
	// written.
	Msg string `json:"msg,omitempty"`
}

// ServerComMessage is a wrapper for server-side messages.
type ServerComMessage struct {
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	Meta *MsgServerMeta `json:"meta,omitempty"`
	View *MsgServerView `json:"view,omitempty"`
	Info *MsgServerInfo `json:"info,omitempty"`

	// Internal fields.

	// Id of the original request.
	Id string `json:"-"`
	// Destination conversation.
	RcptTo string `json:"-"`
	// Timestamp for consistency of timestamps in {ctrl} messages.
	Timestamp time.Time `json:"-"`
	// Originating session, used to skip the session when forwarding.
	sess *Session
	// Session ID to skip when sending to multiple sessions.
	SkipSid string `json:"-"`
}

// Generators of server-side error messages {ctrl}.

// NoErr indicates successful completion (200).
func NoErr(id, conv string, ts time.Time) *ServerComMessage {
	return NoErrParams(id, conv, ts, nil)
}

// NoErrParams indicates successful completion with additional parameters
// (200).
func NoErrParams(id, conv string, ts time.Time, params any) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusOK,
		Text:      "ok",
		Conv:      conv,
		Params:    params,
		Timestamp: ts}, Id: id}
}

// NoErrCreated indicated successful creation of an object (201).
func NoErrCreated(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusCreated,
		Text:      "created",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// NoErrAccepted indicates request was accepted but not processed yet (202).
func NoErrAccepted(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusAccepted,
		Text:      "accepted",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// NoContentParams indicates request was processed but resulted in no content
// (204).
func NoContentParams(id, conv string, ts time.Time, params any) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNoContent,
		Text:      "no content",
		Conv:      conv,
		Params:    params,
		Timestamp: ts}, Id: id}
}

// ErrMalformed request malformed (400).
func ErrMalformed(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusBadRequest,
		Text:      "malformed",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrAuthRequired authentication required (401).
func ErrAuthRequired(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnauthorized,
		Text:      "authentication required",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrAuthFailed authentication failed (401).
func ErrAuthFailed(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnauthorized,
		Text:      "authentication failed",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrAuthUnknownScheme authentication scheme is unrecognized or invalid
// (401).
func ErrAuthUnknownScheme(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnauthorized,
		Text:      "unknown authentication scheme",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrPermissionDenied user is authenticated but operation is not permitted
// (403).
func ErrPermissionDenied(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusForbidden,
		Text:      "permission denied",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrNotParticipant the requester is not a participant of the conversation
// (403).
func ErrNotParticipant(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusForbidden,
		Text:      "not a participant",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrLocked the conversation is locked for the sender (403).
func ErrLocked(id, conv string, ts time.Time, reason string) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusForbidden,
		Text:      "locked",
		Conv:      conv,
		Params:    map[string]string{"reason": reason},
		Timestamp: ts}, Id: id}
}

// ErrNotAuthor the requester did not author the message (403).
func ErrNotAuthor(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusForbidden,
		Text:      "not the author",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrNotFound is an error for missing objects (404).
func ErrNotFound(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotFound,
		Text:      "not found",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrEditWindowExpired the message is too old to be edited (409).
func ErrEditWindowExpired(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict,
		Text:      "edit window expired",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrEmptyMessage the message contains neither text nor attachments (400).
func ErrEmptyMessage(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusBadRequest,
		Text:      "empty message",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// InfoChallenge requires the user to respond to a challenge (300).
func InfoChallenge(id string, ts time.Time, challenge []byte) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusMultipleChoices,
		Text:      "challenge",
		Params:    map[string]any{"challenge": challenge},
		Timestamp: ts}, Id: id}
}

// ErrAPIKeyRequired  valid API key is required (403).
func ErrAPIKeyRequired(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusForbidden,
		Text:      "valid API key required",
		Timestamp: ts}}
}

// ErrSessionNotFound  valid session is required (403).
func ErrSessionNotFound(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusForbidden,
		Text:      "invalid or expired session",
		Timestamp: ts}}
}

// ErrOperationNotAllowed  the operation is not permitted (405).
func ErrOperationNotAllowed(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusMethodNotAllowed,
		Text:      "operation not allowed",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrDuplicateCredential the credential is already in use (409).
func ErrDuplicateCredential(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict,
		Text:      "duplicate credential",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrTooLarge the payload is too large (413).
func ErrTooLarge(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusRequestEntityTooLarge,
		Text:      "too large",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrCommandOutOfSequence is an error response for processing a command out
// of order (409).
func ErrCommandOutOfSequence(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict,
		Text:      "command out of sequence",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrUnknown database or other server error (500).
func ErrUnknown(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusInternalServerError,
		Text:      "internal error",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// ErrNotImplemented feature not implemented (501).
func ErrNotImplemented(id, conv string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotImplemented,
		Text:      "not implemented",
		Conv:      conv,
		Timestamp: ts}, Id: id}
}

// NoErrShutdown means the server is shutting down (205).
func NoErrShutdown(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusResetContent,
		Text:      "server shutdown",
		Timestamp: ts}}
}

// ErrVersionNotSupported invalid (too low) protocol version (505).
func ErrVersionNotSupported(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusHTTPVersionNotSupported,
		Text:      "version not supported",
		Timestamp: ts}, Id: id}
}

// decodeStoreError converts an error from the store or the permission
// evaluator to a {ctrl} response.
func decodeStoreError(err error, id, conv string, ts time.Time) *ServerComMessage {
	if err == nil {
		return NoErr(id, conv, ts)
	}

	storeErr, ok := err.(types.StoreError)
	if !ok {
		return ErrUnknown(id, conv, ts)
	}

	switch storeErr {
	case types.ErrNotAuthenticated:
		return ErrAuthRequired(id, conv, ts)
	case types.ErrNotParticipant:
		return ErrNotParticipant(id, conv, ts)
	case types.ErrLocked:
		return ErrLocked(id, conv, ts, "")
	case types.ErrEditWindowExpired:
		return ErrEditWindowExpired(id, conv, ts)
	case types.ErrNotAuthor:
		return ErrNotAuthor(id, conv, ts)
	case types.ErrEmptyMessage:
		return ErrEmptyMessage(id, conv, ts)
	case types.ErrNotFound:
		return ErrNotFound(id, conv, ts)
	case types.ErrDuplicate:
		return ErrDuplicateCredential(id, conv, ts)
	case types.ErrPermissionDenied:
		return ErrPermissionDenied(id, conv, ts)
	case types.ErrMalformed:
		return ErrMalformed(id, conv, ts)
	case types.ErrUnsupported:
		return ErrNotImplemented(id, conv, ts)
	default:
		return ErrUnknown(id, conv, ts)
	}
}

// AuthLevel returns the authentication level of the message sender.
func (msg *ClientComMessage) AuthLevel() auth.Level {
	return auth.Level(msg.AuthLvl)
}
