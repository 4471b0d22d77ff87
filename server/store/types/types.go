// Package types defines objects shared between the database adapters and the
// rest of the server.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sort"
	"strings"
	"time"
)

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the input is malformed.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means the operation failed for any other reason.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means the object already exists.
	ErrDuplicate = StoreError("duplicate")
	// ErrNotFound means the object is not found.
	ErrNotFound = StoreError("not found")
	// ErrUnsupported means the operation is not supported.
	ErrUnsupported = StoreError("unsupported")
	// ErrExpired means the secret or grant has expired.
	ErrExpired = StoreError("expired")
	// ErrPolicy means policy violation, e.g. password too weak.
	ErrPolicy = StoreError("policy")
	// ErrPermissionDenied means the operation is not permitted.
	ErrPermissionDenied = StoreError("denied")

	// ErrNotAuthenticated means the requester has not logged in.
	ErrNotAuthenticated = StoreError("not authenticated")
	// ErrNotParticipant means the requester is neither the creator nor the
	// user on the conversation.
	ErrNotParticipant = StoreError("not participant")
	// ErrLocked means a send was attempted without send permission.
	ErrLocked = StoreError("locked")
	// ErrEditWindowExpired means the message is too old to be edited.
	ErrEditWindowExpired = StoreError("edit window expired")
	// ErrNotAuthor means an edit or delete was attempted by someone other
	// than the original sender.
	ErrNotAuthor = StoreError("not author")
	// ErrEmptyMessage means a send with neither text nor attachments.
	ErrEmptyMessage = StoreError("empty message")
)

// Uid is a database-specific record id, suitable to be used as a primary key.
type Uid uint64

// ZeroUid is a constant representing uninitialized Uid.
const ZeroUid Uid = 0

// Lengths of various Uid representations.
const (
	uidBase64Unpadded = 11
	uidBase64Padded   = 12

	convBase64Unpadded = 22
	convBase64Padded   = 24
)

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// Compare returns 0 if uid is equal to u2, 1 if u2 is greater than uid, -1 if
// u2 is smaller.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// MarshalBinary converts Uid to byte slice.
func (uid Uid) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(uid))
	return dst, nil
}

// UnmarshalBinary reads Uid from byte slice.
func (uid *Uid) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("Uid.UnmarshalBinary: invalid length")
	}
	*uid = Uid(binary.LittleEndian.Uint64(b))
	return nil
}

// UnmarshalText reads Uid from base64 representation.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("Uid.UnmarshalText: invalid length")
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(uidBase64Padded))
	for len(src) < uidBase64Padded {
		src = append(src, '=')
	}
	count, err := base64.URLEncoding.Decode(dec, src)
	if count < 8 {
		if err != nil {
			return errors.New("Uid.UnmarshalText: failed to decode " + err.Error())
		}
		return errors.New("Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalText converts Uid to base64 representation.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid == 0 {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	binary.LittleEndian.PutUint64(src, uint64(uid))
	base64.URLEncoding.Encode(dst, src)
	return dst[0:uidBase64Unpadded], nil
}

// MarshalJSON converts Uid to double quoted ("ajjj") string.
func (uid Uid) MarshalJSON() ([]byte, error) {
	dst, _ := uid.MarshalText()
	return append(append([]byte{'"'}, dst...), '"'), nil
}

// UnmarshalJSON reads Uid from a double quoted string.
func (uid *Uid) UnmarshalJSON(b []byte) error {
	size := len(b)
	if size != (uidBase64Unpadded + 2) {
		return errors.New("Uid.UnmarshalJSON: invalid length")
	} else if b[0] != '"' || b[size-1] != '"' {
		return errors.New("Uid.UnmarshalJSON: unrecognized")
	}
	return uid.UnmarshalText(b[1 : size-1])
}

// String converts Uid to its base64 string representation.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// ParseUid parses a string NOT prefixed with anything.
func ParseUid(s string) Uid {
	var uid Uid
	uid.UnmarshalText([]byte(s))
	return uid
}

// UserId converts Uid to the prefixed "usrXXX" format.
func (uid Uid) UserId() string {
	return uid.PrefixId("usr")
}

// PrefixId converts Uid to prefixed string, like "usrXXX".
func (uid Uid) PrefixId(prefix string) string {
	if uid.IsZero() {
		return ""
	}
	return prefix + uid.String()
}

// ParseUserId parses a user ID of the form "usrXXXXXX".
func ParseUserId(s string) Uid {
	var uid Uid
	if strings.HasPrefix(s, "usr") {
		(&uid).UnmarshalText([]byte(s)[3:])
	}
	return uid
}

// ConvName generates the name of the conversation between the two users.
// The name is derived from the unordered pair, so the same two users always
// map to the same conversation: get-or-create is idempotent by construction.
// A user has no conversation with themselves.
func (uid Uid) ConvName(u2 Uid) string {
	if uid.IsZero() || u2.IsZero() {
		return ""
	}

	b1, _ := uid.MarshalBinary()
	b2, _ := u2.MarshalBinary()

	if uid < u2 {
		b1 = append(b1, b2...)
	} else if uid > u2 {
		b1 = append(b2, b1...)
	} else {
		return ""
	}

	return "cnv" + base64.URLEncoding.EncodeToString(b1)[:convBase64Unpadded]
}

// ParseConv extracts the uids of the two participants from the name of a
// conversation.
func ParseConv(conv string) (uid1, uid2 Uid, err error) {
	if !strings.HasPrefix(conv, "cnv") {
		err = errors.New("ParseConv: missing or invalid prefix")
		return
	}
	src := []byte(conv)[3:]
	if len(src) != convBase64Unpadded {
		err = errors.New("ParseConv: invalid length")
		return
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(convBase64Padded))
	for len(src) < convBase64Padded {
		src = append(src, '=')
	}
	var count int
	count, err = base64.URLEncoding.Decode(dec, src)
	if count < 16 {
		if err != nil {
			err = errors.New("ParseConv: failed to decode " + err.Error())
			return
		}
		err = errors.New("ParseConv: invalid decoded length")
		return
	}
	uid1 = Uid(binary.LittleEndian.Uint64(dec))
	uid2 = Uid(binary.LittleEndian.Uint64(dec[8:]))
	return
}

// ObjHeader is the header shared by all stored objects.
type ObjHeader struct {
	// Object id assigned at creation time.
	Id string
	id Uid

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uid assigns Uid to appropriate field.
func (h *ObjHeader) Uid() Uid {
	if h.id.IsZero() && h.Id != "" {
		h.id.UnmarshalText([]byte(h.Id))
	}
	return h.id
}

// SetUid assigns given Uid to appropriate fields.
func (h *ObjHeader) SetUid(uid Uid) {
	h.id = uid
	h.Id = uid.String()
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// InitTimes initializes time.Time variables in the header to current time.
func (h *ObjHeader) InitTimes() {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = TimeNow()
	}
	h.UpdatedAt = h.CreatedAt
}

// ObjState represents information on the state of a user account.
type ObjState int

// Object states.
const (
	// StateOK indicates a normal account.
	StateOK ObjState = 0
	// StateSuspended indicates a suspended account.
	StateSuspended ObjState = 10
	// StateDeleted indicates a soft-deleted account.
	StateDeleted ObjState = 20
)

// User is a stored user account.
type User struct {
	ObjHeader
	State   ObjState
	StateAt *time.Time

	// True if the account belongs to a content creator.
	IsCreator bool

	// Display name, avatar url and such, opaque to the server.
	Public any
}

// GrantKind is the kind of an access grant from a subscriber to a creator.
type GrantKind string

// Grant kinds.
const (
	// GrantContentAccess gates access to the creator's content.
	GrantContentAccess = GrantKind("content_access")
	// GrantMessagingAccess gates the subscriber's ability to send messages.
	GrantMessagingAccess = GrantKind("messaging_access")
)

// Grant is a time-bound access grant from a subscriber to a creator.
// Billing and renewal are handled elsewhere; the messaging server only
// reads these records.
type Grant struct {
	ObjHeader
	Subscriber string
	Creator    string
	Kind       GrantKind
	ExpiresAt  time.Time
}

// Active checks whether the grant is active at the given moment.
func (g *Grant) Active(now time.Time) bool {
	return g.ExpiresAt.After(now)
}

// Conversation lock reasons.
const (
	// LockAdminBlocked is an explicit administrative override. It is the only
	// reason ever persisted and it supersedes any subscription state.
	LockAdminBlocked = "admin_blocked"
	// LockNoSubscription is computed at read time when the subscriber's
	// messaging grant has lapsed. Never persisted.
	LockNoSubscription = "no_messaging_subscription"
)

// Conversation is the durable one-to-one thread between a creator and a
// subscriber. Identified by the name derived from the participant pair
// (see Uid.ConvName).
type Conversation struct {
	ObjHeader
	// Routable name of the conversation, "cnv..."
	Name string

	// The two participants.
	Creator string
	User    string

	// Per-participant toggles.
	CreatorPinned bool
	UserPinned    bool
	CreatorMuted  bool
	UserMuted     bool

	// Either "" or LockAdminBlocked. The effective lock for a viewer is
	// always computed on read; see the permission evaluator.
	LockedReason string

	// Denormalized preview of the latest message.
	TouchedAt time.Time
	Preview   string

	// Unread counters, one per participant.
	CreatorUnread int
	UserUnread    int
}

// IsParticipant checks if the given user takes part in the conversation.
func (c *Conversation) IsParticipant(uid Uid) bool {
	id := uid.String()
	return id == c.Creator || id == c.User
}

// OtherUser returns the Uid of the participant other than the given one.
func (c *Conversation) OtherUser(uid Uid) Uid {
	if c.Creator == uid.String() {
		return ParseUid(c.User)
	}
	return ParseUid(c.Creator)
}

// UnreadFor returns the unread counter of the given participant.
func (c *Conversation) UnreadFor(uid Uid) int {
	if c.Creator == uid.String() {
		return c.CreatorUnread
	}
	return c.UserUnread
}

// PinnedFor reports whether the given participant pinned the conversation.
func (c *Conversation) PinnedFor(uid Uid) bool {
	if c.Creator == uid.String() {
		return c.CreatorPinned
	}
	return c.UserPinned
}

// MutedFor reports whether the given participant muted the conversation.
func (c *Conversation) MutedFor(uid Uid) bool {
	if c.Creator == uid.String() {
		return c.CreatorMuted
	}
	return c.UserMuted
}

// MediaType is the type of a message attachment.
type MediaType string

// Attachment media types.
const (
	MediaImage = MediaType("image")
	MediaVideo = MediaType("video")
	MediaAudio = MediaType("audio")
)

// Attachment is a reference to an uploaded media object. The binary asset
// itself lives behind the media handler; the message only records the
// reference.
type Attachment struct {
	Type   MediaType `json:"type"`
	Url    string    `json:"url"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
}

// Message types.
const (
	// MessageUser is a regular user-authored message. Stored as an empty
	// string to keep the common case compact.
	MessageUser = ""
	// MessageSystem is a server-generated message carrying structured
	// metadata instead of free text. Never editable or deletable by users.
	MessageSystem = "system"
)

// EditWindow is how long after creation a message may still be edited by
// its sender.
const EditWindow = 15 * time.Minute

// Reaction is a single (user, emoji) mark on a message.
type Reaction struct {
	User      string    `json:"user"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"at"`
}

// Message is a stored conversation message.
type Message struct {
	ObjHeader
	Conversation string
	From         string

	// "" for user messages, "system" for server-generated ones.
	Type string

	Text        string
	Attachments []Attachment

	// Structured metadata of system messages, e.g. {"what":"sub_renewed"}.
	Meta map[string]any

	// Set once on first edit, never cleared.
	Edited bool
	// Soft-delete marker. The row is kept, displayed content is replaced
	// by a placeholder.
	Deleted bool

	Reactions []Reaction
}

// Editable checks whether the message can still be edited by the requester
// at the given moment. Returns nil when the edit is allowed.
func (m *Message) Editable(requester Uid, now time.Time) error {
	if m.Type == MessageSystem {
		return ErrNotAuthor
	}
	if m.From != requester.String() {
		return ErrNotAuthor
	}
	if m.Deleted {
		return ErrNotAuthor
	}
	if now.Sub(m.CreatedAt) >= EditWindow {
		return ErrEditWindowExpired
	}
	return nil
}

// SortBefore reports whether the message sorts strictly before the other one:
// by creation time, ties broken by id for determinism.
func (m *Message) SortBefore(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Uid() < other.Uid()
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// SortMessages sorts messages in ascending display order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SortBefore(&msgs[j])
	})
}

// ToggleReaction adds the (user, emoji) pair to the reaction list if absent,
// removes it if present. Returns the new list and true if the reaction was
// added. At most one entry per (user, emoji) pair is kept.
func ToggleReaction(reactions []Reaction, user Uid, emoji string, now time.Time) ([]Reaction, bool) {
	id := user.String()
	for i, r := range reactions {
		if r.User == id && r.Emoji == emoji {
			return append(reactions[:i:i], reactions[i+1:]...), false
		}
	}
	return append(reactions, Reaction{User: id, Emoji: emoji, CreatedAt: now}), true
}

// ReactionGroup is the per-emoji aggregate shown as a reaction pill.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
	// True if the viewer is among Users.
	Mine bool `json:"mine,omitempty"`
}

// GroupReactions groups a flat reaction list by emoji. Groups are ordered by
// the earliest reaction within each group (insertion order), so the pills do
// not reshuffle as counts change.
func GroupReactions(reactions []Reaction, viewer Uid) []ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}

	me := viewer.String()
	index := make(map[string]int, len(reactions))
	var groups []ReactionGroup
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.User)
		if r.User == me {
			groups[i].Mine = true
		}
	}
	return groups
}

// BrowseOpt is the pagination window of a message query. Messages are keyed
// by (CreatedAt, Id); a cursor names the oldest message of the previous page
// and the next page holds messages strictly older than it.
type BrowseOpt struct {
	// Return messages created before this point. Zero means newest first.
	Before   time.Time
	BeforeId Uid
	// Maximum number of messages to return. Zero means adapter default.
	Limit int
}

// DeviceDef is the data provided by a client device for push notifications.
type DeviceDef struct {
	// DeviceId is the device token provided by the push service.
	DeviceId string
	// Platform: "ios", "android", "web".
	Platform string
	// LastSeen is when the device was last online.
	LastSeen time.Time
	// Lang is the human language of the client device.
	Lang string
}

// Upload states.
const (
	// UploadStarted indicates that the upload has started but not finished.
	UploadStarted = iota
	// UploadCompleted indicates that the upload has completed successfully.
	UploadCompleted
	// UploadFailed indicates that the upload has failed.
	UploadFailed
)

// FileDef is a stored record of a file upload.
type FileDef struct {
	ObjHeader
	// Status of the upload, one of the Upload* constants.
	Status int
	// User who uploaded the file.
	User string
	// Media type of the file.
	MimeType string
	// Size of the file in bytes.
	Size int64
	// Internal location of the file, adapter-specific.
	Location string
}
