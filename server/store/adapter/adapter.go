// Package adapter contains the interfaces to be implemented by the database
// adapters.
package adapter

import (
	"encoding/json"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	t "github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Adapter is the interface that must be implemented by a database adapter.
// The current schema supports a single contiguous set of conversations
// between creators and their subscribers.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetDbVersion returns the current database version.
	GetDbVersion() (int, error)
	// CheckDbVersion checks if the actual database version matches
	// the expected adapter version.
	CheckDbVersion() error
	// GetName returns the name of the adapter.
	GetName() string
	// SetMaxResults configures how many results can be returned in a single
	// query.
	SetMaxResults(val int) error
	// CreateDb creates the database optionally dropping an existing one first.
	CreateDb(reset bool) error
	// UpgradeDb upgrades the database to the current adapter version.
	UpgradeDb() error
	// Version returns the adapter's version.
	Version() int
	// Stats returns the adapter's runtime statistics.
	Stats() any

	// User management

	// UserCreate creates a user record.
	UserCreate(user *t.User) error
	// UserGet returns a record for the given user id or nil if not found.
	UserGet(uid t.Uid) (*t.User, error)
	// UserGetAll returns records for the given user ids.
	UserGetAll(ids ...t.Uid) ([]t.User, error)
	// UserUpdate updates user record.
	UserUpdate(uid t.Uid, update map[string]any) error
	// UserDelete deletes the user record: soft-deletes when hard is false.
	UserDelete(uid t.Uid, hard bool) error

	// Authentication management for the basic authentication scheme

	// AuthGetUniqueRecord returns authentication record for the given unique
	// value, i.e. login.
	AuthGetUniqueRecord(unique string) (t.Uid, auth.Level, []byte, time.Time, error)
	// AuthGetRecord returns authentication record for the given user and scheme.
	AuthGetRecord(uid t.Uid, scheme string) (string, auth.Level, []byte, time.Time, error)
	// AuthAddRecord creates a new authentication record for the given user.
	AuthAddRecord(uid t.Uid, scheme, unique string, authLvl auth.Level, secret []byte, expires time.Time) error
	// AuthDelScheme deletes an existing authentication scheme for the user.
	AuthDelScheme(uid t.Uid, scheme string) error
	// AuthDelAllRecords deletes all authentication records for the user.
	AuthDelAllRecords(uid t.Uid) (int, error)
	// AuthUpdRecord updates the authentication record.
	AuthUpdRecord(uid t.Uid, scheme, unique string, authLvl auth.Level, secret []byte, expires time.Time) error

	// Access grant management

	// GrantUpsert creates or replaces a grant record for the
	// (subscriber, creator, kind) triple.
	GrantUpsert(grant *t.Grant) error
	// GrantGet returns the grant record for the triple or nil if none exists.
	GrantGet(subscriber, creator t.Uid, kind t.GrantKind) (*t.Grant, error)

	// Conversation management

	// ConvCreate creates a conversation record. Returns ErrDuplicate if a
	// conversation with the same name already exists.
	ConvCreate(conv *t.Conversation) error
	// ConvGet loads a conversation by name or returns nil if not found.
	ConvGet(name string) (*t.Conversation, error)
	// ConvGetAll loads all conversations where the given user is a
	// participant, most recently touched first.
	ConvGetAll(uid t.Uid, limit int) ([]t.Conversation, error)
	// ConvUpdate updates a conversation record.
	ConvUpdate(name string, update map[string]any) error
	// ConvMarkRead resets the unread counter of the given participant.
	ConvMarkRead(name string, uid t.Uid) error

	// Message management

	// MessageSave saves a new message, updates the owning conversation's
	// preview, touch timestamp and the recipient's unread counter in the
	// same transaction.
	MessageSave(msg *t.Message, preview string) error
	// MessageGet loads a single message by conversation and id.
	MessageGet(conv string, id t.Uid) (*t.Message, error)
	// MessageGetAll returns a page of messages in ascending display order.
	MessageGetAll(conv string, opts *t.BrowseOpt) ([]t.Message, error)
	// MessageUpdate updates the stored message, used for edits, soft deletes
	// and reaction changes.
	MessageUpdate(conv string, id t.Uid, update map[string]any) error

	// Device (push notification) management

	// DeviceUpsert creates or updates a device record.
	DeviceUpsert(uid t.Uid, dev *t.DeviceDef) error
	// DeviceGetAll returns all devices for a given set of users.
	DeviceGetAll(uid ...t.Uid) (map[t.Uid][]t.DeviceDef, int, error)
	// DeviceDelete deletes a device record.
	DeviceDelete(uid t.Uid, deviceID string) error

	// File upload records

	// FileStartUpload initializes a record of a new file upload.
	FileStartUpload(fd *t.FileDef) error
	// FileFinishUpload marks the upload as completed or failed.
	FileFinishUpload(fd *t.FileDef, success bool, size int64) (*t.FileDef, error)
	// FileGet fetches a record of a specific file.
	FileGet(fid string) (*t.FileDef, error)
	// FileDeleteUnused deletes records of unused files older than the given
	// time, returns array of locations to be deleted from the media store.
	FileDeleteUnused(olderThan time.Time, limit int) ([]string, error)
}
