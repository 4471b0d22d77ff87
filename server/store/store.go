// Package store provides methods for persistent storage of data: a façade
// for the database adapters.
package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/media"
	"github.com/RinKhimera/fantribe-messenger/server/store/adapter"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)
var mediaHandler media.Handler

// Unique ID generator.
var uGen types.UidGenerator

type configType struct {
	// UID generator config: 16 random bytes.
	UidKey []byte `json:"uid_key"`
	// Maximum number of results to return from adapter for a single query.
	MaxResults int `json:"max_results"`
	// Name of the adapter to use when more than one is compiled in.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else if len(availableAdapters) > 1 {
			return errors.New("store: db adapter is not specified, set `store_config.use_adapter`")
		} else {
			return errors.New("store: database adapter is missing")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	// Initialize snowflake.
	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID")
	}

	if err := uGen.Init(uint(workerId), config.UidKey); err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	if err := adp.SetMaxResults(config.MaxResults); err != nil {
		return err
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// PersistentStorageInterface defines methods used for interation with
// persistent storage.
type PersistentStorageInterface interface {
	Open(workerId int, jsonconf json.RawMessage) error
	Close() error
	IsOpen() bool
	GetAdapter() adapter.Adapter
	GetAdapterName() string
	GetAdapterVersion() int
	GetDbVersion() int
	InitDb(jsonconf json.RawMessage, reset bool) error
	UpgradeDb(jsonconf json.RawMessage) error
	GetUid() types.Uid
	GetUidString() string
	DbStats() func() any
	GetAuthNames() []string
	GetAuthHandler(name string) auth.AuthHandler
	GetLogicalAuthHandler(name string) auth.AuthHandler
	InitAuthLogicalNames(config json.RawMessage) error
	UseMediaHandler(name string, config string) error
	GetMediaHandler() media.Handler
}

// Store is the main object for interacting with persistent storage.
var Store PersistentStorageInterface = storeObj{}

type storeObj struct{}

// Open initializes the persistence system. Adapter holds a connection pool
// for a database instance.
//
//	name - name of the adapter rquested in the config file
//	jsonconf - configuration string
func (s storeObj) Open(workerId int, jsonconf json.RawMessage) error {
	if err := openAdapter(workerId, jsonconf); err != nil {
		return err
	}

	return adp.CheckDbVersion()
}

// Close terminates connection to persistent storage.
func (storeObj) Close() error {
	if adp.IsOpen() {
		return adp.Close()
	}

	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func (storeObj) IsOpen() bool {
	if adp != nil {
		return adp.IsOpen()
	}

	return false
}

// GetAdapter returns the currently configured adapter.
func (storeObj) GetAdapter() adapter.Adapter {
	return adp
}

// GetAdapterName returns the name of the current adapter.
func (storeObj) GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}

	return ""
}

// GetAdapterVersion returns version of the current adapter.
func (storeObj) GetAdapterVersion() int {
	if adp != nil {
		return adp.Version()
	}

	return -1
}

// GetDbVersion returns version of the underlying database.
func (storeObj) GetDbVersion() int {
	if adp != nil {
		vers, _ := adp.GetDbVersion()
		return vers
	}

	return -1
}

// InitDb creates and configures a new database instance. If 'reset' is true, it will first
// attempt to drop an existing database. If jsonconf is nil it will assume that the adapter is
// already open. If it's non-nil, it will use the config string to open the DB connection first.
func (s storeObj) InitDb(jsonconf json.RawMessage, reset bool) error {
	if !s.IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// UpgradeDb performs an upgrade of the database to the current adapter version.
// If jsonconf is nil it will assume that the adapter is already open. If it's non-nil, it will
// use the config string to open the DB connection first.
func (s storeObj) UpgradeDb(jsonconf json.RawMessage) error {
	if !s.IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.UpgradeDb()
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: Register adapter is nil")
	}

	adapterName := a.GetName()
	if _, ok := availableAdapters[adapterName]; ok {
		panic("store: adapter '" + adapterName + "' is already registered")
	}
	availableAdapters[adapterName] = a
}

// GetUid generates a unique ID suitable for use as a primary key.
func (storeObj) GetUid() types.Uid {
	return uGen.Get()
}

// GetUidString generate unique ID as string.
func (storeObj) GetUidString() string {
	return uGen.GetStr()
}

// DecodeUid takes an XTEA encrypted Uid and decrypts it into an int64.
// Used by SQL adapters only. Returns 0 if the provided Uid is a Zero.
func DecodeUid(uid types.Uid) int64 {
	if uid.IsZero() {
		return 0
	}
	return uGen.DecodeUid(uid)
}

// EncodeUid takes an int64 and encrypts it into a types.Uid.
// Returns a Zero if the provided int64 is 0.
func EncodeUid(id int64) types.Uid {
	if id == 0 {
		return types.ZeroUid
	}
	return uGen.EncodeInt64(id)
}

// SetTestUidGenerator sets the Uid generator. Used in tests only.
func SetTestUidGenerator(ug types.UidGenerator) {
	uGen = ug
}

// DbStats returns a callback returning db connection stats object.
func (s storeObj) DbStats() func() any {
	if !s.IsOpen() {
		return nil
	}
	return adp.Stats
}

// Registered authentication handlers.
var authHandlers = make(map[string]auth.AuthHandler)

// Logical auth handler names
var authHandlerNames = make(map[string]string)

// RegisterAuthScheme registers an authentication scheme handler.
// The 'name' must be the hardcoded name, NOT a logical name.
func RegisterAuthScheme(name string, handler auth.AuthHandler) {
	if name == "" {
		panic("store: authentication scheme name is missing")
	}

	name = strings.ToLower(name)

	if _, dup := authHandlers[name]; dup {
		panic("store: duplicate registration of authentication scheme " + name)
	}

	if handler == nil {
		panic("store: registering nil authentication scheme " + name)
	}

	authHandlers[name] = handler
}

// GetAuthNames returns all addressable auth handler names, logical and hardcoded
// excluding those which are disabled.
func (storeObj) GetAuthNames() []string {
	if len(authHandlers) == 0 {
		return nil
	}

	allNames := make(map[string]struct{})
	for name := range authHandlers {
		allNames[name] = struct{}{}
	}
	for name := range authHandlerNames {
		allNames[name] = struct{}{}
	}

	var names []string
	for name := range allNames {
		if Store.GetLogicalAuthHandler(name) != nil {
			names = append(names, name)
		}
	}

	return names
}

// GetAuthHandler returns an auth handler by actual hardcoded name irrspectful of the configured aliases.
func (storeObj) GetAuthHandler(name string) auth.AuthHandler {
	return authHandlers[strings.ToLower(name)]
}

// GetLogicalAuthHandler returns an auth handler by logical name. If there is no handler by that
// logical name it tries to find one by the hardcoded name.
func (storeObj) GetLogicalAuthHandler(name string) auth.AuthHandler {
	name = strings.ToLower(name)
	if len(authHandlerNames) != 0 {
		if lname, ok := authHandlerNames[name]; ok {
			return authHandlers[lname]
		}
	}
	return authHandlers[name]
}

// InitAuthLogicalNames initializes authentication mapping "logical handler name":"actual handler name".
// Logical name must not be empty, actual name could be an empty string.
func (storeObj) InitAuthLogicalNames(config json.RawMessage) error {
	if config == nil {
		return nil
	}

	var mapping []string
	if err := json.Unmarshal(config, &mapping); err != nil {
		return errors.New("store: failed to parse logical auth names: " + err.Error() + "(" + string(config) + ")")
	}

	if len(mapping) == 0 {
		return nil
	}

	if authHandlerNames == nil {
		authHandlerNames = make(map[string]string)
	}

	for _, pair := range mapping {
		if parts := strings.Split(pair, ":"); len(parts) == 2 {
			if parts[0] == "" {
				return errors.New("store: empty logical auth name '" + pair + "'")
			}
			parts[0] = strings.ToLower(parts[0])
			if _, ok := authHandlerNames[parts[0]]; ok {
				return errors.New("store: duplicate mapping for logical auth name '" + pair + "'")
			}
			parts[1] = strings.ToLower(parts[1])
			if parts[1] != "" {
				if _, ok := authHandlers[parts[1]]; !ok {
					return errors.New("store: unknown handler for logical auth name '" + pair + "'")
				}
			}
			if parts[0] == parts[1] {
				// Skip useless identity mapping.
				continue
			}
			authHandlerNames[parts[0]] = parts[1]
		} else {
			return errors.New("store: invalid logical auth mapping '" + pair + "'")
		}
	}

	return nil
}

// Registered media/file handlers.
var fileHandlers map[string]media.Handler

// RegisterMediaHandler saves reference to a media handler (file upload-download handler).
func RegisterMediaHandler(name string, mh media.Handler) {
	if fileHandlers == nil {
		fileHandlers = make(map[string]media.Handler)
	}

	if mh == nil {
		panic("store: Register media handler is nil")
	}
	if _, dup := fileHandlers[name]; dup {
		panic("store: duplicate registration of media handler " + name)
	}
	fileHandlers[name] = mh
}

// UseMediaHandler sets specified media handler as default.
func (storeObj) UseMediaHandler(name, config string) error {
	mediaHandler = fileHandlers[name]
	if mediaHandler == nil {
		panic("store: unknown media handler '" + name + "'")
	}
	return mediaHandler.Init(config)
}

// GetMediaHandler returns default media handler.
func (storeObj) GetMediaHandler() media.Handler {
	return mediaHandler
}

// UsersPersistenceInterface is an interface which defines methods for
// persistent storage of user records.
type UsersPersistenceInterface interface {
	Create(user *types.User) (*types.User, error)
	Get(uid types.Uid) (*types.User, error)
	GetAll(uid ...types.Uid) ([]types.User, error)
	Update(uid types.Uid, update map[string]any) error
	Delete(uid types.Uid, hard bool) error
	GetAuthRecord(user types.Uid, scheme string) (string, auth.Level, []byte, time.Time, error)
	GetAuthUniqueRecord(scheme, unique string) (types.Uid, auth.Level, []byte, time.Time, error)
	AddAuthRecord(uid types.Uid, authLvl auth.Level, scheme, unique string, secret []byte, expires time.Time) error
	UpdateAuthRecord(uid types.Uid, authLvl auth.Level, scheme, unique string, secret []byte, expires time.Time) error
	DelAuthRecords(uid types.Uid, scheme string) error
}

// Users is the ancor for storing/retrieving user objects.
var Users UsersPersistenceInterface = usersMapper{}

type usersMapper struct{}

// Create inserts User object into a database, updates creation time and
// assigns UID.
func (usersMapper) Create(user *types.User) (*types.User, error) {
	user.SetUid(Store.GetUid())
	user.InitTimes()

	if err := adp.UserCreate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Get returns a user object for the given user ID.
func (usersMapper) Get(uid types.Uid) (*types.User, error) {
	return adp.UserGet(uid)
}

// GetAll returns a slice of user objects for the given user IDs.
func (usersMapper) GetAll(uid ...types.Uid) ([]types.User, error) {
	return adp.UserGetAll(uid...)
}

// Update changes values of user's fields.
func (usersMapper) Update(uid types.Uid, update map[string]any) error {
	update["UpdatedAt"] = types.TimeNow()
	return adp.UserUpdate(uid, update)
}

// Delete deletes the user record.
func (usersMapper) Delete(uid types.Uid, hard bool) error {
	return adp.UserDelete(uid, hard)
}

// GetAuthRecord takes a user ID and a authentication scheme name, fetches unique scheme-dependent identifier and
// authentication secret.
func (usersMapper) GetAuthRecord(user types.Uid, scheme string) (string, auth.Level, []byte, time.Time, error) {
	unique, authLvl, secret, expires, err := adp.AuthGetRecord(user, scheme)
	if err == nil {
		parts := strings.Split(unique, ":")
		if len(parts) > 1 {
			unique = parts[1]
		} else {
			err = types.ErrInternal
		}
	}

	return unique, authLvl, secret, expires, err
}

// GetAuthUniqueRecord takes a unique identifier and a authentication scheme name, fetches user ID and
// authentication secret.
func (usersMapper) GetAuthUniqueRecord(scheme, unique string) (types.Uid, auth.Level, []byte, time.Time, error) {
	return adp.AuthGetUniqueRecord(scheme + ":" + unique)
}

// AddAuthRecord creates a new authentication record for the given user.
func (usersMapper) AddAuthRecord(uid types.Uid, authLvl auth.Level, scheme, unique string, secret []byte,
	expires time.Time) error {

	return adp.AuthAddRecord(uid, scheme, scheme+":"+unique, authLvl, secret, expires)
}

// UpdateAuthRecord updates authentication record with a new secret and expiration time.
func (usersMapper) UpdateAuthRecord(uid types.Uid, authLvl auth.Level, scheme, unique string,
	secret []byte, expires time.Time) error {

	return adp.AuthUpdRecord(uid, scheme, scheme+":"+unique, authLvl, secret, expires)
}

// DelAuthRecords deletes user's authentication records of the given scheme.
func (usersMapper) DelAuthRecords(uid types.Uid, scheme string) error {
	return adp.AuthDelScheme(uid, scheme)
}

// ConversationsPersistenceInterface is an interface which defines methods for
// persistent storage of conversations.
type ConversationsPersistenceInterface interface {
	GetOrCreate(creator, user types.Uid) (*types.Conversation, error)
	Get(name string) (*types.Conversation, error)
	GetAll(uid types.Uid, limit int) ([]types.Conversation, error)
	Update(name string, update map[string]any) error
	MarkRead(name string, uid types.Uid) error
	SetLock(name string, reason string) error
}

// Conversations is the anchor for storing/retrieving conversation objects.
var Conversations ConversationsPersistenceInterface = convMapper{}

type convMapper struct{}

// GetOrCreate returns the conversation between the creator and the user,
// creating it if it does not exist yet. The conversation name is derived
// from the participant pair, so concurrent calls converge on the same record.
func (c convMapper) GetOrCreate(creator, user types.Uid) (*types.Conversation, error) {
	name := creator.ConvName(user)
	if name == "" {
		return nil, types.ErrMalformed
	}

	conv, err := adp.ConvGet(name)
	if err != nil || conv != nil {
		return conv, err
	}

	conv = &types.Conversation{
		Name:      name,
		Creator:   creator.String(),
		User:      user.String(),
		TouchedAt: types.TimeNow(),
	}
	conv.SetUid(Store.GetUid())
	conv.InitTimes()

	err = adp.ConvCreate(conv)
	if err == types.ErrDuplicate {
		// Lost the race to a concurrent create. Read the winner.
		return adp.ConvGet(name)
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Get loads a conversation by name.
func (convMapper) Get(name string) (*types.Conversation, error) {
	return adp.ConvGet(name)
}

// GetAll loads the user's conversations, most recently touched first.
func (convMapper) GetAll(uid types.Uid, limit int) ([]types.Conversation, error) {
	return adp.ConvGetAll(uid, limit)
}

// Update changes values of conversation's fields.
func (convMapper) Update(name string, update map[string]any) error {
	update["UpdatedAt"] = types.TimeNow()
	return adp.ConvUpdate(name, update)
}

// MarkRead resets the unread counter of the given participant.
func (convMapper) MarkRead(name string, uid types.Uid) error {
	return adp.ConvMarkRead(name, uid)
}

// SetLock persists the administrative lock reason, either
// types.LockAdminBlocked or an empty string. Computed lock reasons are
// never stored.
func (convMapper) SetLock(name string, reason string) error {
	if reason != "" && reason != types.LockAdminBlocked {
		return types.ErrMalformed
	}
	return adp.ConvUpdate(name, map[string]any{
		"UpdatedAt":    types.TimeNow(),
		"LockedReason": reason,
	})
}

// MessagesPersistenceInterface is an interface which defines methods for
// persistent storage of messages.
type MessagesPersistenceInterface interface {
	Save(msg *types.Message, preview string) (*types.Message, error)
	Get(conv string, id types.Uid) (*types.Message, error)
	GetAll(conv string, opts *types.BrowseOpt) ([]types.Message, error)
	Update(conv string, id types.Uid, update map[string]any) error
}

// Messages is the anchor for storing/retrieving message objects.
var Messages MessagesPersistenceInterface = messagesMapper{}

type messagesMapper struct{}

// Save appends a message to a conversation, assigns the message ID and
// creation time, and updates the conversation's denormalized preview.
func (messagesMapper) Save(msg *types.Message, preview string) (*types.Message, error) {
	msg.SetUid(Store.GetUid())
	msg.InitTimes()

	if err := adp.MessageSave(msg, preview); err != nil {
		return nil, err
	}
	return msg, nil
}

// Get loads a single message.
func (messagesMapper) Get(conv string, id types.Uid) (*types.Message, error) {
	return adp.MessageGet(conv, id)
}

// GetAll loads a page of messages in ascending display order.
func (messagesMapper) GetAll(conv string, opts *types.BrowseOpt) ([]types.Message, error) {
	return adp.MessageGetAll(conv, opts)
}

// Update changes values of message's fields.
func (messagesMapper) Update(conv string, id types.Uid, update map[string]any) error {
	update["UpdatedAt"] = types.TimeNow()
	return adp.MessageUpdate(conv, id, update)
}

// GrantsPersistenceInterface is an interface which defines methods for
// persistent storage of access grants.
type GrantsPersistenceInterface interface {
	Upsert(grant *types.Grant) (*types.Grant, error)
	Get(subscriber, creator types.Uid, kind types.GrantKind) (*types.Grant, error)
	Active(subscriber, creator types.Uid, kind types.GrantKind, now time.Time) (bool, error)
}

// Grants is the anchor for storing/retrieving access grant records.
var Grants GrantsPersistenceInterface = grantsMapper{}

type grantsMapper struct{}

// Upsert creates or replaces the grant record for its
// (subscriber, creator, kind) triple.
func (grantsMapper) Upsert(grant *types.Grant) (*types.Grant, error) {
	if grant.Id == "" {
		grant.SetUid(Store.GetUid())
	}
	grant.InitTimes()

	if err := adp.GrantUpsert(grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// Get loads the grant record for the triple, nil if none exists.
func (grantsMapper) Get(subscriber, creator types.Uid, kind types.GrantKind) (*types.Grant, error) {
	return adp.GrantGet(subscriber, creator, kind)
}

// Active reports whether the subscriber holds an unexpired grant of the
// given kind towards the creator.
func (g grantsMapper) Active(subscriber, creator types.Uid, kind types.GrantKind, now time.Time) (bool, error) {
	grant, err := g.Get(subscriber, creator, kind)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Active(now), nil
}

// DevicesPersistenceInterface is an interface which defines methods used for
// handling devices (for push notifications).
type DevicesPersistenceInterface interface {
	Update(uid types.Uid, oldDeviceID string, dev *types.DeviceDef) error
	GetAll(uid ...types.Uid) (map[types.Uid][]types.DeviceDef, int, error)
	Delete(uid types.Uid, deviceID string) error
}

// Devices is the anchor for storing/retrieving device objects.
var Devices DevicesPersistenceInterface = deviceMapper{}

type deviceMapper struct{}

// Update updates a device record.
func (deviceMapper) Update(uid types.Uid, oldDeviceID string, dev *types.DeviceDef) error {
	// If the old device Id is specified and it's different from the new ID,
	// delete the old id.
	if oldDeviceID != "" && (dev == nil || dev.DeviceId != oldDeviceID) {
		if err := adp.DeviceDelete(uid, oldDeviceID); err != nil {
			return err
		}
	}

	// Insert or update the new DeviceId if one is given.
	if dev != nil && dev.DeviceId != "" {
		return adp.DeviceUpsert(uid, dev)
	}
	return nil
}

// GetAll returns all known device IDs for a given list of users.
func (deviceMapper) GetAll(uid ...types.Uid) (map[types.Uid][]types.DeviceDef, int, error) {
	return adp.DeviceGetAll(uid...)
}

// Delete deletes device record for a given user.
func (deviceMapper) Delete(uid types.Uid, deviceID string) error {
	return adp.DeviceDelete(uid, deviceID)
}

// FilesPersistenceInterface is an interface which defines methods used for
// persistent storage of file records.
type FilesPersistenceInterface interface {
	StartUpload(fd *types.FileDef) error
	FinishUpload(fd *types.FileDef, success bool, size int64) (*types.FileDef, error)
	Get(fid string) (*types.FileDef, error)
	DeleteUnused(olderThan time.Time, limit int) error
}

// Files is the anchor for storing/retrieving file records.
var Files FilesPersistenceInterface = filesMapper{}

type filesMapper struct{}

// StartUpload records that the given user initiated a file upload.
func (filesMapper) StartUpload(fd *types.FileDef) error {
	fd.Status = types.UploadStarted
	return adp.FileStartUpload(fd)
}

// FinishUpload marks started upload as successfully finished or failed.
func (filesMapper) FinishUpload(fd *types.FileDef, success bool, size int64) (*types.FileDef, error) {
	return adp.FileFinishUpload(fd, success, size)
}

// Get fetches a file record for a unique file id.
func (filesMapper) Get(fid string) (*types.FileDef, error) {
	return adp.FileGet(fid)
}

// DeleteUnused removes records of unused files and asks the media handler to
// delete the associated assets.
func (filesMapper) DeleteUnused(olderThan time.Time, limit int) error {
	toDel, err := adp.FileDeleteUnused(olderThan, limit)
	if err != nil {
		return err
	}
	if len(toDel) > 0 {
		return Store.GetMediaHandler().Delete(toDel)
	}
	return nil
}
