// Package mysql is a database adapter for MySQL.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	t "github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db         *sqlx.DB
	dsn        string
	dbName     string
	maxResults int
	version    int
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/fantribe?parseTime=true&collation=utf8mb4_unicode_ci"
	defaultDatabase = "fantribe"

	adpVersion = 100

	adapterName = "mysql"

	defaultMaxResults = 1024

	// If DB request timeout is specified,
	// we allocate txTimeoutMultiplier times more time for transactions.
	txTimeoutMultiplier = 1.5
)

type configType struct {
	DSN    string `json:"dsn,omitempty"`
	DBName string `json:"database,omitempty"`

	// Connection pool settings.
	MaxOpenConns    int `json:"max_open_conns,omitempty"`
	MaxIdleConns    int `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty"`
}

// Open initializes the MySQL session.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	var err error
	var config configType
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("mysql adapter failed to parse config: " + err.Error())
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}

	a.dbName = config.DBName
	if a.dbName == "" {
		if cfg, err := ms.ParseDSN(a.dsn); err == nil && cfg.DBName != "" {
			a.dbName = cfg.DBName
		} else {
			a.dbName = defaultDatabase
		}
	}

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// sql.Open does not open the network connection.
	// Force network connection here.
	if err = a.db.Ping(); err != nil {
		return err
	}

	if config.MaxOpenConns > 0 {
		a.db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		a.db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		a.db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	a.version = -1
	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established.
// It does not check if connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetDbVersion returns the current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	var vers string
	if err := a.db.Get(&vers, "SELECT `value` FROM kvmeta WHERE `key`='version'"); err != nil {
		if isMissingDb(err) || err == sql.ErrNoRows {
			err = errors.New("database not initialized")
		}
		return -1, err
	}
	a.version, _ = strconv.Atoi(vers)

	return a.version, nil
}

// CheckDbVersion checks whether the actual DB version matches the expected
// version of this adapter.
func (a *adapter) CheckDbVersion() error {
	version, err := a.GetDbVersion()
	if err != nil {
		return err
	}

	if version != adpVersion {
		return errors.New("invalid database version " + strconv.Itoa(version) +
			", expected " + strconv.Itoa(adpVersion))
	}

	return nil
}

// Version returns adapter version.
func (adapter) Version() int {
	return adpVersion
}

// Stats returns connection pool statistics.
func (a *adapter) Stats() any {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// GetName returns string that adapter uses to register itself with the store.
func (a *adapter) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single DB call.
func (a *adapter) SetMaxResults(val int) error {
	if val <= 0 {
		a.maxResults = defaultMaxResults
	} else {
		a.maxResults = val
	}

	return nil
}

// CreateDb initializes the storage.
func (a *adapter) CreateDb(reset bool) error {
	var err error
	var tx *sql.Tx

	// Can't use an existing connection because it's configured with the
	// database name which may not exist yet.
	cfg, err := ms.ParseDSN(a.dsn)
	if err != nil {
		return err
	}
	cfg.DBName = ""

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if tx, err = db.Begin(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if reset {
		if _, err = tx.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
	}

	if _, err = tx.Exec("CREATE DATABASE " + a.dbName +
		" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return err
	}

	if _, err = tx.Exec("USE " + a.dbName); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE users(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			state     SMALLINT NOT NULL DEFAULT 0,
			stateat   DATETIME(3),
			iscreator TINYINT NOT NULL DEFAULT 0,
			public    JSON,
			PRIMARY KEY(id)
		)`); err != nil {
		return err
	}

	// Indexed users.id, unique users.uname.
	if _, err = tx.Exec(
		`CREATE TABLE auth(
			id      INT NOT NULL AUTO_INCREMENT,
			uname   VARCHAR(32) NOT NULL,
			userid  BIGINT NOT NULL,
			scheme  VARCHAR(16) NOT NULL,
			authlvl SMALLINT NOT NULL,
			secret  VARBINARY(255) NOT NULL,
			expires DATETIME(3),
			PRIMARY KEY(id),
			FOREIGN KEY(userid) REFERENCES users(id),
			UNIQUE INDEX auth_userid_scheme(userid, scheme),
			UNIQUE INDEX auth_uname(uname)
		)`); err != nil {
		return err
	}

	// Access grants, one row per (subscriber, creator, kind) triple.
	if _, err = tx.Exec(
		`CREATE TABLE grants(
			id         BIGINT NOT NULL,
			createdat  DATETIME(3) NOT NULL,
			updatedat  DATETIME(3) NOT NULL,
			subscriber BIGINT NOT NULL,
			creator    BIGINT NOT NULL,
			kind       VARCHAR(24) NOT NULL,
			expiresat  DATETIME(3) NOT NULL,
			PRIMARY KEY(id),
			FOREIGN KEY(subscriber) REFERENCES users(id),
			FOREIGN KEY(creator) REFERENCES users(id),
			UNIQUE INDEX grants_triple(subscriber, creator, kind)
		)`); err != nil {
		return err
	}

	// Conversations between creators and subscribers.
	if _, err = tx.Exec(
		`CREATE TABLE conversations(
			id            BIGINT NOT NULL,
			createdat     DATETIME(3) NOT NULL,
			updatedat     DATETIME(3) NOT NULL,
			name          CHAR(25) NOT NULL,
			creatorid     BIGINT NOT NULL,
			userid        BIGINT NOT NULL,
			creatorpinned TINYINT NOT NULL DEFAULT 0,
			userpinned    TINYINT NOT NULL DEFAULT 0,
			creatormuted  TINYINT NOT NULL DEFAULT 0,
			usermuted     TINYINT NOT NULL DEFAULT 0,
			lockedreason  VARCHAR(24) NOT NULL DEFAULT '',
			touchedat     DATETIME(3) NOT NULL,
			preview       VARCHAR(128) NOT NULL DEFAULT '',
			creatorunread INT NOT NULL DEFAULT 0,
			userunread    INT NOT NULL DEFAULT 0,
			PRIMARY KEY(id),
			FOREIGN KEY(creatorid) REFERENCES users(id),
			FOREIGN KEY(userid) REFERENCES users(id),
			UNIQUE INDEX conversations_name(name),
			INDEX conversations_creatorid_touchedat(creatorid, touchedat),
			INDEX conversations_userid_touchedat(userid, touchedat)
		)`); err != nil {
		return err
	}

	// Messages. The sender id is 0 for server-generated messages.
	if _, err = tx.Exec(
		`CREATE TABLE messages(
			id          BIGINT NOT NULL,
			createdat   DATETIME(3) NOT NULL,
			updatedat   DATETIME(3) NOT NULL,
			convname    CHAR(25) NOT NULL,
			fromid      BIGINT NOT NULL DEFAULT 0,
			type        VARCHAR(16) NOT NULL DEFAULT '',
			text        TEXT,
			attachments JSON,
			meta        JSON,
			edited      TINYINT NOT NULL DEFAULT 0,
			deleted     TINYINT NOT NULL DEFAULT 0,
			reactions   JSON,
			PRIMARY KEY(id),
			INDEX messages_conv_createdat_id(convname, createdat, id)
		)`); err != nil {
		return err
	}

	// Deployment-specific device ids for push notifications.
	if _, err = tx.Exec(
		`CREATE TABLE devices(
			id       INT NOT NULL AUTO_INCREMENT,
			userid   BIGINT NOT NULL,
			hash     CHAR(16) NOT NULL,
			deviceid TEXT NOT NULL,
			platform VARCHAR(32),
			lastseen DATETIME NOT NULL,
			lang     VARCHAR(8),
			PRIMARY KEY(id),
			FOREIGN KEY(userid) REFERENCES users(id),
			UNIQUE INDEX devices_hash(hash)
		)`); err != nil {
		return err
	}

	// Records of uploaded files.
	if _, err = tx.Exec(
		`CREATE TABLE fileuploads(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			userid    BIGINT,
			status    INT NOT NULL,
			mimetype  VARCHAR(255) NOT NULL,
			size      BIGINT NOT NULL,
			location  VARCHAR(2048) NOT NULL,
			PRIMARY KEY(id),
			INDEX fileuploads_status(status)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE kvmeta(` +
			"`key` CHAR(32)," +
			"`value` TEXT," +
			"PRIMARY KEY(`key`)" +
			`)`); err != nil {
		return err
	}

	if _, err = tx.Exec("INSERT INTO kvmeta(`key`, `value`) VALUES('version', ?)", adpVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// UpgradeDb upgrades the database to the current adapter version.
func (a *adapter) UpgradeDb() error {
	// This is the first version of the schema: nothing to migrate from.
	return a.CheckDbVersion()
}

// UserCreate creates a new user.
func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.db.Exec(
		"INSERT INTO users(id,createdat,updatedat,state,iscreator,public) VALUES(?,?,?,?,?,?)",
		store.DecodeUid(user.Uid()), user.CreatedAt, user.UpdatedAt,
		user.State, user.IsCreator, toJSON(user.Public))

	return err
}

// UserGet fetches a single user by user id.
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	var user t.User
	var id int64
	var public any
	err := a.db.QueryRowx(
		"SELECT id,createdat,updatedat,state,stateat,iscreator,public FROM users WHERE id=? AND state!=?",
		store.DecodeUid(uid), t.StateDeleted).
		Scan(&id, &user.CreatedAt, &user.UpdatedAt, &user.State, &user.StateAt, &user.IsCreator, &public)
	if err == sql.ErrNoRows {
		// Nothing found: user does not exist or marked as soft-deleted.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.SetUid(store.EncodeUid(id))
	user.Public = fromJSON(public)
	return &user, nil
}

// UserGetAll returns user records for the given list of user IDs.
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	uids := make([]any, len(ids))
	for i, id := range ids {
		uids[i] = store.DecodeUid(id)
	}

	query, args, err := sqlx.In(
		"SELECT id,createdat,updatedat,state,stateat,iscreator,public FROM users WHERE id IN (?) AND state!=?",
		uids, t.StateDeleted)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []t.User
	for rows.Next() {
		var user t.User
		var id int64
		var public any
		if err = rows.Scan(&id, &user.CreatedAt, &user.UpdatedAt, &user.State, &user.StateAt,
			&user.IsCreator, &public); err != nil {
			return nil, err
		}
		user.SetUid(store.EncodeUid(id))
		user.Public = fromJSON(public)
		users = append(users, user)
	}
	return users, rows.Err()
}

// UserUpdate updates user record.
func (a *adapter) UserUpdate(uid t.Uid, update map[string]any) error {
	cols, args := updateByMap(update)
	args = append(args, store.DecodeUid(uid))
	_, err := a.db.Exec("UPDATE users SET "+strings.Join(cols, ",")+" WHERE id=?", args...)
	return err
}

// UserDelete deletes user record.
func (a *adapter) UserDelete(uid t.Uid, hard bool) error {
	decUid := store.DecodeUid(uid)

	if !hard {
		now := t.TimeNow()
		_, err := a.db.Exec("UPDATE users SET updatedat=?,state=?,stateat=? WHERE id=?",
			now, t.StateDeleted, now, decUid)
		return err
	}

	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM auth WHERE userid=?", decUid); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM devices WHERE userid=?", decUid); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM grants WHERE subscriber=? OR creator=?", decUid, decUid); err != nil {
		return err
	}
	// The history of the user's conversations goes away with the account.
	if _, err = tx.Exec(
		`DELETE m FROM messages AS m
			JOIN conversations AS c ON c.name=m.convname
			WHERE c.creatorid=? OR c.userid=?`, decUid, decUid); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM conversations WHERE creatorid=? OR userid=?",
		decUid, decUid); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM users WHERE id=?", decUid); err != nil {
		return err
	}

	return tx.Commit()
}

// AuthGetUniqueRecord returns authentication record for a given unique value,
// i.e. login.
func (a *adapter) AuthGetUniqueRecord(unique string) (t.Uid, auth.Level, []byte, time.Time, error) {
	var expires time.Time

	var record struct {
		Userid  int64
		Authlvl auth.Level
		Secret  []byte
		Expires *time.Time
	}

	if err := a.db.Get(&record, "SELECT userid,authlvl,secret,expires FROM auth WHERE uname=?", unique); err != nil {
		if err == sql.ErrNoRows {
			// Nothing found, return blank record.
			return t.ZeroUid, 0, nil, expires, nil
		}
		return t.ZeroUid, 0, nil, expires, err
	}

	if record.Expires != nil {
		expires = *record.Expires
	}

	return store.EncodeUid(record.Userid), record.Authlvl, record.Secret, expires, nil
}

// AuthGetRecord returns authentication record given user ID and method.
func (a *adapter) AuthGetRecord(uid t.Uid, scheme string) (string, auth.Level, []byte, time.Time, error) {
	var expires time.Time

	var record struct {
		Uname   string
		Authlvl auth.Level
		Secret  []byte
		Expires *time.Time
	}

	if err := a.db.Get(&record, "SELECT uname,authlvl,secret,expires FROM auth WHERE userid=? AND scheme=?",
		store.DecodeUid(uid), scheme); err != nil {
		if err == sql.ErrNoRows {
			// Nothing found.
			err = t.ErrNotFound
		}
		return "", 0, nil, expires, err
	}

	if record.Expires != nil {
		expires = *record.Expires
	}

	return record.Uname, record.Authlvl, record.Secret, expires, nil
}

// AuthAddRecord creates a new authentication record.
func (a *adapter) AuthAddRecord(uid t.Uid, scheme, unique string, authLvl auth.Level,
	secret []byte, expires time.Time) error {

	var exp *time.Time
	if !expires.IsZero() {
		exp = &expires
	}
	_, err := a.db.Exec("INSERT INTO auth(uname,userid,scheme,authlvl,secret,expires) VALUES(?,?,?,?,?,?)",
		unique, store.DecodeUid(uid), scheme, authLvl, secret, exp)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// AuthDelScheme deletes an existing authentication scheme for the user.
func (a *adapter) AuthDelScheme(uid t.Uid, scheme string) error {
	_, err := a.db.Exec("DELETE FROM auth WHERE userid=? AND scheme=?", store.DecodeUid(uid), scheme)
	return err
}

// AuthDelAllRecords deletes all authentication records for the user.
func (a *adapter) AuthDelAllRecords(uid t.Uid) (int, error) {
	res, err := a.db.Exec("DELETE FROM auth WHERE userid=?", store.DecodeUid(uid))
	if err != nil {
		return 0, err
	}
	count, _ := res.RowsAffected()

	return int(count), nil
}

// AuthUpdRecord updates an authentication record.
func (a *adapter) AuthUpdRecord(uid t.Uid, scheme, unique string, authLvl auth.Level,
	secret []byte, expires time.Time) error {

	var exp *time.Time
	if !expires.IsZero() {
		exp = &expires
	}
	_, err := a.db.Exec("UPDATE auth SET uname=?,authlvl=?,secret=?,expires=? WHERE userid=? AND scheme=?",
		unique, authLvl, secret, exp, store.DecodeUid(uid), scheme)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// GrantUpsert creates or replaces a grant record for its
// (subscriber, creator, kind) triple.
func (a *adapter) GrantUpsert(grant *t.Grant) error {
	_, err := a.db.Exec(
		`INSERT INTO grants(id,createdat,updatedat,subscriber,creator,kind,expiresat)
			VALUES(?,?,?,?,?,?,?)
			ON DUPLICATE KEY UPDATE updatedat=VALUES(updatedat),expiresat=VALUES(expiresat)`,
		store.DecodeUid(grant.Uid()), grant.CreatedAt, grant.UpdatedAt,
		decodeUidString(grant.Subscriber), decodeUidString(grant.Creator),
		string(grant.Kind), grant.ExpiresAt)
	return err
}

// GrantGet returns the grant record for the triple, nil if none exists.
func (a *adapter) GrantGet(subscriber, creator t.Uid, kind t.GrantKind) (*t.Grant, error) {
	var grant t.Grant
	var id, sub, cre int64
	err := a.db.QueryRowx(
		"SELECT id,createdat,updatedat,subscriber,creator,kind,expiresat FROM grants "+
			"WHERE subscriber=? AND creator=? AND kind=?",
		store.DecodeUid(subscriber), store.DecodeUid(creator), string(kind)).
		Scan(&id, &grant.CreatedAt, &grant.UpdatedAt, &sub, &cre, &grant.Kind, &grant.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	grant.SetUid(store.EncodeUid(id))
	grant.Subscriber = store.EncodeUid(sub).String()
	grant.Creator = store.EncodeUid(cre).String()
	return &grant, nil
}

// ConvCreate saves a new conversation record.
func (a *adapter) ConvCreate(conv *t.Conversation) error {
	_, err := a.db.Exec(
		`INSERT INTO conversations(id,createdat,updatedat,name,creatorid,userid,touchedat)
			VALUES(?,?,?,?,?,?,?)`,
		store.DecodeUid(conv.Uid()), conv.CreatedAt, conv.UpdatedAt, conv.Name,
		decodeUidString(conv.Creator), decodeUidString(conv.User), conv.TouchedAt)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

func (a *adapter) convScan(row sqlx.ColScanner) (*t.Conversation, error) {
	var conv t.Conversation
	var id, creator, user int64
	err := row.Scan(&id, &conv.CreatedAt, &conv.UpdatedAt, &conv.Name, &creator, &user,
		&conv.CreatorPinned, &conv.UserPinned, &conv.CreatorMuted, &conv.UserMuted,
		&conv.LockedReason, &conv.TouchedAt, &conv.Preview, &conv.CreatorUnread, &conv.UserUnread)
	if err != nil {
		return nil, err
	}

	conv.SetUid(store.EncodeUid(id))
	conv.Creator = store.EncodeUid(creator).String()
	conv.User = store.EncodeUid(user).String()
	return &conv, nil
}

const convCols = "id,createdat,updatedat,name,creatorid,userid," +
	"creatorpinned,userpinned,creatormuted,usermuted," +
	"lockedreason,touchedat,preview,creatorunread,userunread"

// ConvGet loads a single conversation by name.
func (a *adapter) ConvGet(name string) (*t.Conversation, error) {
	conv, err := a.convScan(a.db.QueryRowx(
		"SELECT "+convCols+" FROM conversations WHERE name=?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ConvGetAll loads conversations the given user is a participant of, most
// recently touched first.
func (a *adapter) ConvGetAll(uid t.Uid, limit int) ([]t.Conversation, error) {
	if limit <= 0 || limit > a.maxResults {
		limit = a.maxResults
	}

	decUid := store.DecodeUid(uid)
	rows, err := a.db.Queryx(
		"SELECT "+convCols+" FROM conversations WHERE creatorid=? OR userid=? "+
			"ORDER BY touchedat DESC LIMIT ?",
		decUid, decUid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []t.Conversation
	for rows.Next() {
		conv, err := a.convScan(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// ConvUpdate updates fields of a conversation record.
func (a *adapter) ConvUpdate(name string, update map[string]any) error {
	cols, args := updateByMap(update)
	args = append(args, name)
	_, err := a.db.Exec("UPDATE conversations SET "+strings.Join(cols, ",")+" WHERE name=?", args...)
	return err
}

// ConvMarkRead resets the unread counter of the given participant.
func (a *adapter) ConvMarkRead(name string, uid t.Uid) error {
	decUid := store.DecodeUid(uid)
	_, err := a.db.Exec(
		`UPDATE conversations SET updatedat=?,
			creatorunread=IF(creatorid=?,0,creatorunread),
			userunread=IF(userid=?,0,userunread)
			WHERE name=?`,
		t.TimeNow(), decUid, decUid, name)
	return err
}

// MessageSave stores a new message and updates the owning conversation's
// denormalized state in the same transaction: preview, touch timestamp and
// the recipient's unread counter.
func (a *adapter) MessageSave(msg *t.Message, preview string) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var fromid int64
	if msg.From != "" {
		fromid = decodeUidString(msg.From)
	}

	if _, err = tx.Exec(
		`INSERT INTO messages(id,createdat,updatedat,convname,fromid,type,text,attachments,meta)
			VALUES(?,?,?,?,?,?,?,?,?)`,
		store.DecodeUid(msg.Uid()), msg.CreatedAt, msg.UpdatedAt, msg.Conversation,
		fromid, msg.Type, msg.Text, toJSON(msg.Attachments), toJSON(msg.Meta)); err != nil {
		return err
	}

	// The unread counter of the participant other than the sender goes up.
	if _, err = tx.Exec(
		`UPDATE conversations SET updatedat=?,touchedat=?,preview=?,
			creatorunread=creatorunread+IF(creatorid=?,0,1),
			userunread=userunread+IF(userid=?,0,1)
			WHERE name=?`,
		msg.CreatedAt, msg.CreatedAt, preview, fromid, fromid, msg.Conversation); err != nil {
		return err
	}

	return tx.Commit()
}

func (a *adapter) messageScan(row sqlx.ColScanner) (*t.Message, error) {
	var msg t.Message
	var id, fromid int64
	var text sql.NullString
	var attachments, meta, reactions []byte
	err := row.Scan(&id, &msg.CreatedAt, &msg.UpdatedAt, &fromid, &msg.Type, &text,
		&attachments, &meta, &msg.Edited, &msg.Deleted, &reactions)
	if err != nil {
		return nil, err
	}

	msg.SetUid(store.EncodeUid(id))
	if fromid != 0 {
		msg.From = store.EncodeUid(fromid).String()
	}
	msg.Text = text.String
	if len(attachments) > 0 {
		json.Unmarshal(attachments, &msg.Attachments)
	}
	if len(meta) > 0 {
		json.Unmarshal(meta, &msg.Meta)
	}
	if len(reactions) > 0 {
		json.Unmarshal(reactions, &msg.Reactions)
	}
	return &msg, nil
}

const messageCols = "id,createdat,updatedat,fromid,type,text,attachments,meta,edited,deleted,reactions"

// MessageGet loads a single message by conversation and id.
func (a *adapter) MessageGet(conv string, id t.Uid) (*t.Message, error) {
	msg, err := a.messageScan(a.db.QueryRowx(
		"SELECT "+messageCols+" FROM messages WHERE convname=? AND id=?",
		conv, store.DecodeUid(id)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.Conversation = conv
	return msg, nil
}

// MessageGetAll returns messages of a conversation in ascending display
// order: the newest page when no cursor is given, otherwise the page
// strictly older than the cursor.
func (a *adapter) MessageGetAll(conv string, opts *t.BrowseOpt) ([]t.Message, error) {
	limit := a.maxResults
	var before time.Time
	var beforeId int64
	if opts != nil {
		if opts.Limit > 0 && opts.Limit < limit {
			limit = opts.Limit
		}
		if !opts.Before.IsZero() {
			before = opts.Before
			beforeId = store.DecodeUid(opts.BeforeId)
		}
	}

	var rows *sqlx.Rows
	var err error
	if before.IsZero() {
		rows, err = a.db.Queryx(
			"SELECT "+messageCols+" FROM messages WHERE convname=? "+
				"ORDER BY createdat DESC,id DESC LIMIT ?",
			conv, limit)
	} else {
		rows, err = a.db.Queryx(
			"SELECT "+messageCols+" FROM messages WHERE convname=? "+
				"AND (createdat<? OR (createdat=? AND id<?)) "+
				"ORDER BY createdat DESC,id DESC LIMIT ?",
			conv, before, before, beforeId, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []t.Message
	for rows.Next() {
		msg, err := a.messageScan(rows)
		if err != nil {
			return nil, err
		}
		msg.Conversation = conv
		msgs = append(msgs, *msg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the sake of LIMIT; flip to display order.
	t.SortMessages(msgs)
	return msgs, nil
}

// MessageUpdate updates the stored message: edits, soft deletes, reaction
// changes.
func (a *adapter) MessageUpdate(conv string, id t.Uid, update map[string]any) error {
	cols, args := updateByMap(update)
	args = append(args, conv, store.DecodeUid(id))
	_, err := a.db.Exec("UPDATE messages SET "+strings.Join(cols, ",")+
		" WHERE convname=? AND id=?", args...)
	return err
}

// Device management for push notifications.

func deviceHasher(deviceID string) string {
	// Generate custom key as [64-bit hash of device id] to ensure predictable
	// length of the key.
	hasher := fnv.New64()
	hasher.Write([]byte(deviceID))
	return strconv.FormatUint(hasher.Sum64(), 16)
}

// DeviceUpsert creates or updates a device record.
func (a *adapter) DeviceUpsert(uid t.Uid, def *t.DeviceDef) error {
	hash := deviceHasher(def.DeviceId)

	_, err := a.db.Exec(
		`INSERT INTO devices(userid,hash,deviceid,platform,lastseen,lang) VALUES(?,?,?,?,?,?)
			ON DUPLICATE KEY UPDATE
			userid=VALUES(userid),deviceid=VALUES(deviceid),platform=VALUES(platform),
			lastseen=VALUES(lastseen),lang=VALUES(lang)`,
		store.DecodeUid(uid), hash, def.DeviceId, def.Platform, def.LastSeen, def.Lang)
	return err
}

// DeviceGetAll returns all devices for a given set of users.
func (a *adapter) DeviceGetAll(uids ...t.Uid) (map[t.Uid][]t.DeviceDef, int, error) {
	ids := make([]any, len(uids))
	for i, id := range uids {
		ids[i] = store.DecodeUid(id)
	}

	query, args, err := sqlx.In(
		"SELECT userid,deviceid,platform,lastseen,lang FROM devices WHERE userid IN (?)", ids)
	if err != nil {
		return nil, 0, err
	}

	rows, err := a.db.Queryx(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var device struct {
		Userid   int64
		Deviceid string
		Platform string
		Lastseen time.Time
		Lang     string
	}

	result := make(map[t.Uid][]t.DeviceDef)
	count := 0
	for rows.Next() {
		if err = rows.StructScan(&device); err != nil {
			return nil, 0, err
		}
		uid := store.EncodeUid(device.Userid)
		result[uid] = append(result[uid], t.DeviceDef{
			DeviceId: device.Deviceid,
			Platform: device.Platform,
			LastSeen: device.Lastseen,
			Lang:     device.Lang,
		})
		count++
	}
	return result, count, rows.Err()
}

// DeviceDelete deletes a device record: all of the user's devices if
// deviceID is blank.
func (a *adapter) DeviceDelete(uid t.Uid, deviceID string) error {
	var err error
	if deviceID == "" {
		_, err = a.db.Exec("DELETE FROM devices WHERE userid=?", store.DecodeUid(uid))
	} else {
		_, err = a.db.Exec("DELETE FROM devices WHERE userid=? AND hash=?",
			store.DecodeUid(uid), deviceHasher(deviceID))
	}
	return err
}

// File upload records.

// FileStartUpload initializes a record of a new file upload.
func (a *adapter) FileStartUpload(fd *t.FileDef) error {
	var user any
	if fd.User != "" {
		user = decodeUidString(fd.User)
	}
	_, err := a.db.Exec(
		"INSERT INTO fileuploads(id,createdat,updatedat,userid,status,mimetype,size,location) "+
			"VALUES(?,?,?,?,?,?,?,?)",
		store.DecodeUid(fd.Uid()), fd.CreatedAt, fd.UpdatedAt, user,
		fd.Status, fd.MimeType, fd.Size, fd.Location)
	return err
}

// FileFinishUpload marks the upload as completed or failed.
func (a *adapter) FileFinishUpload(fd *t.FileDef, success bool, size int64) (*t.FileDef, error) {
	now := t.TimeNow()
	if success {
		if _, err := a.db.Exec("UPDATE fileuploads SET updatedat=?,status=?,size=? WHERE id=?",
			now, t.UploadCompleted, size, store.DecodeUid(fd.Uid())); err != nil {
			return nil, err
		}
		fd.Status = t.UploadCompleted
		fd.Size = size
	} else {
		if _, err := a.db.Exec("UPDATE fileuploads SET updatedat=?,status=? WHERE id=?",
			now, t.UploadFailed, store.DecodeUid(fd.Uid())); err != nil {
			return nil, err
		}
		fd.Status = t.UploadFailed
	}
	fd.UpdatedAt = now

	return fd, nil
}

// FileGet fetches a record of a specific file.
func (a *adapter) FileGet(fid string) (*t.FileDef, error) {
	id := t.ParseUid(fid)
	if id.IsZero() {
		return nil, t.ErrMalformed
	}

	var fd t.FileDef
	var decId, userid int64
	err := a.db.QueryRowx(
		"SELECT id,createdat,updatedat,userid,status,mimetype,size,location "+
			"FROM fileuploads WHERE id=?", store.DecodeUid(id)).
		Scan(&decId, &fd.CreatedAt, &fd.UpdatedAt, &userid, &fd.Status, &fd.MimeType, &fd.Size, &fd.Location)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fd.SetUid(store.EncodeUid(decId))
	if userid != 0 {
		fd.User = store.EncodeUid(userid).String()
	}
	return &fd, nil
}

// FileDeleteUnused deletes records of failed or abandoned uploads older than
// the given time. Returns the locations of the deleted files.
func (a *adapter) FileDeleteUnused(olderThan time.Time, limit int) ([]string, error) {
	if limit <= 0 || limit > a.maxResults {
		limit = a.maxResults
	}

	tx, err := a.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.Queryx(
		"SELECT id,location FROM fileuploads WHERE status!=? AND updatedat<? LIMIT ?",
		t.UploadCompleted, olderThan, limit)
	if err != nil {
		return nil, err
	}

	var ids []any
	var locations []string
	for rows.Next() {
		var id int64
		var loc string
		if err = rows.Scan(&id, &loc); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		if loc != "" {
			locations = append(locations, loc)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		query, args, _ := sqlx.In("DELETE FROM fileuploads WHERE id IN (?)", ids)
		if _, err = tx.Exec(query, args...); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return locations, nil
}

// Helper functions.

// isDupe checks if the error is the result of a duplicate key.
func isDupe(err error) bool {
	if err == nil {
		return false
	}
	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1062
}

func isMissingDb(err error) bool {
	if err == nil {
		return false
	}
	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1049
}

// Convert to JSON before storing to JSON field.
func toJSON(src any) []byte {
	if src == nil {
		return nil
	}

	jval, _ := json.Marshal(src)
	return jval
}

// Deserialize JSON data from DB.
func fromJSON(src any) any {
	if src == nil {
		return nil
	}
	if bb, ok := src.([]byte); ok {
		var out any
		json.Unmarshal(bb, &out)
		return out
	}
	return nil
}

// decodeUidString converts a string representation of Uid to int64 for
// storing to the database.
func decodeUidString(str string) int64 {
	return store.DecodeUid(t.ParseUid(str))
}

// updateByMap converts a Go field map to SQL columns and arguments and
// serializes the values which live in JSON columns.
func updateByMap(update map[string]any) (cols []string, args []any) {
	for col, arg := range update {
		col = strings.ToLower(col)
		switch col {
		case "public", "attachments", "meta", "reactions":
			arg = toJSON(arg)
		}
		cols = append(cols, col+"=?")
		args = append(args, arg)
	}
	return
}

func init() {
	store.RegisterAdapter(&adapter{})
}
