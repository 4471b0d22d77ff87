package mysql

import (
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

func init() {
	var ug types.UidGenerator
	if err := ug.Init(1, []byte("uid-test-key-123")); err != nil {
		panic(err)
	}
	store.SetTestUidGenerator(ug)
}

func newTestAdapter(t *testing.T) (*adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal("failed to create sqlmock:", err)
	}
	t.Cleanup(func() { db.Close() })

	return &adapter{db: sqlx.NewDb(db, "mysql"), maxResults: defaultMaxResults}, mock
}

func TestGrantGet(t *testing.T) {
	a, mock := newTestAdapter(t)

	sub := store.EncodeUid(1001)
	cre := store.EncodeUid(2002)
	now := types.TimeNow()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,createdat,updatedat,subscriber,creator,kind,expiresat FROM grants")).
		WithArgs(int64(1001), int64(2002), "messaging_access").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "createdat", "updatedat", "subscriber", "creator", "kind", "expiresat"}).
			AddRow(int64(55), now, now, int64(1001), int64(2002), "messaging_access", expires))

	grant, err := a.GrantGet(sub, cre, types.GrantMessagingAccess)
	if err != nil {
		t.Fatal("GrantGet failed:", err)
	}
	if grant == nil {
		t.Fatal("expected a grant, got nil")
	}
	if grant.Subscriber != sub.String() || grant.Creator != cre.String() {
		t.Errorf("participants mangled: got %s/%s", grant.Subscriber, grant.Creator)
	}
	if grant.Kind != types.GrantMessagingAccess {
		t.Errorf("wrong kind: %s", grant.Kind)
	}
	if !grant.ExpiresAt.Equal(expires) {
		t.Errorf("wrong expiration: %v", grant.ExpiresAt)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGrantGetMissing(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM grants")).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "createdat", "updatedat", "subscriber", "creator", "kind", "expiresat"}))

	grant, err := a.GrantGet(store.EncodeUid(1), store.EncodeUid(2), types.GrantContentAccess)
	if err != nil {
		t.Fatal("GrantGet failed:", err)
	}
	if grant != nil {
		t.Errorf("expected nil grant, got %+v", grant)
	}
}

func TestAuthAddRecordDuplicate(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth")).
		WillReturnError(&ms.MySQLError{Number: 1062})

	err := a.AuthAddRecord(store.EncodeUid(1001), "basic", "alice", 20,
		[]byte("secret"), time.Time{})
	if err != types.ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestConvCreateDuplicate(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
		WillReturnError(&ms.MySQLError{Number: 1062})

	conv := &types.Conversation{
		Name:    "cnvAAAABBBBCCCCDDDDEEEE0",
		Creator: store.EncodeUid(2002).String(),
		User:    store.EncodeUid(1001).String(),
	}
	conv.SetUid(store.EncodeUid(77))
	conv.InitTimes()
	conv.TouchedAt = conv.CreatedAt

	if err := a.ConvCreate(conv); err != types.ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestMessageSave(t *testing.T) {
	a, mock := newTestAdapter(t)

	from := store.EncodeUid(2002)
	msg := &types.Message{
		Conversation: "cnvAAAABBBBCCCCDDDDEEEE0",
		From:         from.String(),
		Text:         "hello there",
	}
	msg.SetUid(store.EncodeUid(9001))
	msg.InitTimes()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(int64(9001), msg.CreatedAt, msg.UpdatedAt, msg.Conversation,
			int64(2002), "", "hello there", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET")).
		WithArgs(msg.CreatedAt, msg.CreatedAt, "hello there", int64(2002), int64(2002),
			msg.Conversation).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := a.MessageSave(msg, "hello there"); err != nil {
		t.Fatal("MessageSave failed:", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUserDeleteHardCascade(t *testing.T) {
	a, mock := newTestAdapter(t)

	uid := store.EncodeUid(2002)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth")).
		WithArgs(int64(2002)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM devices")).
		WithArgs(int64(2002)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grants")).
		WithArgs(int64(2002), int64(2002)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE m FROM messages")).
		WithArgs(int64(2002), int64(2002)).WillReturnResult(sqlmock.NewResult(0, 40))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM conversations")).
		WithArgs(int64(2002), int64(2002)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs(int64(2002)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := a.UserDelete(uid, true); err != nil {
		t.Fatal("UserDelete failed:", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUserDeleteSoft(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs(sqlmock.AnyArg(), types.StateDeleted, sqlmock.AnyArg(), int64(2002)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := a.UserDelete(store.EncodeUid(2002), false); err != nil {
		t.Fatal("UserDelete failed:", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMessageSaveRollback(t *testing.T) {
	a, mock := newTestAdapter(t)

	msg := &types.Message{Conversation: "cnvAAAABBBBCCCCDDDDEEEE0", From: store.EncodeUid(1).String()}
	msg.SetUid(store.EncodeUid(9002))
	msg.InitTimes()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(&ms.MySQLError{Number: 1406})
	mock.ExpectRollback()

	if err := a.MessageSave(msg, ""); err == nil {
		t.Fatal("expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func messageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "createdat", "updatedat", "fromid", "type", "text",
		"attachments", "meta", "edited", "deleted", "reactions"})
}

func TestMessageGetAllOrder(t *testing.T) {
	a, mock := newTestAdapter(t)

	base := types.TimeNow()
	// Rows arrive newest first, as the query orders them.
	rows := messageRows().
		AddRow(int64(3), base.Add(2*time.Second), base.Add(2*time.Second), int64(2002), "", "third",
			nil, nil, false, false, nil).
		AddRow(int64(2), base.Add(time.Second), base.Add(time.Second), int64(1001), "", "second",
			nil, nil, false, false, nil).
		AddRow(int64(1), base, base, int64(2002), "", "first", nil, nil, false, false, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE convname=?")).
		WithArgs("cnvAAAABBBBCCCCDDDDEEEE0", 24).
		WillReturnRows(rows)

	msgs, err := a.MessageGetAll("cnvAAAABBBBCCCCDDDDEEEE0", &types.BrowseOpt{Limit: 24})
	if err != nil {
		t.Fatal("MessageGetAll failed:", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Must come back in ascending display order.
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Text != want {
			t.Errorf("message %d: expected %q, got %q", i, want, msgs[i].Text)
		}
	}
	if msgs[0].From != store.EncodeUid(2002).String() {
		t.Errorf("wrong sender: %s", msgs[0].From)
	}
}

func TestMessageGetAllCursor(t *testing.T) {
	a, mock := newTestAdapter(t)

	before := types.TimeNow()
	beforeId := store.EncodeUid(500)

	mock.ExpectQuery(regexp.QuoteMeta("AND (createdat<? OR (createdat=? AND id<?))")).
		WithArgs("cnvAAAABBBBCCCCDDDDEEEE0", before, before, int64(500), 24).
		WillReturnRows(messageRows())

	msgs, err := a.MessageGetAll("cnvAAAABBBBCCCCDDDDEEEE0",
		&types.BrowseOpt{Before: before, BeforeId: beforeId, Limit: 24})
	if err != nil {
		t.Fatal("MessageGetAll failed:", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMessageGetAttachments(t *testing.T) {
	a, mock := newTestAdapter(t)

	now := types.TimeNow()
	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE convname=? AND id=?")).
		WithArgs("cnvAAAABBBBCCCCDDDDEEEE0", int64(42)).
		WillReturnRows(messageRows().
			AddRow(int64(42), now, now, int64(1001), "", "look",
				[]byte(`[{"type":"image","url":"https://cdn.example.com/a.jpg","width":640,"height":480}]`),
				nil, false, false,
				[]byte(`[{"user":"usr123","emoji":"❤️","at":"2026-08-30T10:00:00Z"}]`)))

	msg, err := a.MessageGet("cnvAAAABBBBCCCCDDDDEEEE0", store.EncodeUid(42))
	if err != nil {
		t.Fatal("MessageGet failed:", err)
	}
	if msg == nil {
		t.Fatal("expected a message, got nil")
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Url != "https://cdn.example.com/a.jpg" {
		t.Errorf("attachments not decoded: %+v", msg.Attachments)
	}
	if msg.Attachments[0].Width != 640 {
		t.Errorf("wrong width: %d", msg.Attachments[0].Width)
	}
	if len(msg.Reactions) != 1 || msg.Reactions[0].Emoji != "❤️" {
		t.Errorf("reactions not decoded: %+v", msg.Reactions)
	}
}

func TestConvMarkRead(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta("creatorunread=IF(creatorid=?,0,creatorunread)")).
		WithArgs(sqlmock.AnyArg(), int64(1001), int64(1001), "cnvAAAABBBBCCCCDDDDEEEE0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := a.ConvMarkRead("cnvAAAABBBBCCCCDDDDEEEE0", store.EncodeUid(1001)); err != nil {
		t.Fatal("ConvMarkRead failed:", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestConvGet(t *testing.T) {
	a, mock := newTestAdapter(t)

	now := types.TimeNow()
	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations WHERE name=?")).
		WithArgs("cnvAAAABBBBCCCCDDDDEEEE0").
		WillReturnRows(sqlmock.NewRows([]string{"id", "createdat", "updatedat", "name",
			"creatorid", "userid", "creatorpinned", "userpinned", "creatormuted", "usermuted",
			"lockedreason", "touchedat", "preview", "creatorunread", "userunread"}).
			AddRow(int64(77), now, now, "cnvAAAABBBBCCCCDDDDEEEE0", int64(2002), int64(1001),
				true, false, false, true, "admin_blocked", now, "last words", 0, 3))

	conv, err := a.ConvGet("cnvAAAABBBBCCCCDDDDEEEE0")
	if err != nil {
		t.Fatal("ConvGet failed:", err)
	}
	if conv == nil {
		t.Fatal("expected a conversation, got nil")
	}
	if conv.Creator != store.EncodeUid(2002).String() {
		t.Errorf("wrong creator: %s", conv.Creator)
	}
	if !conv.CreatorPinned || conv.UserPinned {
		t.Error("pinned flags mixed up")
	}
	if conv.LockedReason != types.LockAdminBlocked {
		t.Errorf("wrong lock reason: %q", conv.LockedReason)
	}
	if conv.UserUnread != 3 {
		t.Errorf("wrong unread count: %d", conv.UserUnread)
	}
}

func TestMessageUpdateSerialization(t *testing.T) {
	a, mock := newTestAdapter(t)

	reactions := []types.Reaction{{User: "usr123", Emoji: "👍", CreatedAt: types.TimeNow()}}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE messages SET reactions=?")).
		WithArgs(toJSON(reactions), "cnvAAAABBBBCCCCDDDDEEEE0", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.MessageUpdate("cnvAAAABBBBCCCCDDDDEEEE0", store.EncodeUid(42),
		map[string]any{"Reactions": reactions})
	if err != nil {
		t.Fatal("MessageUpdate failed:", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFileDeleteUnused(t *testing.T) {
	a, mock := newTestAdapter(t)

	olderThan := types.TimeNow().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,location FROM fileuploads")).
		WithArgs(1, olderThan, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "location"}).
			AddRow(int64(11), "uploads/aa").
			AddRow(int64(12), "uploads/bb"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fileuploads WHERE id IN")).
		WithArgs(int64(11), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	locations, err := a.FileDeleteUnused(olderThan, 100)
	if err != nil {
		t.Fatal("FileDeleteUnused failed:", err)
	}
	if len(locations) != 2 || locations[0] != "uploads/aa" || locations[1] != "uploads/bb" {
		t.Errorf("wrong locations: %v", locations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateByMap(t *testing.T) {
	cols, args := updateByMap(map[string]any{"Edited": true})
	if len(cols) != 1 || cols[0] != "edited=?" {
		t.Errorf("wrong columns: %v", cols)
	}
	if len(args) != 1 || args[0] != true {
		t.Errorf("wrong args: %v", args)
	}

	cols, args = updateByMap(map[string]any{"Attachments": []types.Attachment{}})
	if cols[0] != "attachments=?" {
		t.Errorf("wrong column: %v", cols)
	}
	if _, ok := args[0].([]byte); !ok {
		t.Errorf("attachments not serialized: %T", args[0])
	}
}

func TestIsDupe(t *testing.T) {
	if isDupe(nil) {
		t.Error("nil is not a dupe")
	}
	if isDupe(&ms.MySQLError{Number: 1049}) {
		t.Error("1049 is not a dupe")
	}
	if !isDupe(&ms.MySQLError{Number: 1062}) {
		t.Error("1062 is a dupe")
	}
}
