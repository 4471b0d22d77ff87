package main

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/RinKhimera/fantribe-messenger/server/store/mock_store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

var (
	permCreator    = types.Uid(1001)
	permSubscriber = types.Uid(2002)
)

func permConv(lockedReason string) *types.Conversation {
	return &types.Conversation{
		Name:         permCreator.ConvName(permSubscriber),
		Creator:      permCreator.String(),
		User:         permSubscriber.String(),
		LockedReason: lockedReason,
	}
}

func TestEvalAdminBlockAppliesToBothSides(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	// The oracle must not be consulted: the block wins over any grant.
	pe := &permEval{oracle: mock_store.NewMockGrantsPersistenceInterface(ctrl), subscriberMedia: true}

	conv := permConv(types.LockAdminBlocked)
	now := time.Now()

	for _, viewer := range []types.Uid{permCreator, permSubscriber} {
		perm, err := pe.eval(conv, viewer, now)
		if err != nil {
			t.Fatal(err)
		}
		if perm.canSend || perm.canSendMedia {
			t.Errorf("viewer %s: expected no permissions, got send=%v media=%v",
				viewer.UserId(), perm.canSend, perm.canSendMedia)
		}
		if perm.lockedReason != types.LockAdminBlocked {
			t.Errorf("viewer %s: lockedReason expected %q, got %q",
				viewer.UserId(), types.LockAdminBlocked, perm.lockedReason)
		}
	}
}

func TestEvalCreatorSendsWithoutGrant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	pe := &permEval{oracle: mock_store.NewMockGrantsPersistenceInterface(ctrl), subscriberMedia: false}

	perm, err := pe.eval(permConv(""), permCreator, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !perm.canSend || !perm.canSendMedia {
		t.Errorf("creator expected full permissions, got send=%v media=%v", perm.canSend, perm.canSendMedia)
	}
	if perm.lockedReason != "" {
		t.Errorf("creator lockedReason expected empty, got %q", perm.lockedReason)
	}
}

func TestEvalSubscriberWithActiveGrant(t *testing.T) {
	now := time.Now()

	for _, allowMedia := range []bool{true, false} {
		ctrl := gomock.NewController(t)
		m := mock_store.NewMockGrantsPersistenceInterface(ctrl)
		m.EXPECT().Active(permSubscriber, permCreator, types.GrantMessagingAccess, now).Return(true, nil)
		pe := &permEval{oracle: m, subscriberMedia: allowMedia}

		perm, err := pe.eval(permConv(""), permSubscriber, now)
		if err != nil {
			t.Fatal(err)
		}
		if !perm.canSend {
			t.Error("subscriber with active grant expected to send")
		}
		if perm.canSendMedia != allowMedia {
			t.Errorf("canSendMedia expected %v, got %v", allowMedia, perm.canSendMedia)
		}
		ctrl.Finish()
	}
}

func TestEvalSubscriberWithLapsedGrant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	now := time.Now()

	m := mock_store.NewMockGrantsPersistenceInterface(ctrl)
	m.EXPECT().Active(permSubscriber, permCreator, types.GrantMessagingAccess, now).Return(false, nil)
	pe := &permEval{oracle: m, subscriberMedia: true}

	perm, err := pe.eval(permConv(""), permSubscriber, now)
	if err != nil {
		t.Fatal(err)
	}
	if perm.canSend {
		t.Error("subscriber with lapsed grant must not send")
	}
	if perm.lockedReason != types.LockNoSubscription {
		t.Errorf("lockedReason expected %q, got %q", types.LockNoSubscription, perm.lockedReason)
	}
}

func TestEvalOracleFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	now := time.Now()
	boom := errors.New("db gone")

	m := mock_store.NewMockGrantsPersistenceInterface(ctrl)
	m.EXPECT().Active(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, boom)
	pe := &permEval{oracle: m, subscriberMedia: true}

	if _, err := pe.eval(permConv(""), permSubscriber, now); !errors.Is(err, boom) {
		t.Errorf("expected oracle error to propagate, got %v", err)
	}
}

func TestCheckRejectsOutsiders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	pe := &permEval{oracle: mock_store.NewMockGrantsPersistenceInterface(ctrl), subscriberMedia: true}
	conv := permConv("")
	now := time.Now()

	if err := pe.check(conv, types.ZeroUid, false, now); err != types.ErrNotAuthenticated {
		t.Errorf("zero uid: expected ErrNotAuthenticated, got %v", err)
	}
	if err := pe.check(conv, types.Uid(9999), false, now); err != types.ErrNotParticipant {
		t.Errorf("outsider: expected ErrNotParticipant, got %v", err)
	}
}

func TestCheckLockedConversation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	pe := &permEval{oracle: mock_store.NewMockGrantsPersistenceInterface(ctrl), subscriberMedia: true}

	if err := pe.check(permConv(types.LockAdminBlocked), permCreator, false, time.Now()); err != types.ErrLocked {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestCheckMediaGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	now := time.Now()

	m := mock_store.NewMockGrantsPersistenceInterface(ctrl)
	m.EXPECT().Active(permSubscriber, permCreator, types.GrantMessagingAccess, now).Return(true, nil).Times(2)
	pe := &permEval{oracle: m, subscriberMedia: false}
	conv := permConv("")

	// Plain text is fine, attaching media is not.
	if err := pe.check(conv, permSubscriber, false, now); err != nil {
		t.Errorf("text message: expected no error, got %v", err)
	}
	if err := pe.check(conv, permSubscriber, true, now); err != types.ErrPermissionDenied {
		t.Errorf("media message: expected ErrPermissionDenied, got %v", err)
	}
}

func TestCheckReadWhileLocked(t *testing.T) {
	pe := &permEval{subscriberMedia: false}
	conv := permConv(types.LockAdminBlocked)

	if err := pe.checkRead(conv, permSubscriber); err != nil {
		t.Errorf("participants may read locked conversations, got %v", err)
	}
	if err := pe.checkRead(conv, types.Uid(9999)); err != types.ErrNotParticipant {
		t.Errorf("outsider: expected ErrNotParticipant, got %v", err)
	}
}
