package main

/******************************************************************************
 *
 *  Description :
 *
 *    Per-viewer permission evaluation for conversations.
 *
 *****************************************************************************/

import (
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// GrantOracle is the read-only view of subscription state consumed by the
// permission evaluator. Billing and renewals live elsewhere; the evaluator
// only asks whether a grant is active right now.
type GrantOracle interface {
	Active(subscriber, creator types.Uid, kind types.GrantKind, now time.Time) (bool, error)
}

// convPerm is the evaluated permission snapshot of one conversation for one
// viewer. It is never persisted: the only stored input besides the grants is
// the administrative lock on the conversation record.
type convPerm struct {
	// The viewer may send messages.
	canSend bool
	// The viewer may attach media.
	canSendMedia bool
	// Why sending is disabled, empty when canSend is true.
	lockedReason string
}

// permEval computes viewer-dependent conversation permissions.
type permEval struct {
	oracle GrantOracle
	// Subscribers may attach media when true. Creators always may.
	subscriberMedia bool
}

// newPermEval creates a permission evaluator reading grants from the store.
func newPermEval(subscriberMedia bool) *permEval {
	return &permEval{oracle: store.Grants, subscriberMedia: subscriberMedia}
}

// eval computes the permission snapshot of the conversation for the given
// viewer. The viewer must already be known to be a participant.
//
// The administrative block is checked first and disables sending for both
// participants regardless of subscription state. Otherwise the creator side
// may always send; the subscriber side needs an active messaging grant.
func (pe *permEval) eval(conv *types.Conversation, viewer types.Uid, now time.Time) (convPerm, error) {
	if conv.LockedReason == types.LockAdminBlocked {
		return convPerm{lockedReason: types.LockAdminBlocked}, nil
	}

	if viewer.String() == conv.Creator {
		return convPerm{canSend: true, canSendMedia: true}, nil
	}

	ok, err := pe.oracle.Active(viewer, types.ParseUid(conv.Creator), types.GrantMessagingAccess, now)
	if err != nil {
		return convPerm{}, err
	}
	if !ok {
		return convPerm{lockedReason: types.LockNoSubscription}, nil
	}

	return convPerm{canSend: true, canSendMedia: pe.subscriberMedia}, nil
}

// check validates the operation the viewer is attempting. Read-type
// operations only require participation; send requires an unlocked
// conversation; attaching media additionally requires the media permission.
func (pe *permEval) check(conv *types.Conversation, viewer types.Uid, wantMedia bool, now time.Time) error {
	if viewer.IsZero() {
		return types.ErrNotAuthenticated
	}
	if !conv.IsParticipant(viewer) {
		return types.ErrNotParticipant
	}

	perm, err := pe.eval(conv, viewer, now)
	if err != nil {
		return err
	}
	if !perm.canSend {
		return types.ErrLocked
	}
	if wantMedia && !perm.canSendMedia {
		return types.ErrPermissionDenied
	}
	return nil
}

// checkRead validates a read-type operation: any authenticated participant
// may read, including when the conversation is locked.
func (pe *permEval) checkRead(conv *types.Conversation, viewer types.Uid) error {
	if viewer.IsZero() {
		return types.ErrNotAuthenticated
	}
	if !conv.IsParticipant(viewer) {
		return types.ErrNotParticipant
	}
	return nil
}

// wireMsg converts the snapshot to its wire representation.
func (p convPerm) wireMsg() *MsgPermissions {
	return &MsgPermissions{
		CanSend:      p.canSend,
		CanSendMedia: p.canSendMedia,
		LockedReason: p.lockedReason,
	}
}
