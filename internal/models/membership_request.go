package models

import "github.com/google/uuid"

type RequestKind string

const (
	RequestKindInvite RequestKind = "invite"
	RequestKindJoin   RequestKind = "join_request"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// MembershipRequest is a pending or rejected proposal to add a user to a
// family, either admin-initiated (invite) or user-initiated (join_request).
// The unique index spans (family, user, kind) regardless of status: approved
// rows are deleted on conversion and rejected rows are flipped back to
// pending on resend, so at most one row per pair and kind ever exists.
type MembershipRequest struct {
	BaseModel
	FamilyID uuid.UUID     `json:"familyID" gorm:"type:uuid;not null;index;uniqueIndex:idx_family_user_kind"`
	UserID   uuid.UUID     `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_family_user_kind"`
	Kind     RequestKind   `json:"kind" gorm:"type:varchar(20);not null;uniqueIndex:idx_family_user_kind"`
	Status   RequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Family   Family        `json:"-" gorm:"foreignKey:FamilyID"`
	User     User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (r *MembershipRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// OppositeKind returns the request kind that completes a mutual match.
func (k RequestKind) OppositeKind() RequestKind {
	if k == RequestKindInvite {
		return RequestKindJoin
	}
	return RequestKindInvite
}
