package models

import "github.com/google/uuid"

type FamilyRole string

const (
	FamilyRoleAdmin  FamilyRole = "admin"
	FamilyRoleLeader FamilyRole = "leader"
	FamilyRoleMember FamilyRole = "member"
)

// CanManage reports whether the role may invite users and approve join requests.
func (r FamilyRole) CanManage() bool {
	return r == FamilyRoleAdmin || r == FamilyRoleLeader
}

// FamilyMembership ties a user to their family. The unique index on UserID is
// the schema-level form of the single-family invariant: a user holds at most
// one membership system-wide, and a racing second insert fails as a conflict.
type FamilyMembership struct {
	BaseModel
	UserID   uuid.UUID  `json:"userID" gorm:"type:uuid;not null;uniqueIndex"`
	FamilyID uuid.UUID  `json:"familyID" gorm:"type:uuid;not null;index"`
	Role     FamilyRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	User     User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Family   Family     `json:"-" gorm:"foreignKey:FamilyID"`
}
