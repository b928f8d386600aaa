package models

import "github.com/google/uuid"

type Family struct {
	BaseModel
	Name        string             `json:"name" gorm:"type:varchar(100);not null"`
	ShareCode   string             `json:"shareCode" gorm:"type:varchar(12);uniqueIndex;not null"`
	CreatedByID uuid.UUID          `json:"createdByID" gorm:"type:uuid;not null"`
	Memberships []FamilyMembership `json:"memberships,omitempty" gorm:"foreignKey:FamilyID"`
}

func (Family) TableName() string {
	return "families"
}
