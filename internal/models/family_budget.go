package models

import "github.com/google/uuid"

type BudgetStatus string

const (
	BudgetStatusSpending BudgetStatus = "spending"
	BudgetStatusSettled  BudgetStatus = "settled"
)

// FamilyBudget is owned by the downstream budgeting module; this engine only
// gates the settled -> spending transition (revert_budget).
type FamilyBudget struct {
	BaseModel
	FamilyID  uuid.UUID       `json:"familyID" gorm:"type:uuid;not null;index;uniqueIndex:idx_family_month"`
	Month     string          `json:"month" gorm:"type:varchar(7);not null;uniqueIndex:idx_family_month"`
	Status    BudgetStatus    `json:"status" gorm:"type:varchar(20);not null;default:'spending'"`
	Family    Family          `json:"-" gorm:"foreignKey:FamilyID"`
	Surpluses []BudgetSurplus `json:"-" gorm:"foreignKey:BudgetID"`
}

// BudgetSurplus is a settlement side-record distributed to a member when a
// budget settles. Reverting the budget purges these before the status flips.
type BudgetSurplus struct {
	BaseModel
	BudgetID uuid.UUID `json:"budgetID" gorm:"type:uuid;not null;index"`
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	Amount   int64     `json:"amount" gorm:"not null"`
}

func (BudgetSurplus) TableName() string {
	return "budget_surpluses"
}
