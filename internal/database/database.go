package database

import (
	"fmt"

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/config"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema. The membership and request uniqueness rules
// live in the model tags; the role and status value sets are enforced here
// with check constraints because gorm cannot express them.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Family{},
		&models.FamilyMembership{},
		&models.MembershipRequest{},
		&models.FamilyBudget{},
		&models.BudgetSurplus{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'membership_role_check'
  ) THEN
    ALTER TABLE family_memberships
    ADD CONSTRAINT membership_role_check
    CHECK (role IN ('admin', 'leader', 'member'));
  END IF;

  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'request_status_check'
  ) THEN
    ALTER TABLE membership_requests
    ADD CONSTRAINT request_status_check
    CHECK (status IN ('pending', 'approved', 'rejected'));
  END IF;
END $$;`

	return db.Exec(constraint).Error
}
