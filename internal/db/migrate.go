package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
)

// Migrate creates or updates the schema for every model.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.ModerationRule{},
		&models.ModerationAction{},
	)
}
