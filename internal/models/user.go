package models

import "time"

// User represents an account that can sign in and manage workspaces.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text"`                      // Contact email.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Active   bool `gorm:"not null;default:true"`  // Whether the account can sign in.
	Disabled bool `gorm:"not null;default:false"` // Administrative lockout flag.

	TOTPSecret string `gorm:"type:text"` // TOTP secret when MFA is enabled.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
