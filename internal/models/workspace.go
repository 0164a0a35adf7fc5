package models

import "time"

// Workspace roles ordered by privilege. OWNER and ADMIN are treated
// equivalently for moderation management.
const (
	// RoleOwner is granted to the workspace creator.
	RoleOwner = "OWNER"
	// RoleAdmin may manage moderation rules.
	RoleAdmin = "ADMIN"
	// RoleMember has read-only access.
	RoleMember = "MEMBER"
)

// Workspace is the tenant-isolation boundary; every rule and audit entry is
// scoped to one workspace.
type Workspace struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null"` // Display name.
	Slug string `gorm:"type:text;uniqueIndex"` // URL-safe identifier.

	OwnerID uint64 `gorm:"not null;index"` // Creating user.

	EvaluationKey string `gorm:"type:text;index"` // Key machine callers present to the evaluation endpoint.

	Owner User `gorm:"foreignKey:OwnerID"` // Owner relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// WorkspaceMember links a user to a workspace with a role.
type WorkspaceMember struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID uint64 `gorm:"not null;uniqueIndex:idx_workspace_user"` // Workspace scope.
	UserID      uint64 `gorm:"not null;uniqueIndex:idx_workspace_user"` // Member user.

	Role string `gorm:"type:varchar(32);not null;default:'MEMBER'"` // OWNER, ADMIN or MEMBER.

	Workspace Workspace `gorm:"foreignKey:WorkspaceID"` // Workspace relation.
	User      User      `gorm:"foreignKey:UserID"`      // User relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
