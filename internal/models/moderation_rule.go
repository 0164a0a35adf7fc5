package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/sociallyhub/moderation/internal/automod"
)

// ModerationRule is a persisted auto-moderation policy: conditions, actions
// and gating metadata. Rules are deactivated rather than hard-deleted.
type ModerationRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID uint64 `gorm:"not null;index"` // Tenant scope.

	Name        string `gorm:"type:text;not null"` // Display name.
	Description string `gorm:"type:text"`          // Optional description.

	IsActive bool `gorm:"not null;default:true;index"` // Whether the rule is evaluated.
	Priority int  `gorm:"not null;default:0;index"`    // Higher evaluated first; ties by creation time descending.

	TriggerType string `gorm:"type:varchar(64);not null;index"` // Detection category.

	TargetTypes    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Content types the rule applies to.
	Conditions     datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Ordered condition list.
	Actions        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Ordered action list.
	Schedule       datatypes.JSON `gorm:"type:jsonb"`                       // Optional evaluation window.
	WhitelistUsers datatypes.JSON `gorm:"type:jsonb"`                       // Exempt author IDs.
	BlacklistUsers datatypes.JSON `gorm:"type:jsonb"`                       // Author IDs the rule is narrowed to.
	ExemptRoles    datatypes.JSON `gorm:"type:jsonb"`                       // Exempt author roles.
	Metadata       datatypes.JSON `gorm:"type:jsonb"`                       // Free-form metadata.

	CooldownPeriod     int `gorm:"not null;default:0"` // Seconds between live triggers.
	MaxTriggersPerHour int `gorm:"not null;default:0"` // Hourly live-trigger cap, 0 = unlimited.

	TriggerCount    int64      `gorm:"not null;default:0"` // Lifetime live-trigger counter.
	SuccessRate     float64    `gorm:"not null;default:0"` // Externally maintained success percentage.
	LastTriggeredAt *time.Time // Most recent live trigger.

	CreatedByID uint64 `gorm:"not null;index"`        // Creating user.
	CreatedBy   User   `gorm:"foreignKey:CreatedByID"` // Creator relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Definition decodes the JSON columns into an evaluable automod definition.
func (r *ModerationRule) Definition() (automod.Definition, error) {
	def := automod.Definition{
		TriggerType:        automod.TriggerType(r.TriggerType),
		CooldownPeriod:     r.CooldownPeriod,
		MaxTriggersPerHour: r.MaxTriggersPerHour,
	}
	for _, column := range []struct {
		raw  datatypes.JSON
		dest any
	}{
		{r.TargetTypes, &def.TargetTypes},
		{r.Conditions, &def.Conditions},
		{r.Actions, &def.Actions},
		{r.WhitelistUsers, &def.WhitelistUsers},
		{r.BlacklistUsers, &def.BlacklistUsers},
		{r.ExemptRoles, &def.ExemptRoles},
	} {
		if len(column.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(column.raw, column.dest); err != nil {
			return automod.Definition{}, err
		}
	}
	if len(r.Schedule) > 0 && string(r.Schedule) != "null" {
		var schedule automod.Schedule
		if err := json.Unmarshal(r.Schedule, &schedule); err != nil {
			return automod.Definition{}, err
		}
		def.Schedule = &schedule
	}
	return def, nil
}

// Ref pairs the rule's identity with its decoded definition for evaluation.
func (r *ModerationRule) Ref() (automod.RuleRef, error) {
	def, err := r.Definition()
	if err != nil {
		return automod.RuleRef{}, err
	}
	return automod.RuleRef{
		ID:         r.ID,
		Name:       r.Name,
		Priority:   r.Priority,
		Definition: def,
	}, nil
}
