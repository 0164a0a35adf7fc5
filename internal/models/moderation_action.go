package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit action type values recorded in ModerationAction entries.
const (
	// AuditRuleCreated records a rule creation.
	AuditRuleCreated = "RULE_CREATED"
	// AuditRuleTested records a single-rule test run.
	AuditRuleTested = "RULE_TESTED"
	// AuditRulesSimulated records a workspace simulation run.
	AuditRulesSimulated = "RULES_SIMULATED"
	// AuditBulkUpdate records a bulk active-state toggle.
	AuditBulkUpdate = "BULK_UPDATE"
	// AuditBulkPriorityUpdate records a bulk priority reorder.
	AuditBulkPriorityUpdate = "BULK_PRIORITY_UPDATE"
	// AuditRuleTriggered records a live evaluation trigger.
	AuditRuleTriggered = "RULE_TRIGGERED"
)

// ModerationAction is an audit log entry for every rule mutation, test,
// simulation and live trigger within a workspace.
type ModerationAction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID uint64 `gorm:"not null;index"`                  // Tenant scope.
	ActorID     uint64 `gorm:"not null;index"`                  // Acting user.
	ActionType  string `gorm:"type:varchar(64);not null;index"` // Audit action category.

	RuleID *uint64 `gorm:"index"` // Affected rule, when a single rule is involved.

	Before   datatypes.JSON `gorm:"type:jsonb"` // Snapshot prior to the mutation.
	After    datatypes.JSON `gorm:"type:jsonb"` // Snapshot after the mutation.
	Metadata datatypes.JSON `gorm:"type:jsonb"` // Free-form context.

	Actor User `gorm:"foreignKey:ActorID"` // Actor relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Entry timestamp.
}
