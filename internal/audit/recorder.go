// Package audit records moderation audit entries as a cross-cutting concern.
// Recording happens after the primary mutation has committed, so an audit
// write failure can never be confused with a business-rule failure.
package audit

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
)

// Entry describes one audit event before persistence.
type Entry struct {
	WorkspaceID uint64 // Tenant scope.
	ActorID     uint64 // Acting user; 0 for machine callers.
	ActionType  string // Audit action category.
	RuleID      *uint64 // Affected rule, when single.
	Before      any    // Snapshot prior to the mutation.
	After       any    // Snapshot after the mutation.
	Metadata    any    // Free-form context.
}

// Recorder persists audit entries.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record writes one audit entry. Failures are logged and swallowed; callers
// must not treat a lost audit entry as a failed mutation.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.db == nil {
		return
	}
	row := models.ModerationAction{
		WorkspaceID: entry.WorkspaceID,
		ActorID:     entry.ActorID,
		ActionType:  entry.ActionType,
		RuleID:      entry.RuleID,
		Before:      marshalSnapshot(entry.Before),
		After:       marshalSnapshot(entry.After),
		Metadata:    marshalSnapshot(entry.Metadata),
	}
	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithFields(log.Fields{
			"workspace_id": entry.WorkspaceID,
			"action_type":  entry.ActionType,
		}).Error("record audit entry failed")
	}
}

// marshalSnapshot encodes a snapshot value as JSON, or nil when absent.
func marshalSnapshot(value any) datatypes.JSON {
	if value == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).Warn("encode audit snapshot failed")
		return nil
	}
	return datatypes.JSON(encoded)
}
