package automod

import (
	"strings"
	"time"
)

// TriggerType categorizes the kind of detection a rule performs.
type TriggerType string

// Trigger type values form a closed enumeration; membership is validated at
// rule-creation time.
const (
	TriggerContentFilter     TriggerType = "CONTENT_FILTER"
	TriggerSpamDetection     TriggerType = "SPAM_DETECTION"
	TriggerUserBehavior      TriggerType = "USER_BEHAVIOR"
	TriggerRateLimit         TriggerType = "RATE_LIMIT"
	TriggerKeywordMatch      TriggerType = "KEYWORD_MATCH"
	TriggerSentimentAnalysis TriggerType = "SENTIMENT_ANALYSIS"
	TriggerLinkAnalysis      TriggerType = "LINK_ANALYSIS"
	TriggerImageAnalysis     TriggerType = "IMAGE_ANALYSIS"
)

// ConditionType selects which value is extracted from a payload.
type ConditionType string

// Condition type values.
const (
	ConditionKeyword    ConditionType = "KEYWORD"
	ConditionRegex      ConditionType = "REGEX"
	ConditionLength     ConditionType = "LENGTH"
	ConditionLinks      ConditionType = "LINKS"
	ConditionCaps       ConditionType = "CAPS"
	ConditionRepetition ConditionType = "REPETITION"
	ConditionSentiment  ConditionType = "SENTIMENT"
	ConditionLanguage   ConditionType = "LANGUAGE"
	ConditionUserAge    ConditionType = "USER_AGE"
	ConditionUserKarma  ConditionType = "USER_KARMA"
	ConditionTimeWindow ConditionType = "TIME_WINDOW"
)

// Operator compares an extracted test value against a condition value.
type Operator string

// Operator values.
const (
	OperatorEquals      Operator = "EQUALS"
	OperatorContains    Operator = "CONTAINS"
	OperatorNotContains Operator = "NOT_CONTAINS"
	OperatorStartsWith  Operator = "STARTS_WITH"
	OperatorEndsWith    Operator = "ENDS_WITH"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
	OperatorMatches     Operator = "MATCHES"
)

// ActionType names a recommended moderation response. Actions are
// recommendations only; execution stays with the caller.
type ActionType string

// Action type values.
const (
	ActionDelete           ActionType = "DELETE"
	ActionFlag             ActionType = "FLAG"
	ActionWarn             ActionType = "WARN"
	ActionSuspend          ActionType = "SUSPEND"
	ActionBan              ActionType = "BAN"
	ActionQuarantine       ActionType = "QUARANTINE"
	ActionAutoReply        ActionType = "AUTO_REPLY"
	ActionEscalate         ActionType = "ESCALATE"
	ActionNotifyModerators ActionType = "NOTIFY_MODERATORS"
	ActionLogOnly          ActionType = "LOG_ONLY"
)

// ValidTriggerType reports whether value belongs to the trigger enumeration.
func ValidTriggerType(value TriggerType) bool {
	switch value {
	case TriggerContentFilter, TriggerSpamDetection, TriggerUserBehavior,
		TriggerRateLimit, TriggerKeywordMatch, TriggerSentimentAnalysis,
		TriggerLinkAnalysis, TriggerImageAnalysis:
		return true
	}
	return false
}

// ValidConditionType reports whether value belongs to the condition enumeration.
func ValidConditionType(value ConditionType) bool {
	switch value {
	case ConditionKeyword, ConditionRegex, ConditionLength, ConditionLinks,
		ConditionCaps, ConditionRepetition, ConditionSentiment, ConditionLanguage,
		ConditionUserAge, ConditionUserKarma, ConditionTimeWindow:
		return true
	}
	return false
}

// ValidOperator reports whether value belongs to the operator enumeration.
func ValidOperator(value Operator) bool {
	switch value {
	case OperatorEquals, OperatorContains, OperatorNotContains, OperatorStartsWith,
		OperatorEndsWith, OperatorGreaterThan, OperatorLessThan, OperatorMatches:
		return true
	}
	return false
}

// ValidActionType reports whether value belongs to the action enumeration.
func ValidActionType(value ActionType) bool {
	switch value {
	case ActionDelete, ActionFlag, ActionWarn, ActionSuspend, ActionBan,
		ActionQuarantine, ActionAutoReply, ActionEscalate, ActionNotifyModerators,
		ActionLogOnly:
		return true
	}
	return false
}

// Condition is one testable predicate over a content payload.
type Condition struct {
	Type          ConditionType `json:"type"`                    // Which payload value to test.
	Operator      Operator      `json:"operator"`                // Comparison operator.
	Value         any           `json:"value"`                   // Comparison value, string or number.
	Weight        *float64      `json:"weight,omitempty"`        // Score weight, defaults to 1.
	CaseSensitive bool          `json:"caseSensitive,omitempty"` // Skip case folding when true.
	WholeWord     bool          `json:"wholeWord,omitempty"`     // Word-boundary match for CONTAINS.
}

// EffectiveWeight returns the condition weight, defaulting to 1 when unset.
func (c *Condition) EffectiveWeight() float64 {
	if c.Weight == nil {
		return 1
	}
	return *c.Weight
}

// Action is a recommended moderation response with free-form parameters.
type Action struct {
	Type            ActionType `json:"type"`                      // Action kind.
	Duration        *int       `json:"duration,omitempty"`        // Duration in minutes, for SUSPEND/BAN.
	Message         string     `json:"message,omitempty"`         // Message for WARN/AUTO_REPLY.
	NotifyUser      *bool      `json:"notifyUser,omitempty"`      // Whether the author is notified.
	EscalationLevel *int       `json:"escalationLevel,omitempty"` // Level for ESCALATE.
	Moderators      []string   `json:"moderators,omitempty"`      // Moderator IDs for NOTIFY_MODERATORS.
}

// Schedule restricts a rule to time-of-day windows and days of the week.
type Schedule struct {
	Enabled    bool   `json:"enabled"`              // Whether the schedule applies.
	StartTime  string `json:"startTime"`            // Window start, HH:MM 24-hour.
	EndTime    string `json:"endTime"`              // Window end, HH:MM 24-hour.
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"` // 0=Sunday..6=Saturday; empty means every day.
}

// Active reports whether t falls inside the schedule window. A disabled or
// nil schedule is always active. Windows whose end precedes their start wrap
// past midnight.
func (s *Schedule) Active(t time.Time) bool {
	if s == nil || !s.Enabled {
		return true
	}
	if len(s.DaysOfWeek) > 0 {
		day := int(t.Weekday())
		found := false
		for _, d := range s.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	start, okStart := parseClock(s.StartTime)
	end, okEnd := parseClock(s.EndTime)
	if !okStart || !okEnd {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// parseClock converts HH:MM into minutes since midnight.
func parseClock(value string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, okHour := parseClockPart(parts[0], 23)
	minute, okMinute := parseClockPart(parts[1], 59)
	if !okHour || !okMinute {
		return 0, false
	}
	return hour*60 + minute, true
}

// parseClockPart parses a zero-padded clock component with an upper bound.
func parseClockPart(value string, max int) (int, bool) {
	if len(value) != 2 {
		return 0, false
	}
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n > max {
		return 0, false
	}
	return n, true
}

// Definition carries the evaluable part of a moderation rule.
type Definition struct {
	TriggerType        TriggerType `json:"triggerType"`                  // Detection category.
	TargetTypes        []string    `json:"targetTypes"`                  // Content kinds the rule applies to.
	Conditions         []Condition `json:"conditions"`                   // Ordered predicates.
	Actions            []Action    `json:"actions"`                      // Ordered recommended actions.
	Schedule           *Schedule   `json:"schedule,omitempty"`           // Optional evaluation window.
	WhitelistUsers     []string    `json:"whitelistUsers,omitempty"`     // Authors exempt from the rule.
	BlacklistUsers     []string    `json:"blacklistUsers,omitempty"`     // When set, only these authors are evaluated.
	ExemptRoles        []string    `json:"exemptRoles,omitempty"`        // Author roles exempt from the rule.
	CooldownPeriod     int         `json:"cooldownPeriod,omitempty"`     // Seconds between live triggers.
	MaxTriggersPerHour int         `json:"maxTriggersPerHour,omitempty"` // Hourly live-trigger cap, 0 = unlimited.
}

// AppliesTo reports whether the rule targets the given content type.
func (d *Definition) AppliesTo(targetType string) bool {
	for _, t := range d.TargetTypes {
		if t == targetType {
			return true
		}
	}
	return false
}

// AuthorExempt reports whether the payload author is excluded from live
// evaluation by the allow-list, deny-list, or exempt roles.
func (d *Definition) AuthorExempt(payload *ContentPayload) bool {
	if payload == nil {
		return false
	}
	for _, id := range d.WhitelistUsers {
		if id == payload.AuthorID {
			return true
		}
	}
	for _, role := range d.ExemptRoles {
		for _, held := range payload.AuthorRoles {
			if strings.EqualFold(role, held) {
				return true
			}
		}
	}
	if len(d.BlacklistUsers) > 0 {
		for _, id := range d.BlacklistUsers {
			if id == payload.AuthorID {
				return false
			}
		}
		return true
	}
	return false
}

// ContentPayload is the content and author context a rule is evaluated against.
type ContentPayload struct {
	Text        string   `json:"text"`                  // Content body.
	AuthorID    string   `json:"authorId,omitempty"`    // Author identifier.
	AuthorRoles []string `json:"authorRoles,omitempty"` // Roles held by the author.
	UserAge     float64  `json:"userAge,omitempty"`     // Author account age in days.
	UserKarma   float64  `json:"userKarma,omitempty"`   // Author karma score.
}
