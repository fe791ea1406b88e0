package domain

import "strings"

// ClassificationType is the provider's verdict on a message
type ClassificationType string

const (
	ClassificationNormal     ClassificationType = "normal"
	ClassificationViolation  ClassificationType = "violation"
	ClassificationBotMention ClassificationType = "bot_mention"
)

// ParseClassificationType validates against the closed set of classification types
func ParseClassificationType(s string) (ClassificationType, bool) {
	switch t := ClassificationType(strings.ToLower(strings.TrimSpace(s))); t {
	case ClassificationNormal, ClassificationViolation, ClassificationBotMention:
		return t, true
	}
	return "", false
}

// ModerationActionKind is the moderation action the provider asks for
type ModerationActionKind string

const (
	ActionNone   ModerationActionKind = "none"
	ActionWarn   ModerationActionKind = "warn"
	ActionDelete ModerationActionKind = "delete"
	ActionMute   ModerationActionKind = "mute"
	ActionUnmute ModerationActionKind = "unmute"
	ActionKick   ModerationActionKind = "kick"
	ActionBan    ModerationActionKind = "ban"
	ActionUnban  ModerationActionKind = "unban"
)

// ParseModerationAction validates against the closed set of moderation actions.
// An empty string means none.
func ParseModerationAction(s string) (ModerationActionKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ActionNone, true
	}
	switch a := ModerationActionKind(s); a {
	case ActionNone, ActionWarn, ActionDelete, ActionMute, ActionUnmute, ActionKick, ActionBan, ActionUnban:
		return a, true
	}
	return "", false
}

// TargetsUser reports whether the action acts on a member rather than a message
func (a ModerationActionKind) TargetsUser() bool {
	switch a {
	case ActionWarn, ActionMute, ActionUnmute, ActionKick, ActionBan, ActionUnban:
		return true
	}
	return false
}

// IsRestrictive reports whether the action limits a member
func (a ModerationActionKind) IsRestrictive() bool {
	return a == ActionMute || a == ActionKick || a == ActionBan
}

// IsRemoval reports whether the action removes the member from the chat
func (a ModerationActionKind) IsRemoval() bool {
	return a == ActionKick || a == ActionBan
}

// Classification is the type verdict for one message
type Classification struct {
	Type             ClassificationType `json:"type"`
	RequiresResponse bool               `json:"requiresResponse"`
}

// ClassificationResult is the validated provider output for one submitted message
type ClassificationResult struct {
	MessageID        int64                `json:"messageId"`
	Classification   Classification       `json:"classification"`
	ModerationAction ModerationActionKind `json:"moderationAction"`
	ResponseText     string               `json:"responseText,omitempty"`
	TargetUserID     *int64               `json:"targetUserId,omitempty"`
	TargetMessageID  *int64               `json:"targetMessageId,omitempty"`
	DurationMinutes  *int                 `json:"durationMinutes,omitempty"`
}

// IsActionable reports whether the result asks for anything at all
func (r *ClassificationResult) IsActionable() bool {
	return r.ModerationAction != ActionNone || r.Classification.RequiresResponse
}

// NormalResult is what a message missing from the provider output is treated as
func NormalResult(messageID int64) ClassificationResult {
	return ClassificationResult{
		MessageID:        messageID,
		Classification:   Classification{Type: ClassificationNormal},
		ModerationAction: ActionNone,
	}
}

// BatchClassificationResult holds at most one result per submitted message
type BatchClassificationResult struct {
	Results []ClassificationResult `json:"results"`
}

// Find returns the result for a message id
func (b *BatchClassificationResult) Find(messageID int64) (ClassificationResult, bool) {
	for _, r := range b.Results {
		if r.MessageID == messageID {
			return r, true
		}
	}
	return ClassificationResult{}, false
}
