package domain

// ActionType is a platform-agnostic action kind
type ActionType string

const (
	ActionTypeDeleteMessage ActionType = "delete-message"
	ActionTypeRestrict      ActionType = "restrict"
	ActionTypeUnrestrict    ActionType = "unrestrict"
	ActionTypeKick          ActionType = "kick"
	ActionTypeBan           ActionType = "ban"
	ActionTypeUnban         ActionType = "unban"
	ActionTypeSendMessage   ActionType = "send-message"
)

// Permissions is the permission set applied by restrict/unrestrict
type Permissions string

const (
	PermissionsNone Permissions = "none"
	PermissionsFull Permissions = "full"
)

// Action is one platform-agnostic action descriptor
type Action struct {
	Type             ActionType  `json:"type"`
	UserID           int64       `json:"userId,omitempty"`
	MessageID        int64       `json:"messageId,omitempty"`
	DurationMinutes  int         `json:"duration,omitempty"`
	Permissions      Permissions `json:"permissions,omitempty"`
	Text             string      `json:"text,omitempty"`
	ReplyToMessageID int64       `json:"replyToMessageId,omitempty"`
}

// IsResponse reports whether the action is a conversational reply
func (a Action) IsResponse() bool {
	return a.Type == ActionTypeSendMessage
}

// SplitActions separates moderation actions from replies, preserving order
func SplitActions(actions []Action) (moderation, responses []Action) {
	for _, a := range actions {
		if a.IsResponse() {
			responses = append(responses, a)
		} else {
			moderation = append(moderation, a)
		}
	}
	return moderation, responses
}
