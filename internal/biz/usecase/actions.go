package usecase

import "github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"

// BuildActions translates a decision into platform action descriptors.
// Moderation actions come first, the reply last. A warning produces no action.
func BuildActions(d *domain.Decision) []domain.Action {
	if d == nil {
		return nil
	}

	var actions []domain.Action
	if m := d.Moderation; m != nil {
		switch m.Action {
		case domain.ActionDelete:
			actions = append(actions, domain.Action{
				Type:      domain.ActionTypeDeleteMessage,
				UserID:    m.TargetUserID,
				MessageID: m.TargetMessageID,
			})
		case domain.ActionMute:
			actions = append(actions, domain.Action{
				Type:            domain.ActionTypeRestrict,
				UserID:          m.TargetUserID,
				MessageID:       m.TargetMessageID,
				DurationMinutes: m.DurationMinutes,
				Permissions:     domain.PermissionsNone,
			})
		case domain.ActionUnmute:
			actions = append(actions, domain.Action{
				Type:        domain.ActionTypeUnrestrict,
				UserID:      m.TargetUserID,
				Permissions: domain.PermissionsFull,
			})
		case domain.ActionKick:
			actions = append(actions, domain.Action{
				Type:      domain.ActionTypeKick,
				UserID:    m.TargetUserID,
				MessageID: m.TargetMessageID,
			})
		case domain.ActionBan:
			actions = append(actions, domain.Action{
				Type:      domain.ActionTypeBan,
				UserID:    m.TargetUserID,
				MessageID: m.TargetMessageID,
			})
		case domain.ActionUnban:
			actions = append(actions, domain.Action{
				Type:   domain.ActionTypeUnban,
				UserID: m.TargetUserID,
			})
		}
	}

	if r := d.Response; r != nil && r.Text != "" {
		actions = append(actions, domain.Action{
			Type:             domain.ActionTypeSendMessage,
			Text:             r.Text,
			ReplyToMessageID: r.ReplyToMessageID,
		})
	}
	return actions
}
