package usecase

import (
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

// PolicyConfig contains moderation and response policy configuration
type PolicyConfig struct {
	DefaultMuteMinutes int
	MaxMuteMinutes     int // 0 = no cap
	ReviewActions      []domain.ModerationActionKind
	ResponseTriggers   []domain.ClassificationType
	MaxResponseLength  int // In characters, 0 = no cap
}

// DefaultPolicyConfig returns default policy configuration
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		DefaultMuteMinutes: 60,
		MaxMuteMinutes:     7 * 24 * 60,
		ReviewActions:      []domain.ModerationActionKind{domain.ActionBan, domain.ActionKick},
		ResponseTriggers:   []domain.ClassificationType{domain.ClassificationBotMention, domain.ClassificationViolation},
		MaxResponseLength:  1000,
	}
}

// ModerationPolicy maps a classification into a normalized moderation decision
type ModerationPolicy struct {
	config PolicyConfig
	review map[domain.ModerationActionKind]bool
}

// NewModerationPolicy creates a new moderation policy
func NewModerationPolicy(config PolicyConfig) *ModerationPolicy {
	return &ModerationPolicy{
		config: config,
		review: actionSet(config.ReviewActions),
	}
}

func actionSet(actions []domain.ModerationActionKind) map[domain.ModerationActionKind]bool {
	set := make(map[domain.ModerationActionKind]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// Evaluate returns nil when there is nothing to do or the target cannot be resolved
func (p *ModerationPolicy) Evaluate(msg domain.IncomingMessage, result domain.ClassificationResult, resolver repo.UserResolver) *domain.ModerationDecision {
	action := result.ModerationAction
	if action == "" || action == domain.ActionNone {
		return nil
	}

	d := &domain.ModerationDecision{
		Action:          action,
		TargetMessageID: msg.MessageID,
		RequiresReview:  p.review[action],
	}
	if result.TargetMessageID != nil {
		d.TargetMessageID = *result.TargetMessageID
	}

	if action == domain.ActionDelete {
		d.TargetUserID = msg.UserID
		if d.TargetMessageID != msg.MessageID {
			author, ok := resolver.AuthorOf(d.TargetMessageID)
			if !ok {
				return nil
			}
			d.TargetUserID = author
		}
		return d
	}

	target, ok := p.resolveTarget(msg, result, resolver)
	if !ok {
		return nil
	}
	d.TargetUserID = target

	if action == domain.ActionMute {
		d.DurationMinutes = p.muteDuration(result.DurationMinutes)
	}
	return d
}

// resolveTarget picks an explicit target user, then the author of an explicit
// target message, then the replied-to user of an admin report to the bot,
// then the author
func (p *ModerationPolicy) resolveTarget(msg domain.IncomingMessage, result domain.ClassificationResult, resolver repo.UserResolver) (int64, bool) {
	if result.TargetUserID != nil {
		return resolver.ResolveUser(*result.TargetUserID)
	}
	if result.TargetMessageID != nil && *result.TargetMessageID != msg.MessageID {
		return resolver.AuthorOf(*result.TargetMessageID)
	}
	// An admin replying to someone while addressing the bot is pointing at them
	if msg.IsAdmin && msg.ReplyToUserID != nil && result.Classification.Type == domain.ClassificationBotMention {
		return *msg.ReplyToUserID, true
	}
	return msg.UserID, true
}

func (p *ModerationPolicy) muteDuration(requested *int) int {
	minutes := p.config.DefaultMuteMinutes
	if requested != nil && *requested > 0 {
		minutes = *requested
	}
	if minutes <= 0 {
		minutes = DefaultPolicyConfig().DefaultMuteMinutes
	}
	if p.config.MaxMuteMinutes > 0 && minutes > p.config.MaxMuteMinutes {
		minutes = p.config.MaxMuteMinutes
	}
	return minutes
}

// ResponsePolicy decides whether a reply is emitted, independent of moderation
type ResponsePolicy struct {
	config   PolicyConfig
	triggers map[domain.ClassificationType]bool
}

// NewResponsePolicy creates a new response policy
func NewResponsePolicy(config PolicyConfig) *ResponsePolicy {
	triggers := make(map[domain.ClassificationType]bool, len(config.ResponseTriggers))
	for _, t := range config.ResponseTriggers {
		triggers[t] = true
	}
	return &ResponsePolicy{config: config, triggers: triggers}
}

// Evaluate returns nil when the message is not eligible for a reply
func (p *ResponsePolicy) Evaluate(msg domain.IncomingMessage, result domain.ClassificationResult) *domain.ResponseDecision {
	if !result.Classification.RequiresResponse || !p.triggers[result.Classification.Type] {
		return nil
	}
	if result.ResponseText == "" {
		return nil
	}
	return &domain.ResponseDecision{
		Text:             truncateRunes(result.ResponseText, p.config.MaxResponseLength),
		ReplyToMessageID: msg.MessageID,
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
