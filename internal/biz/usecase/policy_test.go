package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

func violation(msgID int64, action domain.ModerationActionKind) domain.ClassificationResult {
	return domain.ClassificationResult{
		MessageID:        msgID,
		Classification:   domain.Classification{Type: domain.ClassificationViolation},
		ModerationAction: action,
	}
}

func TestModerationPolicy_DefaultsTargetToAuthor(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	msg := testMessage(42, 2, 502, "spam")
	res := violation(2, domain.ActionMute)
	res.DurationMinutes = intp(10)

	d := p.Evaluate(msg, res, NewBatchUserResolver(nil, nil))

	require.NotNil(t, d)
	require.Equal(t, domain.ActionMute, d.Action)
	require.Equal(t, int64(502), d.TargetUserID)
	require.Equal(t, int64(2), d.TargetMessageID)
	require.Equal(t, 10, d.DurationMinutes)
	require.False(t, d.RequiresReview)
}

func TestModerationPolicy_MuteDurationDefaultAndClamp(t *testing.T) {
	p := NewModerationPolicy(PolicyConfig{DefaultMuteMinutes: 30, MaxMuteMinutes: 120})
	msg := testMessage(1, 1, 7, "x")

	d := p.Evaluate(msg, violation(1, domain.ActionMute), NewBatchUserResolver(nil, nil))
	require.Equal(t, 30, d.DurationMinutes)

	long := violation(1, domain.ActionMute)
	long.DurationMinutes = intp(100000)
	d = p.Evaluate(msg, long, NewBatchUserResolver(nil, nil))
	require.Equal(t, 120, d.DurationMinutes)
}

func TestModerationPolicy_NoneYieldsNothing(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	require.Nil(t, p.Evaluate(testMessage(1, 1, 7, "x"), domain.NormalResult(1), NewBatchUserResolver(nil, nil)))
}

func TestModerationPolicy_ReviewActions(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	msg := testMessage(1, 1, 7, "x")
	r := NewBatchUserResolver(nil, nil)

	require.True(t, p.Evaluate(msg, violation(1, domain.ActionBan), r).RequiresReview)
	require.True(t, p.Evaluate(msg, violation(1, domain.ActionKick), r).RequiresReview)
	require.False(t, p.Evaluate(msg, violation(1, domain.ActionDelete), r).RequiresReview)
}

func TestModerationPolicy_ExplicitTargets(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	batch := []domain.BufferedMessage{
		{IncomingMessage: testMessage(1, 1, 11, "bad")},
		{IncomingMessage: testMessage(1, 2, 12, "report")},
	}
	r := NewBatchUserResolver(batch, nil)

	byUser := violation(2, domain.ActionBan)
	byUser.TargetUserID = int64p(11)
	require.Equal(t, int64(11), p.Evaluate(batch[1].IncomingMessage, byUser, r).TargetUserID)

	byMessage := violation(2, domain.ActionDelete)
	byMessage.TargetMessageID = int64p(1)
	d := p.Evaluate(batch[1].IncomingMessage, byMessage, r)
	require.Equal(t, int64(1), d.TargetMessageID)
	require.Equal(t, int64(11), d.TargetUserID)

	unknown := violation(2, domain.ActionBan)
	unknown.TargetUserID = int64p(999)
	require.Nil(t, p.Evaluate(batch[1].IncomingMessage, unknown, r))
}

func TestModerationPolicy_AdminReplyTargetsRepliedUser(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	msg := testMessage(1, 5, 1, "ban this")
	msg.IsAdmin = true
	msg.ReplyToMessageID = int64p(4)
	msg.ReplyToUserID = int64p(66)

	report := violation(5, domain.ActionMute)
	report.Classification.Type = domain.ClassificationBotMention
	d := p.Evaluate(msg, report, NewBatchUserResolver(nil, nil))
	require.Equal(t, int64(66), d.TargetUserID)
}

func TestModerationPolicy_AdminOwnViolationTargetsAdmin(t *testing.T) {
	p := NewModerationPolicy(DefaultPolicyConfig())
	msg := testMessage(1, 5, 7, "shut up, idiot")
	msg.IsAdmin = true
	msg.ReplyToMessageID = int64p(4)
	msg.ReplyToUserID = int64p(66)

	d := p.Evaluate(msg, violation(5, domain.ActionMute), NewBatchUserResolver(nil, nil))
	require.NotNil(t, d)
	require.Equal(t, int64(7), d.TargetUserID, "a flagged reply targets its author, not the replied-to user")
}

func TestResponsePolicy(t *testing.T) {
	p := NewResponsePolicy(PolicyConfig{
		ResponseTriggers:  []domain.ClassificationType{domain.ClassificationBotMention},
		MaxResponseLength: 5,
	})
	msg := testMessage(1, 9, 7, "@bot hi")

	mention := domain.ClassificationResult{
		MessageID:      9,
		Classification: domain.Classification{Type: domain.ClassificationBotMention, RequiresResponse: true},
		ResponseText:   "привет, друг",
	}
	d := p.Evaluate(msg, mention)
	require.NotNil(t, d)
	require.Equal(t, "приве", d.Text)
	require.Equal(t, int64(9), d.ReplyToMessageID)

	notTrigger := mention
	notTrigger.Classification.Type = domain.ClassificationViolation
	require.Nil(t, p.Evaluate(msg, notTrigger))

	noFlag := mention
	noFlag.Classification.RequiresResponse = false
	require.Nil(t, p.Evaluate(msg, noFlag))

	empty := mention
	empty.ResponseText = ""
	require.Nil(t, p.Evaluate(msg, empty))
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", truncateRunes("abc", 0))
	require.Equal(t, "ab", truncateRunes("abc", 2))
	require.Equal(t, strings.Repeat("я", 3), truncateRunes(strings.Repeat("я", 10), 3))
}
