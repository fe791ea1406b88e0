package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	BotName           string // Bot username, used so the provider can spot mentions
	HistoryMarker     string // History section marker
	NewMessagesMarker string // New messages section marker
	SectionSeparator  string

	// Max history entries rendered (0 = no limit). The history itself is
	// already token-trimmed; this only bounds the prompt.
	MaxHistoryEntries int
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	HistoryMarker:     "[Already classified messages - context only, do not classify again]",
	NewMessagesMarker: "[New messages - classify each of these]",
	SectionSeparator:  "\n\n---\n\n",
	MaxHistoryEntries: 50,
}

// DefaultOutputFormat is the result schema used when the instructions do not carry one
const DefaultOutputFormat = `Return ONLY one JSON object, no prose, of this shape:
{"results":[{"messageId":<id>,"classification":{"type":"normal|violation|bot_mention","requiresResponse":<true|false>},"moderationAction":"none|warn|delete|mute|unmute|kick|ban|unban","responseText":"<reply text, only when requiresResponse is true>","targetUserId":<user id, optional>,"targetMessageId":<message id, optional>,"durationMinutes":<minutes, mute only>}]}

- Use only message ids listed in the new messages section, at most one entry per id.
- Messages that need nothing may be omitted.
- targetUserId defaults to the author of the message. targetMessageId defaults to the message itself.`

// Prompt is a rendered classification request
type Prompt struct {
	System string
	User   string
}

// PromptBuilder renders classification requests
type PromptBuilder struct {
	config PromptConfig
}

// NewPromptBuilder creates a new prompt builder
func NewPromptBuilder(config PromptConfig) *PromptBuilder {
	if config.SectionSeparator == "" {
		config.SectionSeparator = DefaultPromptConfig.SectionSeparator
	}
	if config.HistoryMarker == "" {
		config.HistoryMarker = DefaultPromptConfig.HistoryMarker
	}
	if config.NewMessagesMarker == "" {
		config.NewMessagesMarker = DefaultPromptConfig.NewMessagesMarker
	}
	return &PromptBuilder{config: config}
}

// Build renders the system section from the instructions and the user
// section from the history and the just-drained batch
func (pb *PromptBuilder) Build(instr domain.AgentInstructions, history *domain.ChatHistory, batch []domain.BufferedMessage) Prompt {
	return Prompt{
		System: pb.formatSystem(instr),
		User:   pb.formatUser(history, batch),
	}
}

func (pb *PromptBuilder) formatSystem(instr domain.AgentInstructions) string {
	var parts []string

	identity := strings.TrimSpace(instr.Role)
	if pb.config.BotName != "" {
		identity = strings.TrimSpace(fmt.Sprintf("%s\nYour username in this chat is @%s.", identity, pb.config.BotName))
	}
	parts = appendSection(parts, "## Role", identity)
	parts = appendSection(parts, "## Character", instr.Character)
	parts = appendSection(parts, "## Rules", instr.CustomRules)
	parts = appendSection(parts, "## Moderation rules", instr.ModerationRules)
	parts = appendSection(parts, "## When to respond", instr.ResponseTriggers)

	format := strings.TrimSpace(instr.OutputFormat)
	if format == "" {
		format = DefaultOutputFormat
	}
	parts = appendSection(parts, "## Output format", format)

	return strings.Join(parts, pb.config.SectionSeparator)
}

func appendSection(parts []string, header, body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return parts
	}
	return append(parts, header+"\n"+body)
}

// promptMessage is the wire form of one message in the user section
type promptMessage struct {
	MessageID        int64                       `json:"messageId"`
	UserID           int64                       `json:"userId"`
	Username         string                      `json:"username,omitempty"`
	IsAdmin          bool                        `json:"isAdmin,omitempty"`
	Time             string                      `json:"time"`
	Text             string                      `json:"text"`
	ReplyToMessageID *int64                      `json:"replyToMessageId,omitempty"`
	ReplyToUserID    *int64                      `json:"replyToUserId,omitempty"`
	PriorWarnings    int                         `json:"priorWarnings,omitempty"`
	Classification   domain.ClassificationType   `json:"classification,omitempty"`
	ModerationAction domain.ModerationActionKind `json:"moderationAction,omitempty"`
}

func newPromptMessage(m domain.IncomingMessage) promptMessage {
	return promptMessage{
		MessageID:        m.MessageID,
		UserID:           m.UserID,
		Username:         m.Username,
		IsAdmin:          m.IsAdmin,
		Time:             m.Timestamp.UTC().Format(time.RFC3339),
		Text:             m.Text,
		ReplyToMessageID: m.ReplyToMessageID,
		ReplyToUserID:    m.ReplyToUserID,
	}
}

func (pb *PromptBuilder) formatUser(history *domain.ChatHistory, batch []domain.BufferedMessage) string {
	var parts []string

	if history != nil && len(history.Entries) > 0 {
		entries := history.Entries
		var sb strings.Builder
		sb.WriteString(pb.config.HistoryMarker)
		sb.WriteString("\n")
		if max := pb.config.MaxHistoryEntries; max > 0 && len(entries) > max {
			sb.WriteString(fmt.Sprintf("[%d earlier entries omitted]\n", len(entries)-max))
			entries = entries[len(entries)-max:]
		}
		for _, e := range entries {
			pm := newPromptMessage(e.Message)
			if e.Result != nil {
				pm.Classification = e.Result.Classification.Type
				if e.Result.ModerationAction != domain.ActionNone {
					pm.ModerationAction = e.Result.ModerationAction
				}
			}
			sb.WriteString(encodeLine(pm))
		}
		parts = append(parts, strings.TrimRight(sb.String(), "\n"))
	}

	var sb strings.Builder
	sb.WriteString(pb.config.NewMessagesMarker)
	sb.WriteString("\n")
	ids := make([]string, 0, len(batch))
	for _, m := range batch {
		pm := newPromptMessage(m.IncomingMessage)
		if history != nil {
			pm.PriorWarnings = history.WarningsFor(m.UserID)
		}
		sb.WriteString(encodeLine(pm))
		ids = append(ids, fmt.Sprintf("%d", m.MessageID))
	}
	sb.WriteString(fmt.Sprintf("Message ids to classify: [%s]", strings.Join(ids, ", ")))
	parts = append(parts, sb.String())

	return strings.Join(parts, pb.config.SectionSeparator)
}

func encodeLine(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v\n", v)
	}
	return buf.String()
}
