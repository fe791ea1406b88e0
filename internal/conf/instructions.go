package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// InstructionsFile is the YAML layout of the agent instructions file
type InstructionsFile struct {
	Instructions domain.AgentInstructions `yaml:"instructions"`
}

// LoadInstructions loads agent instructions from a YAML file.
// A missing file yields the defaults; empty fields are filled from the defaults.
func LoadInstructions(path string) (domain.AgentInstructions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("no instructions file found, using defaults", "path", path)
			return DefaultInstructions(), nil
		}
		return domain.AgentInstructions{}, fmt.Errorf("read instructions: %w", err)
	}
	return ParseInstructions(data)
}

// ParseInstructions parses the instructions YAML document
func ParseInstructions(data []byte) (domain.AgentInstructions, error) {
	var file InstructionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.AgentInstructions{}, fmt.Errorf("failed to parse instructions: %w", err)
	}
	fillInstructionDefaults(&file.Instructions)
	return file.Instructions, nil
}

// fillInstructionDefaults fills in default values for empty fields
func fillInstructionDefaults(in *domain.AgentInstructions) {
	defaults := DefaultInstructions()

	if strings.TrimSpace(in.Role) == "" {
		in.Role = defaults.Role
	}
	if strings.TrimSpace(in.ModerationRules) == "" {
		in.ModerationRules = defaults.ModerationRules
	}
	if strings.TrimSpace(in.ResponseTriggers) == "" {
		in.ResponseTriggers = defaults.ResponseTriggers
	}
	// Character, custom rules and output format may stay empty;
	// the prompt builder supplies the result schema itself.
}

// DefaultInstructions returns the built-in agent instructions
func DefaultInstructions() domain.AgentInstructions {
	return domain.AgentInstructions{
		Role: `You are the moderator of a Telegram group chat. You read batches of new
messages and classify each one. You never see the platform directly: your output
is parsed by a program that executes moderation actions and posts your replies.`,
		ModerationRules: `- Spam, scams, advertising and phishing links: delete; ban repeat offenders.
- Insults and harassment: warn first; mute when the author already has prior warnings.
- Flooding the chat with repeated messages: mute for a short time.
- Do not act on ordinary disagreement, jokes or off-topic chatter.
- Never target administrators (isAdmin=true).
- Use "kick" and "ban" only for clear, severe violations.`,
		ResponseTriggers: `- Reply when the bot is mentioned or addressed directly (type bot_mention).
- When issuing a warning, a short polite reply explaining the rule may be added.
- Otherwise stay silent: requiresResponse=false.`,
	}
}
