package domain

// AgentInstructions holds the policy and persona text used to build prompts
type AgentInstructions struct {
	Role             string `json:"role" yaml:"role"`
	Character        string `json:"character" yaml:"character"`
	CustomRules      string `json:"customRules" yaml:"custom_rules"`
	ModerationRules  string `json:"moderationRules" yaml:"moderation_rules"`
	ResponseTriggers string `json:"responseTriggers" yaml:"response_triggers"`
	OutputFormat     string `json:"outputFormat" yaml:"output_format"`
}
