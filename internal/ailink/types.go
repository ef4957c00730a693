package ailink

// SectionRequest asks for one generated BRD section.
type SectionRequest struct {
	// Section is the human-readable section title (e.g. "Executive Summary").
	Section string
	// UseCase and Logic give the model its grounding material.
	UseCase string
	Logic   string

	// Variables are merged into the prompt template on top of the
	// section/use-case/logic defaults.
	Variables map[string]string

	Role       string
	PromptSlug string
	Model      string
	TimeoutSec int
}

// SectionResult is one generated section with its dispatch accounting.
type SectionResult struct {
	Section    string `json:"section"`
	Content    string `json:"content"`
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
	Attempts   int    `json:"attempts"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Raw holds the untruncated-by-post-processing provider text, present
	// only when raw capture is enabled in the debug config.
	Raw string `json:"raw,omitempty"`
}

// DocumentRequest asks for a full set of BRD sections. Sections are generated
// in order through the provider's dispatch queue.
type DocumentRequest struct {
	Title    string
	UseCase  string
	Logic    string
	Sections []string

	Role       string
	PromptSlug string
	Model      string
	TimeoutSec int
}

// DocumentResult collects per-section outcomes. A section that fails records
// its error without aborting the remaining sections.
type DocumentResult struct {
	Title    string           `json:"title"`
	Sections []*SectionResult `json:"sections"`
	Errors   []*CallError     `json:"errors,omitempty"`
}

// CallError captures a provider failure without breaking the command.
type CallError struct {
	Section string `json:"section,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
