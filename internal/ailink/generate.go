package ailink

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/brdforge/brdforge/internal/ailink/content"
	"github.com/brdforge/brdforge/internal/ailink/driver"
	"github.com/brdforge/brdforge/internal/ailink/prompt"
	"github.com/brdforge/brdforge/internal/core/dispatch"
)

const (
	defaultPromptSlug = "brd-section"
	defaultTimeout    = 60 * time.Second
	maxTimeout        = 5 * time.Minute

	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// Service coordinates prompt loading, provider selection, and scheduled
// driver execution.
type Service struct {
	Providers *Registry
	Prompts   prompt.Registry
}

// GenerateSection renders one BRD section. The provider call goes through the
// provider's dispatch scheduler, so concurrent callers are serialized and
// rate-limit failures retry with backoff before the result comes back.
func (s *Service) GenerateSection(ctx context.Context, req SectionRequest) (*SectionResult, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("ailink provider registry not configured")
	}
	if s.Prompts == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}

	section := strings.TrimSpace(req.Section)
	if section == "" {
		return nil, errors.New("section is required")
	}

	slug := strings.TrimSpace(req.PromptSlug)
	if slug == "" {
		slug = defaultPromptSlug
	}

	promptDef, err := s.Prompts.Get(slug)
	if err != nil {
		return nil, err
	}

	vars := map[string]string{
		"section":           section,
		"business_use_case": strings.TrimSpace(req.UseCase),
		"business_logic":    strings.TrimSpace(req.Logic),
	}
	for key, value := range req.Variables {
		vars[key] = value
	}

	systemPrompt, userPrompt, err := renderPrompt(promptDef, vars)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = slug
	}

	resolved, err := s.Providers.Resolve(role, promptDef, req.Model)
	if err != nil {
		return nil, err
	}

	driverReq := &driver.Request{
		Model: resolved.Model,
		Messages: []content.Message{
			{Role: "system", Content: []content.ContentBlock{{Type: content.ContentTypeText, Text: systemPrompt}}},
			{Role: "user", Content: []content.ContentBlock{{Type: content.ContentTypeText, Text: userPrompt}}},
		},
		Temperature: promptTemperature(promptDef),
		MaxTokens:   promptMaxTokens(promptDef),
		PromptSlug:  promptDef.Config.Slug,
		Metadata:    map[string]string{"section": section},
	}

	duration := s.Providers.cfg.DefaultTimeout
	if duration <= 0 {
		duration = defaultTimeout
	}
	if req.TimeoutSec > 0 {
		duration = time.Duration(req.TimeoutSec) * time.Second
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	meta := dispatch.Meta{
		"provider": resolved.ProviderID,
		"model":    resolved.Model,
		"prompt":   promptDef.Config.Slug,
		"section":  section,
	}

	attempts := 0
	value, err := resolved.Scheduler.Do(ctx, func(callCtx context.Context) (any, error) {
		attempts++
		return resolved.Driver.Complete(callCtx, driverReq)
	}, meta)
	if err != nil {
		return nil, err
	}

	resp, ok := value.(*driver.Response)
	if !ok || resp == nil {
		return nil, errors.New("provider returned no response")
	}

	text := extractContent(resp)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty response content")
	}

	result := &SectionResult{
		Section:    section,
		Content:    strings.TrimSpace(text),
		ProviderID: resolved.ProviderID,
		Model:      resolved.Model,
		Attempts:   attempts,
	}
	if resp.Usage != nil {
		result.PromptTokens = resp.Usage.PromptTokens
		result.CompletionTokens = resp.Usage.CompletionTokens
	}
	if isRawCaptureEnabled(s.Providers.cfg, true) {
		result.Raw = string(truncateBytes([]byte(text), rawLimit(s.Providers.cfg)))
	}
	return result, nil
}

// GenerateDocument renders every requested section in order. Sections share
// the provider queue, so the scheduler's pacing and quota apply across the
// whole document. A failed section is recorded and the rest continue.
func (s *Service) GenerateDocument(ctx context.Context, req DocumentRequest) (*DocumentResult, error) {
	if len(req.Sections) == 0 {
		return nil, errors.New("at least one section is required")
	}

	result := &DocumentResult{Title: strings.TrimSpace(req.Title)}
	for _, section := range req.Sections {
		sectionResult, err := s.GenerateSection(ctx, SectionRequest{
			Section:    section,
			UseCase:    req.UseCase,
			Logic:      req.Logic,
			Role:       req.Role,
			PromptSlug: req.PromptSlug,
			Model:      req.Model,
			TimeoutSec: req.TimeoutSec,
		})
		if err != nil {
			callErr := mapProviderError(err)
			callErr.Section = strings.TrimSpace(section)
			result.Errors = append(result.Errors, callErr)
			continue
		}
		result.Sections = append(result.Sections, sectionResult)
	}
	return result, nil
}

func renderPrompt(def *prompt.Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", errors.New("prompt is required")
	}

	// Apply conditionals first, then variable substitution.
	system := applyConditionals(def.Config.SystemTemplate, vars)
	system = applyVars(system, vars)

	user := def.Config.UserTemplate
	if user == "" {
		user = "{{section}}"
	}
	user = applyConditionals(user, vars)
	user = applyVars(user, vars)

	if strings.TrimSpace(system) == "" {
		return "", "", errors.New("system prompt is required")
	}
	return system, user, nil
}

func promptTemperature(def *prompt.Prompt) *float64 {
	value := defaultTemperature
	if def != nil {
		if raw, ok := def.Config.ResponseOpts["temperature"]; ok {
			switch typed := raw.(type) {
			case float64:
				value = typed
			case int:
				value = float64(typed)
			}
		}
	}
	return &value
}

func promptMaxTokens(def *prompt.Prompt) *int {
	value := defaultMaxTokens
	if def != nil {
		if raw, ok := def.Config.ResponseOpts["max_tokens"]; ok {
			switch typed := raw.(type) {
			case int:
				value = typed
			case float64:
				value = int(typed)
			}
		}
	}
	return &value
}

func extractContent(resp *driver.Response) string {
	if resp == nil {
		return ""
	}
	if len(resp.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}

func applyVars(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func applyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			break
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			break
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			break
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		value, exists := vars[varName]
		replacement := elseContent
		if exists && strings.TrimSpace(value) != "" {
			replacement = ifContent
		}

		result = result[:start] + replacement + result[endEnd:]
	}
	return result
}

func findConditionalBlock(input string, start int) (int, int, int, int) {
	depth := 0
	elseStart := -1
	elseEnd := -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}
