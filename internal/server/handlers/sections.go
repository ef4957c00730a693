package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/brdforge/brdforge/internal/ailink"
	apperrors "github.com/brdforge/brdforge/internal/errors"
)

// GenerationDefaults carry the configured fallbacks applied to requests that
// omit routing or section details.
type GenerationDefaults struct {
	Role       string
	PromptSlug string
	Sections   []string
}

var (
	generationService  *ailink.Service
	generationDefaults GenerationDefaults
)

// SetGenerationService injects the BRD generation service used by the
// sections and documents endpoints.
func SetGenerationService(service *ailink.Service, defaults GenerationDefaults) {
	generationService = service
	generationDefaults = defaults
}

// SectionRequestBody is the JSON body for POST /api/v1/sections.
type SectionRequestBody struct {
	Section    string            `json:"section"`
	UseCase    string            `json:"use_case"`
	Logic      string            `json:"logic,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	Model      string            `json:"model,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// DocumentRequestBody is the JSON body for POST /api/v1/documents.
type DocumentRequestBody struct {
	Title      string   `json:"title"`
	UseCase    string   `json:"use_case"`
	Logic      string   `json:"logic,omitempty"`
	Sections   []string `json:"sections,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Model      string   `json:"model,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`
}

// SectionsHandler generates one BRD section through the dispatch scheduler.
func SectionsHandler(w http.ResponseWriter, r *http.Request) {
	if generationService == nil {
		respondWithError(w, r, apperrors.NewInternalError("Generation service not initialized"))
		return
	}

	var body SectionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid JSON body"))
		return
	}

	if strings.TrimSpace(body.Section) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("section is required"))
		return
	}
	if strings.TrimSpace(body.UseCase) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("use_case is required"))
		return
	}

	result, err := generationService.GenerateSection(r.Context(), ailink.SectionRequest{
		Section:    body.Section,
		UseCase:    body.UseCase,
		Logic:      body.Logic,
		Variables:  body.Variables,
		Role:       generationDefaults.Role,
		PromptSlug: firstNonEmpty(body.Prompt, generationDefaults.PromptSlug),
		Model:      body.Model,
		TimeoutSec: body.TimeoutSec,
	})
	if err != nil {
		respondWithError(w, r, envelopeFromCallError(ailink.MapProviderError(err)))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DocumentsHandler generates a full BRD. Failed sections are reported in the
// result's errors list; the response is 200 as long as any section succeeds.
func DocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if generationService == nil {
		respondWithError(w, r, apperrors.NewInternalError("Generation service not initialized"))
		return
	}

	var body DocumentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid JSON body"))
		return
	}

	if strings.TrimSpace(body.UseCase) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("use_case is required"))
		return
	}
	sections := body.Sections
	if len(sections) == 0 {
		sections = generationDefaults.Sections
	}
	if len(sections) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("sections is required"))
		return
	}

	result, err := generationService.GenerateDocument(r.Context(), ailink.DocumentRequest{
		Title:      body.Title,
		UseCase:    body.UseCase,
		Logic:      body.Logic,
		Sections:   sections,
		Role:       generationDefaults.Role,
		PromptSlug: firstNonEmpty(body.Prompt, generationDefaults.PromptSlug),
		Model:      body.Model,
		TimeoutSec: body.TimeoutSec,
	})
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid document request"))
		return
	}

	if len(result.Sections) == 0 && len(result.Errors) > 0 {
		respondWithError(w, r, envelopeFromCallError(result.Errors[0]))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// envelopeFromCallError maps a provider call failure onto the error envelope
// codes the HTTP status resolver understands.
func envelopeFromCallError(callErr *ailink.CallError) *gferrors.ErrorEnvelope {
	if callErr == nil {
		return apperrors.NewInternalError("provider call failed")
	}

	var envelope *gferrors.ErrorEnvelope
	switch callErr.Code {
	case "AILINK_PROVIDER_RATE_LIMIT":
		envelope = apperrors.NewRateLimitedError(callErr.Message)
	case "AILINK_RETRIES_EXHAUSTED":
		envelope = apperrors.NewRetriesExhaustedError(callErr.Message)
	case "AILINK_PROVIDER_TIMEOUT":
		envelope = apperrors.NewTimeoutError(callErr.Message)
	default:
		envelope = apperrors.NewExternalServiceError(callErr.Message)
	}

	if callErr.Details != "" {
		if updated, err := envelope.WithContext(map[string]interface{}{
			"provider_detail": callErr.Details,
			"ailink_code":     callErr.Code,
		}); err == nil {
			envelope = updated
		}
	}
	return envelope
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
