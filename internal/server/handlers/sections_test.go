package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brdforge/brdforge/internal/ailink"
	"github.com/brdforge/brdforge/internal/ailink/prompt"
	"github.com/brdforge/brdforge/internal/core/dispatch"
)

func newSectionsTestService(t *testing.T, backend http.HandlerFunc) *ailink.Service {
	t.Helper()

	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	cfg := ailink.Config{
		DefaultProvider: "openai-primary",
		DefaultTimeout:  10 * time.Second,
		Dispatch: dispatch.Config{
			MaxRetries:     2,
			BaseDelay:      time.Millisecond,
			MaxDelay:       time.Millisecond,
			JitterMax:      time.Nanosecond,
			RateLimitFloor: time.Millisecond,
			MinInterval:    time.Nanosecond,
			QuotaLimit:     100,
			QuotaWindow:    time.Minute,
		},
		Providers: map[string]ailink.ProviderInstanceConfig{
			"openai-primary": {
				Enabled:    true,
				AIProvider: "openai",
				BaseURL:    upstream.URL,
				Models:     map[string]string{"default": "gpt-4-turbo-preview"},
				Roles:      []string{"brd-section"},
				Credentials: []ailink.CredentialConfig{
					{Enabled: true, Label: "main", APIKey: "sk-test"},
				},
			},
		},
		Routing: map[string]string{"brd-section": "openai-primary"},
	}

	defaults, err := prompt.LoadDefaults()
	require.NoError(t, err)
	prompts, err := prompt.NewRegistry(defaults)
	require.NoError(t, err)

	return &ailink.Service{
		Providers: ailink.NewRegistry(cfg),
		Prompts:   prompts,
	}
}

func installService(t *testing.T, service *ailink.Service) {
	t.Helper()
	SetGenerationService(service, GenerationDefaults{
		Role:       "brd-section",
		PromptSlug: "brd-section",
		Sections:   []string{"Executive Summary", "Business Logic"},
	})
	t.Cleanup(func() { SetGenerationService(nil, GenerationDefaults{}) })
}

func completionResponse(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 350},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestSectionsHandlerGeneratesSection(t *testing.T) {
	service := newSectionsTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("The scope covers warehouse intake.")))
	})
	installService(t, service)

	body := `{"section":"Executive Summary","use_case":"Warehouse intake portal","logic":"FIFO putaway"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sections", strings.NewReader(body))
	rec := httptest.NewRecorder()

	SectionsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result ailink.SectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "Executive Summary", result.Section)
	require.Equal(t, "The scope covers warehouse intake.", result.Content)
	require.Equal(t, "openai-primary", result.ProviderID)
	require.Equal(t, 100, result.PromptTokens)
}

func TestSectionsHandlerValidatesInput(t *testing.T) {
	service := newSectionsTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	})
	installService(t, service)

	cases := []struct {
		name string
		body string
	}{
		{"MissingSection", `{"use_case":"Warehouse intake"}`},
		{"MissingUseCase", `{"section":"Executive Summary"}`},
		{"MalformedJSON", `{"section":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sections", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			SectionsHandler(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSectionsHandlerMapsRateLimitExhaustion(t *testing.T) {
	service := newSectionsTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})
	installService(t, service)

	body := `{"section":"Executive Summary","use_case":"Warehouse intake portal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sections", strings.NewReader(body))
	rec := httptest.NewRecorder()

	SectionsHandler(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "RETRIES_EXHAUSTED")
}

func TestSectionsHandlerWithoutService(t *testing.T) {
	SetGenerationService(nil, GenerationDefaults{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sections", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	SectionsHandler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDocumentsHandlerUsesDefaultSections(t *testing.T) {
	service := newSectionsTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("Generated content.")))
	})
	installService(t, service)

	body := `{"title":"Intake Portal","use_case":"Warehouse intake portal"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()

	DocumentsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result ailink.DocumentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "Intake Portal", result.Title)
	require.Len(t, result.Sections, 2)
	require.Empty(t, result.Errors)
}
