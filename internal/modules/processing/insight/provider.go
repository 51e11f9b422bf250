package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"

	"github.com/clarity-app/core/internal/config"
)

// aiMaxOutputTokens bounds every completion; a reflection is short by
// contract, so a runaway model cannot burn the owner's quota.
const aiMaxOutputTokens = 300

func isOpenAICompatibleProviderType(raw string) bool {
	t := normalizeProviderType(raw)
	return t == "openai-compatible" || t == "openaicompatible"
}

func isAnthropicProviderType(raw string) bool {
	return normalizeProviderType(raw) == "anthropic"
}

func isOpenRouterProviderType(raw string) bool {
	return normalizeProviderType(raw) == "openrouter"
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

// callAIWithSystemPrompt runs one non-streaming completion against the
// configured provider.
func callAIWithSystemPrompt(provider *config.AIProvider, systemPrompt, prompt string) (string, error) {
	if provider == nil {
		return "", errors.New("AI provider is nil")
	}
	if isOpenAICompatibleProviderType(provider.Type) {
		return callOpenAICompatibleChatCompletions(provider, systemPrompt, prompt)
	}

	model, _, err := buildLanguageModel(provider)
	if err != nil {
		return "", err
	}
	resp, err := jetai.GenerateText(
		context.Background(),
		buildAIPromptMessages(systemPrompt, prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(aiMaxOutputTokens),
	)
	if err != nil {
		return "", err
	}
	return extractTextFromAIResponse(resp)
}

// callAIStream runs a streaming completion, invoking onToken per chunk.
// Providers without a streaming path fall back to one final token.
func callAIStream(provider *config.AIProvider, systemPrompt, prompt string, onToken func(string)) (string, error) {
	if provider == nil {
		return "", errors.New("AI provider is nil")
	}
	if isOpenAICompatibleProviderType(provider.Type) {
		return callOpenAICompatibleChatCompletionsStream(provider, systemPrompt, prompt, onToken)
	}

	model, streamEnabled, err := buildLanguageModel(provider)
	if err != nil {
		return "", err
	}

	if !streamEnabled {
		result, err := callAIWithSystemPrompt(provider, systemPrompt, prompt)
		if err != nil {
			return "", err
		}
		if onToken != nil && result != "" {
			onToken(result)
		}
		return result, nil
	}

	streamResp, err := jetai.StreamText(
		context.Background(),
		buildAIPromptMessages(systemPrompt, prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(aiMaxOutputTokens),
	)
	if err != nil {
		return "", err
	}
	var full strings.Builder
	for event := range streamResp.Stream {
		switch evt := event.(type) {
		case *jetapi.TextDeltaEvent:
			if evt.TextDelta == "" {
				continue
			}
			full.WriteString(evt.TextDelta)
			if onToken != nil {
				onToken(evt.TextDelta)
			}
		case *jetapi.ErrorEvent:
			if evt.Err == nil {
				return "", errors.New("AI stream returned an unknown error")
			}
			return "", fmt.Errorf("%v", evt.Err)
		}
	}
	result := full.String()
	if strings.TrimSpace(result) == "" {
		return "", errors.New("empty response from AI")
	}
	return result, nil
}

func buildChatCompletionBody(provider *config.AIProvider, systemPrompt, prompt string, stream bool) []byte {
	model := strings.TrimSpace(provider.DefaultModel)
	if model == "" {
		model = "gpt-4o-mini"
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": systemPrompt,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": prompt,
	})

	payload := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": aiMaxOutputTokens,
	}
	if stream {
		payload["stream"] = true
	}
	body, _ := json.Marshal(payload)
	return body
}

// callOpenAICompatibleChatCompletions speaks the chat-completions wire
// format directly. Self-hosted gateways often deviate from the shapes
// the official sdk insists on, so raw HTTP is the tolerant path.
func callOpenAICompatibleChatCompletions(provider *config.AIProvider, systemPrompt, prompt string) (string, error) {
	if strings.TrimSpace(provider.APIKey) == "" {
		return "", errors.New("AI provider api key is empty")
	}

	endpoint := normalizeOpenAICompatibleEndpoint(provider.Endpoint)
	body := buildChatCompletionBody(provider, systemPrompt, prompt, false)

	req, err := http.NewRequest(http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(provider.APIKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("openai-compatible error: %s", strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return "", fmt.Errorf("openai-compatible error: %s", result.Error.Message)
	}
	if strings.TrimSpace(result.Message) != "" && len(result.Choices) == 0 {
		return "", fmt.Errorf("openai-compatible error: %s", result.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("empty response from AI")
	}
	return result.Choices[0].Message.Content, nil
}

func callOpenAICompatibleChatCompletionsStream(provider *config.AIProvider, systemPrompt, prompt string, onToken func(string)) (string, error) {
	if strings.TrimSpace(provider.APIKey) == "" {
		return "", errors.New("AI provider api key is empty")
	}

	endpoint := normalizeOpenAICompatibleEndpoint(provider.Endpoint)
	body := buildChatCompletionBody(provider, systemPrompt, prompt, true)

	req, err := http.NewRequest(http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(provider.APIKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai-compatible stream error: %s", strings.TrimSpace(string(respBody)))
	}

	var full strings.Builder
	buf := make([]byte, 4096)
	remainder := ""
	done := false

	for !done {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := remainder + string(buf[:n])
			remainder = ""
			lines := splitLines(chunk)
			for i, line := range lines {
				// The tail of the chunk may be a half-read line; hold it
				// until the next read completes it.
				if i == len(lines)-1 && readErr == nil {
					remainder = line
					continue
				}
				line = strings.TrimSpace(line)
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					done = true
					break
				}

				var event struct {
					Choices []struct {
						Delta struct {
							Content string `json:"content"`
						} `json:"delta"`
					} `json:"choices"`
				}
				if err2 := json.Unmarshal([]byte(data), &event); err2 != nil {
					continue
				}
				if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
					continue
				}

				token := event.Choices[0].Delta.Content
				full.WriteString(token)
				if onToken != nil {
					onToken(token)
				}
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}

	result := full.String()
	if strings.TrimSpace(result) == "" {
		return "", errors.New("empty response from AI")
	}
	return result, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// unmarshalAIJSON tolerates models that fence or pad the JSON they were
// told to return bare.
func unmarshalAIJSON(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("invalid JSON response from AI")
}

func buildAIPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractTextFromAIResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from AI")
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from AI")
	}
	return text, nil
}

// buildLanguageModel wires the provider into a language model. The bool
// reports whether the model supports token streaming.
func buildLanguageModel(provider *config.AIProvider) (jetapi.LanguageModel, bool, error) {
	if provider == nil {
		return nil, false, errors.New("AI provider is nil")
	}

	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return nil, false, errors.New("AI provider api key is empty")
	}

	modelID := strings.TrimSpace(provider.DefaultModel)
	endpoint := strings.TrimSpace(provider.Endpoint)

	if isAnthropicProviderType(provider.Type) {
		if modelID == "" {
			modelID = "claude-haiku-4-5-20251001"
		}

		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}

		client := anthropicclient.NewClient(opts...)
		model := jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
		return model, false, nil
	}

	if modelID == "" {
		modelID = "gpt-4o-mini"
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}

	client := openaiclient.NewClient(opts...)
	model := jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
	return model, true, nil
}

// normalizeOpenAIBaseURL ensures the base URL carries the /v1 path
// segment the sdk expects.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		if path == "" {
			path = "/v1"
		} else {
			path += "/v1"
		}
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

// normalizeOpenAICompatibleEndpoint strips a trailing /v1 because the
// raw request path appends it again.
func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		cleaned := strings.TrimRight(base, "/")
		return strings.TrimSuffix(cleaned, "/v1")
	}

	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/v1")
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// selectAIProvider resolves the provider an assignment points at among
// the enabled ones, falling back to the first enabled provider. The
// result is a copy, so an override model never mutates stored config.
func selectAIProvider(cfg config.AIOptions, assignment *config.AIModelAssignment) *config.AIProvider {
	var providerID string
	var overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(provider config.AIProvider) *config.AIProvider {
		selected := provider
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, provider := range cfg.Providers {
			if !provider.Enabled {
				continue
			}
			if strings.TrimSpace(provider.ID) != providerID {
				continue
			}
			return pick(provider)
		}
	}

	for _, provider := range cfg.Providers {
		if !provider.Enabled {
			continue
		}
		return pick(provider)
	}

	return nil
}

// modelsFromProvider lists what the stored config already knows, for
// when the live listing endpoint is unreachable.
func modelsFromProvider(provider config.AIProvider) []modelInfo {
	models := make([]modelInfo, 0, 1)
	if provider.DefaultModel != "" {
		models = append(models, modelInfo{
			ID:   provider.DefaultModel,
			Name: provider.DefaultModel,
		})
	}
	return models
}

func fetchModelsFromProvider(provider config.AIProvider) ([]modelInfo, error) {
	switch {
	case isAnthropicProviderType(provider.Type):
		endpoint := normalizeModelsEndpoint(provider.Endpoint, "https://api.anthropic.com/v1/models", "/v1")
		headers := map[string]string{
			"x-api-key":         strings.TrimSpace(provider.APIKey),
			"anthropic-version": "2023-06-01",
			"content-type":      "application/json",
			"accept":            "application/json",
		}
		return fetchModelsByEndpoint(endpoint, headers, parseAnthropicModels)
	case isOpenRouterProviderType(provider.Type):
		endpoint := normalizeModelsEndpoint(provider.Endpoint, "https://openrouter.ai/api/v1/models", "/api/v1")
		headers := map[string]string{
			"authorization": "Bearer " + strings.TrimSpace(provider.APIKey),
			"accept":        "application/json",
		}
		return fetchModelsByEndpoint(endpoint, headers, parseOpenAIStyleModels)
	default:
		endpoint := normalizeModelsEndpoint(provider.Endpoint, "https://api.openai.com/v1/models", "/v1")
		headers := map[string]string{
			"authorization": "Bearer " + strings.TrimSpace(provider.APIKey),
			"accept":        "application/json",
		}
		return fetchModelsByEndpoint(endpoint, headers, parseOpenAIStyleModels)
	}
}

// normalizeModelsEndpoint rewrites a configured base URL into that
// provider's model listing URL, tolerating bases that already carry the
// version prefix or the /models suffix.
func normalizeModelsEndpoint(raw, defaultEndpoint, prefix string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return defaultEndpoint
	}

	trim := func(path string) string {
		path = strings.TrimRight(path, "/")
		path = strings.TrimSuffix(path, "/models")
		if strings.HasSuffix(path, prefix) {
			path = strings.TrimSuffix(path, prefix)
		} else {
			path = strings.TrimSuffix(path, "/v1")
		}
		return strings.TrimRight(path, "/")
	}

	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return trim(base) + prefix + "/models"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Path = trim(parsed.Path) + prefix + "/models"
	return strings.TrimRight(parsed.String(), "/")
}

func fetchModelsByEndpoint(endpoint string, headers map[string]string, parser func([]byte) ([]modelInfo, error)) ([]modelInfo, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		if strings.TrimSpace(v) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("provider models request failed: %s", strings.TrimSpace(string(body)))
	}
	models, err := parser(body)
	if err != nil {
		return nil, err
	}
	return dedupeModelInfos(models), nil
}

func parseOpenAIStyleModels(body []byte) ([]modelInfo, error) {
	var payload struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	models := make([]modelInfo, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = id
		}
		models = append(models, modelInfo{ID: id, Name: name})
	}
	return models, nil
}

func parseAnthropicModels(body []byte) ([]modelInfo, error) {
	var payload struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	models := make([]modelInfo, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = id
		}
		models = append(models, modelInfo{ID: id, Name: name})
	}
	return models, nil
}

func dedupeModelInfos(input []modelInfo) []modelInfo {
	if len(input) == 0 {
		return []modelInfo{}
	}
	out := make([]modelInfo, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for _, item := range input {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = id
		}
		out = append(out, modelInfo{ID: id, Name: name})
	}
	return out
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
