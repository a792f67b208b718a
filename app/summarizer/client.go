package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	defaultModel       = "gpt-4o-mini"
	defaultInstruction = "다음은 영어 유튜브 영상 자막입니다. 최대한 상세하게 내용을 정리해줘."

	// Transcripts are clipped before being sent to keep the request within
	// the model's context window.
	maxTranscriptChars = 12000
)

// Request carries everything needed for a single summarization call. APIKey
// and Instruction are per-user values; blanks fall back to defaults.
type Request struct {
	APIKey      string
	Model       string
	Instruction string
	Title       string
	URL         string
	Transcript  string
}

// Client produces Korean summaries of video transcripts through an
// OpenAI-compatible chat completions API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		endpoint:   defaultEndpoint,
		httpClient: httpClient,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Summarize(ctx context.Context, r Request) (string, error) {
	if r.APIKey == "" {
		return "", fmt.Errorf("summarizer misconfigured: API key is empty")
	}

	model := r.Model
	if model == "" {
		model = defaultModel
	}

	instruction := strings.TrimSpace(r.Instruction)
	if instruction == "" {
		instruction = defaultInstruction
	}

	content := fmt.Sprintf("제목: %s\nURL: %s\n\n자막:\n%s", r.Title, r.URL, clipTranscript(r.Transcript))

	body, err := json.Marshal(map[string]any{
		"model":       model,
		"temperature": 0.3,
		"messages": []map[string]string{
			{"role": "system", "content": instruction},
			{"role": "user", "content": content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call completions API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completions API error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completions API returned no choices")
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("completions API returned an empty summary")
	}

	return summary, nil
}

func clipTranscript(transcript string) string {
	runes := []rune(transcript)
	if len(runes) <= maxTranscriptChars {
		return transcript
	}
	return string(runes[:maxTranscriptChars])
}
