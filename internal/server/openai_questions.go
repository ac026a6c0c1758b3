package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// openAIQuestions generates trivia rounds via the OpenAI chat API. Every
// failure path — missing key, timeout, bad status, malformed payload —
// degrades to the deterministic local fallback; callers never see an error.
type openAIQuestions struct {
	apiKey string
	model  string
	log    *zap.SugaredLogger
}

func newOpenAIQuestions(apiKey, model string, log *zap.SugaredLogger) *openAIQuestions {
	return &openAIQuestions{apiKey: apiKey, model: model, log: log}
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat       `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type generatedRound struct {
	PunnyTitle string              `json:"punnyTitle"`
	Questions  []generatedQuestion `json:"questions"`
}

type generatedQuestion struct {
	Type                 string   `json:"type"`
	Text                 string   `json:"text"`
	Options              []string `json:"options"`
	Correct              int      `json:"correct"`
	AcceptedAnswers      []string `json:"acceptedAnswers"`
	CorrectAnswerDisplay string   `json:"correctAnswerDisplay"`
}

func (o *openAIQuestions) RoundContent(ctx context.Context, topic string, count int, difficulty string) RoundContent {
	if o.model == "mock" || strings.TrimSpace(o.apiKey) == "" {
		return fallbackContent(topic, count)
	}
	content, err := o.generate(ctx, topic, count, difficulty)
	if err != nil {
		o.log.Warnw("question generation failed, using fallback bank", "topic", topic, "error", err)
		return fallbackContent(topic, count)
	}
	return content
}

func (o *openAIQuestions) generate(ctx context.Context, topic string, count int, difficulty string) (RoundContent, error) {
	reqBody := openAIChatRequest{
		Model: o.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(topic, count, difficulty)},
		},
		Temperature:    0.8,
		ResponseFormat: &openAIFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return RoundContent{}, fmt.Errorf("failed to build OpenAI request")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, openAIChatURL, bytes.NewReader(payload))
	if err != nil {
		return RoundContent{}, fmt.Errorf("failed to build OpenAI request")
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(o.apiKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return RoundContent{}, fmt.Errorf("failed to reach OpenAI")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RoundContent{}, fmt.Errorf("failed to read OpenAI response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RoundContent{}, fmt.Errorf("OpenAI request failed (%d)", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return RoundContent{}, fmt.Errorf("failed to parse OpenAI response")
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return RoundContent{}, fmt.Errorf("OpenAI error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return RoundContent{}, errors.New("OpenAI returned no choices")
	}

	var round generatedRound
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &round); err != nil {
		return RoundContent{}, fmt.Errorf("failed to parse generated round")
	}

	content := RoundContent{Title: round.PunnyTitle}
	for _, q := range round.Questions {
		if q.Type == "" {
			q.Type = questionMultipleChoice
		}
		content.Questions = append(content.Questions, Question{
			Type:                 q.Type,
			Text:                 q.Text,
			Options:              q.Options,
			Correct:              q.Correct,
			AcceptedAnswers:      q.AcceptedAnswers,
			CorrectAnswerDisplay: q.CorrectAnswerDisplay,
		})
	}
	if err := validateRoundContent(content); err != nil {
		return RoundContent{}, err
	}
	return content, nil
}

const systemPrompt = `You are a trivia expert creating engaging quiz content for a party game.

Rules:
1. Generate REAL trivia questions about the given topic (not puns or jokes)
2. Questions should be accessible and fun (not obscure academic facts)
3. The punnyTitle should be a cheesy dad joke/pun related to the topic
4. Return ONLY valid JSON, no markdown formatting or explanations
5. Content must be family-friendly
6. Support two question types: multiple_choice and free_text`

func userPrompt(topic string, count int, difficulty string) string {
	difficultyInstructions := map[string]string{
		"Easy":   "Make questions very simple and common knowledge suitable for casual players.",
		"Medium": "Make questions standard trivia difficulty.",
		"Hard":   "Make questions challenging and obscure, suitable for trivia buffs.",
		"Mixed":  "Mix difficulty levels (easy, medium, hard).",
	}
	instruction, ok := difficultyInstructions[difficulty]
	if !ok {
		instruction = difficultyInstructions["Mixed"]
	}
	return fmt.Sprintf(`Generate a trivia round for the topic %[1]q.

Return valid JSON matching this exact schema:
{
  "punnyTitle": "A cheesy dad joke/pun related to %[1]s",
  "questions": [
    {
      "type": "multiple_choice",
      "text": "Question text...",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correct": 0
    },
    {
      "type": "free_text",
      "text": "Question text...",
      "acceptedAnswers": ["Primary Answer", "Synonym 1", "Common Misspelling"],
      "correctAnswerDisplay": "Primary Answer"
    }
  ]
}

IMPORTANT:
- The punnyTitle should be a PUN (e.g., for "Bananas": "Going Bananas")
- Questions should be REAL TRIVIA about %[1]s
- Include exactly %[2]d questions
- Mix question types (about 60%% multiple choice, 40%% free text).
- %[3]s

For multiple_choice questions:
- Provide exactly 4 options
- Set correct to the index (0-3) of the correct answer

For free_text questions:
- Include acceptedAnswers array with the primary correct answer, common
  synonyms, common misspellings and related variations
- Set correctAnswerDisplay to the preferred display answer
- Make questions specific enough that there's a clear answer`, topic, count, instruction)
}
