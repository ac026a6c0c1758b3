package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// questionSource produces a themed question set for a topic. Implementations
// must absorb every upstream failure internally and return a valid, possibly
// degraded, result — the engine never sees an error from this call.
type questionSource interface {
	RoundContent(ctx context.Context, topic string, count int, difficulty string) RoundContent
}

// fallbackBank is the built-in question set used whenever generation is
// unavailable. Cycled to fill any requested count.
var fallbackBank = []Question{
	{
		Type:    questionMultipleChoice,
		Text:    "Why did the scarecrow win an award?",
		Options: []string{"He was outstanding in his field", "He had brains", "He was funny", "He worked hard"},
		Correct: 0,
	},
	{
		Type:    questionMultipleChoice,
		Text:    "What do you call a bear with no teeth?",
		Options: []string{"A gummy bear", "A teddy bear", "A scary bear", "A baby bear"},
		Correct: 0,
	},
	{
		Type:    questionMultipleChoice,
		Text:    "Why don't scientists trust atoms?",
		Options: []string{"They're too small", "They make up everything", "They're unstable", "They're invisible"},
		Correct: 1,
	},
	{
		Type:    questionMultipleChoice,
		Text:    "What did the ocean say to the beach?",
		Options: []string{"Hello", "Nothing, it just waved", "Goodbye", "Nice weather"},
		Correct: 1,
	},
	{
		Type:    questionMultipleChoice,
		Text:    "Why did the bicycle fall over?",
		Options: []string{"It was broken", "It was two tired", "It was old", "Someone pushed it"},
		Correct: 1,
	},
}

var fallbackTitles = map[string]string{
	"history":    "Past Tents",
	"science":    "Element-ary My Dear Watson",
	"geography":  "Globe Trotting",
	"sports":     "Ball Games",
	"food":       "Pun Intended",
	"music":      "Note Worthy",
	"movies":     "Reel Talk",
	"art":        "Master Pieces",
	"literature": "Novel Ideas",
}

// fallbackContent builds deterministic round content for a topic.
func fallbackContent(topic string, count int) RoundContent {
	title, ok := fallbackTitles[strings.ToLower(topic)]
	if !ok {
		title = topic + " Puns"
	}
	questions := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, fallbackBank[i%len(fallbackBank)])
	}
	return RoundContent{Title: title, Questions: questions}
}

// validateRoundContent checks the structural invariants of generated
// content before the engine is allowed to see it.
func validateRoundContent(content RoundContent) error {
	if strings.TrimSpace(content.Title) == "" {
		return errors.New("missing title")
	}
	if len(content.Questions) == 0 {
		return errors.New("no questions")
	}
	for i, q := range content.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d: missing text", i)
		}
		switch q.Type {
		case questionMultipleChoice:
			if len(q.Options) != 4 {
				return fmt.Errorf("question %d: expected 4 options, got %d", i, len(q.Options))
			}
			if q.Correct < 0 || q.Correct > 3 {
				return fmt.Errorf("question %d: correct index %d out of range", i, q.Correct)
			}
		case questionFreeText:
			if len(q.AcceptedAnswers) == 0 {
				return fmt.Errorf("question %d: missing accepted answers", i)
			}
			if strings.TrimSpace(q.CorrectAnswerDisplay) == "" {
				return fmt.Errorf("question %d: missing display answer", i)
			}
		default:
			return fmt.Errorf("question %d: unknown type %q", i, q.Type)
		}
	}
	return nil
}
