package planner

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/koscakluka/ema-interview/core/phases"
	"gopkg.in/yaml.v3"
)

//go:embed bank.yaml
var defaultBankSource []byte

//go:embed instructions.tmpl
var instructionsSource string

var instructionsTemplate = template.Must(template.New("instructions").Parse(instructionsSource))

// Bank holds the fixed lines the interviewer relies on: greetings, phase
// transitions, question pools and retry prompts.
type Bank struct {
	Welcome          string              `yaml:"welcome"`
	Closing          string              `yaml:"closing"`
	Transitions      map[string]string   `yaml:"transitions"`
	RetryPrompts     []string            `yaml:"retry_prompts"`
	Introduction     []string            `yaml:"introduction"`
	ClosingQuestions []string            `yaml:"closing_questions"`
	DefaultPosition  string              `yaml:"default_position"`
	Technical        map[string][]string `yaml:"technical"`
	Behavioral       []string            `yaml:"behavioral"`
	FollowUps        []string            `yaml:"follow_ups"`

	welcome *template.Template
}

// DefaultBank returns the built-in question bank.
func DefaultBank() *Bank {
	bank, err := ParseBank(defaultBankSource)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in question bank: %v", err))
	}
	return bank
}

// ParseBank reads a question bank from YAML.
func ParseBank(source []byte) (*Bank, error) {
	bank := &Bank{}
	if err := yaml.Unmarshal(source, bank); err != nil {
		return nil, fmt.Errorf("failed to decode question bank: %w", err)
	}
	if err := bank.validate(); err != nil {
		return nil, err
	}

	welcome, err := template.New("welcome").Parse(bank.Welcome)
	if err != nil {
		return nil, fmt.Errorf("failed to parse welcome line: %w", err)
	}
	bank.welcome = welcome
	return bank, nil
}

func (b *Bank) validate() error {
	switch {
	case strings.TrimSpace(b.Welcome) == "":
		return fmt.Errorf("question bank: welcome line is empty")
	case strings.TrimSpace(b.Closing) == "":
		return fmt.Errorf("question bank: closing line is empty")
	case len(b.RetryPrompts) == 0:
		return fmt.Errorf("question bank: no retry prompts")
	case len(b.Introduction) == 0:
		return fmt.Errorf("question bank: no introduction questions")
	case len(b.ClosingQuestions) == 0:
		return fmt.Errorf("question bank: no closing questions")
	case len(b.Behavioral) == 0:
		return fmt.Errorf("question bank: no behavioral questions")
	case len(b.Technical[b.DefaultPosition]) == 0:
		return fmt.Errorf("question bank: no technical questions for default position %q", b.DefaultPosition)
	}
	return nil
}

// NormalizePosition turns a free-form position title into a bank key, e.g.
// "DevOps Engineer" becomes "devops_engineer".
func NormalizePosition(position string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(position)), " ", "_")
}

// TechnicalQuestions returns the technical pool for a position, falling back
// to the default position.
func (b *Bank) TechnicalQuestions(position string) []string {
	if questions, ok := b.Technical[NormalizePosition(position)]; ok && len(questions) > 0 {
		return questions
	}
	return b.Technical[b.DefaultPosition]
}

// Questions returns the question pool used in a phase.
func (b *Bank) Questions(phase phases.Phase, position string) []string {
	switch phase {
	case phases.Introduction:
		return b.Introduction
	case phases.Technical:
		return b.TechnicalQuestions(position)
	case phases.Behavioral:
		return b.Behavioral
	default:
		return b.ClosingQuestions
	}
}

func (b *Bank) WelcomeLine(candidate, position string) string {
	var buf bytes.Buffer
	data := struct{ Candidate, Position string }{Candidate: candidate, Position: position}
	if err := b.welcome.Execute(&buf, data); err != nil {
		logger.Warn("failed to render welcome line", "error", err)
		return b.Welcome
	}
	return strings.TrimSpace(buf.String())
}

// TransitionLine returns the line spoken when entering a phase, or "" when
// the phase has none.
func (b *Bank) TransitionLine(to phases.Phase) string {
	return b.Transitions[to.String()]
}

func (b *Bank) ClosingLine() string {
	return strings.TrimSpace(b.Closing)
}

// RetryLine returns the re-prompt for the given zero-based attempt.
func (b *Bank) RetryLine(attempt int) string {
	if attempt < 0 {
		attempt = 0
	}
	return b.RetryPrompts[attempt%len(b.RetryPrompts)]
}

// FallbackLine picks a deterministic question for the phase, used when the
// language model is unavailable.
func (b *Bank) FallbackLine(phase phases.Phase, position string, exchange int) string {
	questions := b.Questions(phase, position)
	if exchange < 0 {
		exchange = 0
	}
	return questions[exchange%len(questions)]
}
