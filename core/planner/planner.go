// Package planner decides what the interviewer says next.
//
// A Planner turns the current phase, the conversation so far and the
// candidate's latest answer into a tagged Decision: the line to speak, an
// optional score, and whether the phase objectives are met. When the language
// model fails or times out the planner answers with a deterministic line
// from its question bank instead.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/llms"
	"github.com/koscakluka/ema-interview/core/phases"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// NoAnswerMarker is sent as the latest message when the candidate stayed
// silent through every retry.
const NoAnswerMarker = "[no answer]"

const (
	DefaultTimeout    = 4 * time.Second
	defaultHistoryLen = 24
)

var (
	ErrNoLLM         = errors.New("no language model configured")
	ErrEmptyResponse = errors.New("language model returned an empty reply")
)

// LLM is any client that implements LLMWithStructuredPrompt or
// LLMWithGeneralPrompt. Structured prompting is preferred when available.
type LLM any

type LLMWithStructuredPrompt interface {
	PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.PromptOption) error
}

type LLMWithGeneralPrompt interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (string, error)
}

type Request struct {
	Phase     phases.Phase
	Candidate string
	Position  string
	// Exchange is the number of exchanges already completed in Phase.
	Exchange     int
	MaxExchanges int
	History      []ledger.Utterance
	Latest       string
	NoAnswer     bool
}

type Score struct {
	Dimension phases.Dimension
	Value     int
	Rationale string
}

// Decision is the planner's answer for one exchange.
type Decision struct {
	Line          string
	Score         *Score
	ObjectivesMet bool
	// Fallback is set when Line came from the question bank because the
	// model failed. Fallback decisions never carry a score or progress.
	Fallback bool
	// Err is the model failure behind a fallback decision.
	Err error
}

// Signal converts the decision into the phase machine input.
func (d Decision) Signal() phases.Signal {
	return phases.Signal{ObjectivesMet: d.ObjectivesMet}
}

type plannedResponse struct {
	Reply         string `json:"reply" jsonschema:"title=Reply,description=What the interviewer says next. Spoken aloud."`
	ObjectivesMet bool   `json:"objectives_met" jsonschema:"title=Objectives met,description=True when the current phase is covered and the interview should move on"`
	Score         int    `json:"score" jsonschema:"title=Score,description=1-5 rating of the latest answer or 0 when it cannot be scored,minimum=0,maximum=5"`
	Rationale     string `json:"rationale" jsonschema:"title=Rationale,description=One sentence explaining the score"`
}

type Planner struct {
	llm        LLM
	bank       *Bank
	timeout    time.Duration
	historyLen int
}

type Option func(*Planner)

func WithTimeout(timeout time.Duration) Option {
	return func(p *Planner) {
		p.timeout = timeout
	}
}

func WithBank(bank *Bank) Option {
	return func(p *Planner) {
		p.bank = bank
	}
}

// WithHistoryLimit caps how many past utterances are sent to the model.
func WithHistoryLimit(limit int) Option {
	return func(p *Planner) {
		p.historyLen = limit
	}
}

func New(llm LLM, opts ...Option) *Planner {
	p := &Planner{
		llm:        llm,
		timeout:    DefaultTimeout,
		historyLen: defaultHistoryLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bank == nil {
		p.bank = DefaultBank()
	}
	return p
}

func (p *Planner) Bank() *Bank {
	return p.bank
}

// Plan produces the interviewer's next line. It never returns an empty line:
// failures are folded into a fallback decision.
func (p *Planner) Plan(ctx context.Context, req Request) Decision {
	ctx, span := tracer.Start(ctx, "plan response")
	defer span.End()
	span.SetAttributes(
		attribute.String("interview.phase", req.Phase.String()),
		attribute.Int("interview.exchange", req.Exchange),
		attribute.Bool("interview.no_answer", req.NoAnswer),
	)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	response, err := p.generate(ctx, req)
	if err == nil && strings.TrimSpace(response.Reply) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		err = llms.ClassifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "planner fell back to question bank")
		logger.Warn("planner falling back to question bank",
			"phase", req.Phase.String(),
			"error", err,
		)
		return Decision{
			Line:     p.bank.FallbackLine(req.Phase, req.Position, req.Exchange),
			Fallback: true,
			Err:      err,
		}
	}

	decision := Decision{
		Line:          strings.TrimSpace(response.Reply),
		ObjectivesMet: response.ObjectivesMet,
	}
	if dimension := req.Phase.ScoredDimension(); dimension != phases.DimensionNone && !req.NoAnswer {
		if response.Score >= ledger.MinScore && response.Score <= ledger.MaxScore {
			decision.Score = &Score{
				Dimension: dimension,
				Value:     response.Score,
				Rationale: response.Rationale,
			}
			span.SetAttributes(attribute.Int("interview.score", response.Score))
		}
	}
	span.SetAttributes(attribute.Bool("interview.objectives_met", decision.ObjectivesMet))
	return decision
}

func (p *Planner) generate(ctx context.Context, req Request) (plannedResponse, error) {
	latest := req.Latest
	if req.NoAnswer || strings.TrimSpace(latest) == "" {
		latest = NoAnswerMarker
	}

	switch llm := p.llm.(type) {
	case LLMWithStructuredPrompt:
		instructions, err := p.instructions(req, true)
		if err != nil {
			return plannedResponse{}, err
		}

		response := plannedResponse{}
		if err := llm.PromptWithStructure(ctx, latest, &response,
			llms.WithSystemPrompt(instructions),
			llms.WithHistory(p.history(req.History)...),
		); err != nil {
			return plannedResponse{}, fmt.Errorf("failed to prompt planner: %w", err)
		}
		return response, nil

	case LLMWithGeneralPrompt:
		instructions, err := p.instructions(req, false)
		if err != nil {
			return plannedResponse{}, err
		}

		content, err := llm.Prompt(ctx, latest,
			llms.WithSystemPrompt(instructions),
			llms.WithHistory(p.history(req.History)...),
		)
		if err != nil {
			return plannedResponse{}, fmt.Errorf("failed to prompt planner: %w", err)
		}
		return parseGeneralResponse(content), nil

	default:
		return plannedResponse{}, ErrNoLLM
	}
}

// parseGeneralResponse decodes a JSON answer from a model without structured
// output support. Plain text is used as the reply with no score or signal.
func parseGeneralResponse(content string) plannedResponse {
	trimmed := strings.TrimSpace(content)
	if split := strings.Split(trimmed, "```"); len(split) > 1 {
		trimmed = strings.TrimSpace(strings.TrimPrefix(split[1], "json"))
	}

	response := plannedResponse{}
	if err := json.Unmarshal([]byte(trimmed), &response); err != nil {
		return plannedResponse{Reply: strings.TrimSpace(content)}
	}
	return response
}

func (p *Planner) instructions(req Request, structured bool) (string, error) {
	data := struct {
		Candidate      string
		Position       string
		Phase          string
		Exchange       int
		MaxExchanges   int
		Questions      []string
		FollowUps      []string
		Scored         bool
		Dimension      string
		NoAnswerMarker string
		Structured     bool
	}{
		Candidate:      req.Candidate,
		Position:       req.Position,
		Phase:          req.Phase.String(),
		Exchange:       req.Exchange + 1,
		MaxExchanges:   req.MaxExchanges,
		Questions:      p.bank.Questions(req.Phase, req.Position),
		FollowUps:      p.bank.FollowUps,
		Scored:         req.Phase.ScoredDimension() != phases.DimensionNone,
		Dimension:      string(req.Phase.ScoredDimension()),
		NoAnswerMarker: NoAnswerMarker,
		Structured:     structured,
	}

	var buf bytes.Buffer
	if err := instructionsTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render planner instructions: %w", err)
	}
	return buf.String(), nil
}

func (p *Planner) history(utterances []ledger.Utterance) []llms.Message {
	if p.historyLen > 0 && len(utterances) > p.historyLen {
		utterances = utterances[len(utterances)-p.historyLen:]
	}

	messages := make([]llms.Message, 0, len(utterances))
	for _, utterance := range utterances {
		text := utterance.Text
		role := llms.MessageRoleAssistant
		if utterance.Speaker == ledger.SpeakerCandidate {
			role = llms.MessageRoleUser
			if utterance.NoAnswer {
				text = NoAnswerMarker
			}
		}
		messages = append(messages, llms.Message{Role: role, Content: text})
	}
	return messages
}
