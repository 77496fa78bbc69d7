// Package tutor is the LLM content collaborator of lingotutor. It generates
// reading stories, translates Urdu to English, lists and fleshes out tutoring
// exercises, drives tutoring chats and evaluates finished conversations.
//
// Every operation is a single request/response exchange with an
// [llm.Provider]. Structured replies are requested in JSON mode and decoded
// leniently: markdown fences are stripped and list replies may be a bare array
// or an object wrapping the array. Failures wrap [ErrGenerationFailed]; only
// [Service.Feedback] degrades to a fixed value instead of failing.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/resilience"
	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/types"
)

// ErrGenerationFailed reports that the language model could not produce usable
// content. The wrapped cause is the transport error or the decoding failure.
var ErrGenerationFailed = errors.New("tutor: generation failed")

// ErrEmptyText is returned by [Service.Translate] for blank input.
var ErrEmptyText = errors.New("tutor: empty text")

// ErrUnknownCategory is returned for an exercise category outside
// Grammar, Vocabulary and Conversation.
var ErrUnknownCategory = errors.New("tutor: unknown exercise category")

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithMetrics records LLM latency and request counters on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProviderName sets the provider label used on request metrics.
// Default: "llm".
func WithProviderName(name string) Option {
	return func(s *Service) {
		s.providerName = name
	}
}

// WithCircuitBreaker guards every request with cb. Once the breaker opens,
// operations fail fast with [resilience.ErrCircuitOpen] wrapped in
// [ErrGenerationFailed] until the reset timeout elapses.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// WithTimeout bounds each LLM request. Zero disables the bound. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// Service performs tutoring operations against a language model.
// It is safe for concurrent use.
type Service struct {
	llm          llm.Provider
	metrics      *observe.Metrics
	providerName string
	breaker      *resilience.CircuitBreaker
	timeout      time.Duration
}

// New returns a [Service] backed by provider.
func New(provider llm.Provider, opts ...Option) *Service {
	s := &Service{
		llm:          provider,
		providerName: "llm",
		timeout:      60 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// GenerateStories asks the model for three short reading passages for
// intermediate learners. Entries without a title or content are dropped; an
// empty result is an error.
func (s *Service) GenerateStories(ctx context.Context) ([]types.Story, error) {
	content, err := s.complete(ctx, "generate_stories", llm.CompletionRequest{
		SystemPrompt: storiesSystemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: storiesPrompt}},
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("tutor: generate stories: %w", err)
	}

	raw, err := decodeList[types.Story](content, "stories")
	if err != nil {
		return nil, fmt.Errorf("tutor: generate stories: %w: %w", ErrGenerationFailed, err)
	}
	stories := make([]types.Story, 0, len(raw))
	for _, st := range raw {
		st.Title = strings.TrimSpace(st.Title)
		st.Content = strings.TrimSpace(st.Content)
		if st.Title == "" || st.Content == "" {
			continue
		}
		stories = append(stories, st)
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("tutor: generate stories: %w: no complete story in reply", ErrGenerationFailed)
	}
	return stories, nil
}

// Translate translates an Urdu sentence to English and returns the model's
// reply with surrounding quotes removed.
func (s *Service) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("tutor: translate: %w", ErrEmptyText)
	}

	content, err := s.complete(ctx, "translate", llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: translatePrompt(text)}},
	})
	if err != nil {
		return "", fmt.Errorf("tutor: translate: %w", err)
	}
	out := strings.Trim(strings.TrimSpace(content), "\"“”")
	if out == "" {
		return "", fmt.Errorf("tutor: translate: %w: empty reply", ErrGenerationFailed)
	}
	return out, nil
}

// GenerateExerciseList returns the exercise choices of category. Grammar and
// Vocabulary come from the built-in catalog; Conversation topics are
// generated.
func (s *Service) GenerateExerciseList(ctx context.Context, category types.ExerciseCategory) ([]types.ExerciseListItem, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("tutor: exercise list: %w: %q", ErrUnknownCategory, category)
	}
	if topics := catalogTopics(category); topics != nil {
		return topics, nil
	}

	content, err := s.complete(ctx, "exercise_list", llm.CompletionRequest{
		SystemPrompt: exercisesSystemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: exerciseListPrompt(category)}},
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("tutor: exercise list: %w", err)
	}

	raw, err := decodeList[types.ExerciseListItem](content, "exercises")
	if err != nil {
		return nil, fmt.Errorf("tutor: exercise list: %w: %w", ErrGenerationFailed, err)
	}
	items := make([]types.ExerciseListItem, 0, len(raw))
	for _, it := range raw {
		it.Title = strings.TrimSpace(it.Title)
		it.Description = strings.TrimSpace(it.Description)
		if it.Title == "" {
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("tutor: exercise list: %w: no exercise in reply", ErrGenerationFailed)
	}
	return items, nil
}

// ExerciseDetails expands item into a full [types.Exercise]. Conversation
// topics use a fixed free-discussion brief and catalog entries are returned
// as stored; anything else is fleshed out by the model. The returned category
// is always category.
func (s *Service) ExerciseDetails(ctx context.Context, item types.ExerciseListItem, category types.ExerciseCategory) (types.Exercise, error) {
	if !category.IsValid() {
		return types.Exercise{}, fmt.Errorf("tutor: exercise details: %w: %q", ErrUnknownCategory, category)
	}
	if category == types.CategoryConversation {
		return conversationExercise(item.Title), nil
	}
	if ex, ok := catalogExercise(category, item.Title); ok {
		return ex, nil
	}

	content, err := s.complete(ctx, "exercise_details", llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: exerciseDetailsPrompt(item, category)}},
		JSONMode: true,
	})
	if err != nil {
		return types.Exercise{}, fmt.Errorf("tutor: exercise details: %w", err)
	}

	var ex types.Exercise
	if err := decodeObject(content, &ex); err != nil {
		return types.Exercise{}, fmt.Errorf("tutor: exercise details: %w: %w", ErrGenerationFailed, err)
	}
	ex.Category = category
	if strings.TrimSpace(ex.Title) == "" {
		ex.Title = item.Title
	}
	if strings.TrimSpace(ex.Description) == "" {
		return types.Exercise{}, fmt.Errorf("tutor: exercise details: %w: reply has no description", ErrGenerationFailed)
	}
	return ex, nil
}

// Feedback evaluates a finished chat. It never fails: any transport, decoding
// or validation problem yields [DefaultFeedback].
func (s *Service) Feedback(ctx context.Context, history []types.ChatMessage) types.Feedback {
	content, err := s.complete(ctx, "feedback", llm.CompletionRequest{
		SystemPrompt: feedbackSystemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: feedbackPrompt(history)}},
		JSONMode:     true,
	})
	if err != nil {
		observe.Logger(ctx).Warn("tutor: feedback request failed, using default", "err", err)
		return DefaultFeedback()
	}
	fb, err := decodeFeedback(content)
	if err != nil {
		observe.Logger(ctx).Warn("tutor: feedback reply unusable, using default", "err", err)
		return DefaultFeedback()
	}
	return fb
}

// DefaultFeedback is the evaluation shown when the model cannot provide one.
func DefaultFeedback() types.Feedback {
	return types.Feedback{
		Score:      75,
		Grammar:    "Good effort! Keep practicing your grammar.",
		Vocabulary: "Nice vocabulary usage! Continue expanding your word choices.",
		Fluency:    "Good conversation flow! Keep practicing to improve fluency.",
	}
}

// complete performs one traced, timed request and returns the reply text.
// Transport failures are wrapped in ErrGenerationFailed.
func (s *Service) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	ctx, span := observe.StartSpan(ctx, "tutor."+op)
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", s.providerName))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = s.llm.Complete(ctx, req)
		return err
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	elapsed := time.Since(start)

	s.metrics.LLMDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("operation", op)))

	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = errors.New("empty reply")
	}
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.providerName, "llm", "error")
		s.metrics.RecordProviderError(ctx, s.providerName, "llm")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	s.metrics.RecordProviderRequest(ctx, s.providerName, "llm", "ok")
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	observe.Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "tutor: llm request done",
		slog.String("operation", op),
		slog.Duration("duration", elapsed),
	)
	return resp.Content, nil
}
