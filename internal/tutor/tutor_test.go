package tutor_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/resilience"
	"github.com/MrWong99/lingotutor/internal/tutor"
	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/provider/llm/mock"
	"github.com/MrWong99/lingotutor/pkg/types"
)

func newService(t *testing.T, p llm.Provider, opts ...tutor.Option) *tutor.Service {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return tutor.New(p, append([]tutor.Option{tutor.WithMetrics(m)}, opts...)...)
}

func reply(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestGenerateStories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		want      []string
		wantError bool
	}{
		{
			name:    "bare array",
			content: `[{"title":"A","content":"One."},{"title":"B","content":"Two."}]`,
			want:    []string{"A", "B"},
		},
		{
			name:    "stories wrapper",
			content: `{"stories":[{"title":"A","content":"One."}]}`,
			want:    []string{"A"},
		},
		{
			name:    "data wrapper in markdown fence",
			content: "```json\n{\"data\":[{\"title\":\"A\",\"content\":\"One.\"}]}\n```",
			want:    []string{"A"},
		},
		{
			name:    "single unknown array field",
			content: `{"short_stories":[{"title":"A","content":"One."}],"count":1}`,
			want:    []string{"A"},
		},
		{
			name:    "incomplete entries dropped",
			content: `[{"title":"A","content":"One."},{"title":"","content":"x"},{"title":"C"}]`,
			want:    []string{"A"},
		},
		{
			name:      "no complete story",
			content:   `[{"title":"A"}]`,
			wantError: true,
		},
		{
			name:      "not json",
			content:   `Here are some stories!`,
			wantError: true,
		},
		{
			name:      "object without list",
			content:   `{"title":"A","content":"One."}`,
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := reply(tt.content)
			stories, err := newService(t, p).GenerateStories(context.Background())
			if tt.wantError {
				if !errors.Is(err, tutor.ErrGenerationFailed) {
					t.Fatalf("err = %v, want ErrGenerationFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var titles []string
			for _, s := range stories {
				titles = append(titles, s.Title)
			}
			if strings.Join(titles, ",") != strings.Join(tt.want, ",") {
				t.Errorf("titles = %v, want %v", titles, tt.want)
			}
			if req := p.Calls()[0].Req; !req.JSONMode || req.SystemPrompt == "" {
				t.Errorf("request = %+v, want JSON mode with a system prompt", req)
			}
		})
	}
}

func TestGenerateStories_TransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	_, err := newService(t, &mock.Provider{CompleteErr: cause}).GenerateStories(context.Background())
	if !errors.Is(err, tutor.ErrGenerationFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrGenerationFailed wrapping the cause", err)
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	p := reply(`  "How are you?"  `)
	got, err := newService(t, p).Translate(context.Background(), "آپ کیسے ہیں؟")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "How are you?" {
		t.Errorf("Translate = %q, want %q", got, "How are you?")
	}
	prompt := p.Calls()[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Urdu to English") || !strings.Contains(prompt, "آپ کیسے ہیں؟") {
		t.Errorf("prompt = %q", prompt)
	}

	if _, err := newService(t, p).Translate(context.Background(), "   "); !errors.Is(err, tutor.ErrEmptyText) {
		t.Errorf("blank input err = %v, want ErrEmptyText", err)
	}
	if _, err := newService(t, reply("")).Translate(context.Background(), "x"); !errors.Is(err, tutor.ErrGenerationFailed) {
		t.Errorf("empty reply err = %v, want ErrGenerationFailed", err)
	}
}

func TestGenerateExerciseList(t *testing.T) {
	t.Parallel()

	t.Run("catalog categories skip the model", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{}
		svc := newService(t, p)
		for _, c := range []types.ExerciseCategory{types.CategoryGrammar, types.CategoryVocabulary} {
			items, err := svc.GenerateExerciseList(context.Background(), c)
			if err != nil {
				t.Fatalf("%s: %v", c, err)
			}
			if len(items) != 10 {
				t.Errorf("%s: %d items, want 10", c, len(items))
			}
		}
		if n := len(p.Calls()); n != 0 {
			t.Errorf("model called %d times, want 0", n)
		}
	})

	t.Run("conversation topics are generated", func(t *testing.T) {
		t.Parallel()
		p := reply(`{"exercises":[{"title":"Dream jobs","description":"Talk about work."},{"title":" ","description":"x"}]}`)
		items, err := newService(t, p).GenerateExerciseList(context.Background(), types.CategoryConversation)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 1 || items[0].Title != "Dream jobs" {
			t.Errorf("items = %+v", items)
		}
		if !strings.Contains(p.Calls()[0].Req.Messages[0].Content, "conversation topics") {
			t.Error("expected the conversation topic prompt")
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		t.Parallel()
		_, err := newService(t, &mock.Provider{}).GenerateExerciseList(context.Background(), "Spelling")
		if !errors.Is(err, tutor.ErrUnknownCategory) {
			t.Errorf("err = %v, want ErrUnknownCategory", err)
		}
	})
}

func TestExerciseDetails(t *testing.T) {
	t.Parallel()

	t.Run("conversation brief", func(t *testing.T) {
		t.Parallel()
		ex, err := newService(t, &mock.Provider{}).ExerciseDetails(context.Background(),
			types.ExerciseListItem{Title: "Travel"}, types.CategoryConversation)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex.Category != types.CategoryConversation || ex.Title != "Travel" || !strings.Contains(ex.Description, "I'm done") {
			t.Errorf("exercise = %+v", ex)
		}
	})

	t.Run("catalog entry", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{}
		ex, err := newService(t, p).ExerciseDetails(context.Background(),
			types.ExerciseListItem{Title: "Modal Verbs"}, types.CategoryGrammar)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex.Category != types.CategoryGrammar || ex.Example == "" {
			t.Errorf("exercise = %+v", ex)
		}
		if len(p.Calls()) != 0 {
			t.Error("catalog entries must not call the model")
		}
	})

	t.Run("generated details keep the requested category", func(t *testing.T) {
		t.Parallel()
		p := reply(`{"category":"Spelling","description":"Use phrasal verbs.","example":"I gave up."}`)
		ex, err := newService(t, p).ExerciseDetails(context.Background(),
			types.ExerciseListItem{Title: "Phrasal Verbs", Description: "Learn phrasal verbs."}, types.CategoryVocabulary)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := types.Exercise{Category: types.CategoryVocabulary, Title: "Phrasal Verbs", Description: "Use phrasal verbs.", Example: "I gave up."}
		if ex != want {
			t.Errorf("exercise = %+v, want %+v", ex, want)
		}
	})

	t.Run("missing description", func(t *testing.T) {
		t.Parallel()
		_, err := newService(t, reply(`{"title":"x"}`)).ExerciseDetails(context.Background(),
			types.ExerciseListItem{Title: "Unknown"}, types.CategoryGrammar)
		if !errors.Is(err, tutor.ErrGenerationFailed) {
			t.Errorf("err = %v, want ErrGenerationFailed", err)
		}
	})
}

func TestFeedback(t *testing.T) {
	t.Parallel()

	history := []types.ChatMessage{
		{Role: types.RoleAssistant, Text: "Tell me about your weekend."},
		{Role: types.RoleUser, Text: "I goed to the park."},
	}

	tests := []struct {
		name    string
		p       *mock.Provider
		want    types.Feedback
		checkIn bool
	}{
		{
			name:    "valid reply",
			p:       reply(`{"score": 81.6, "grammar": "g", "vocabulary": "v", "fluency": "f"}`),
			want:    types.Feedback{Score: 82, Grammar: "g", Vocabulary: "v", Fluency: "f"},
			checkIn: true,
		},
		{
			name: "score clamped",
			p:    reply(`{"score": 140, "grammar": "g", "vocabulary": "v", "fluency": "f"}`),
			want: types.Feedback{Score: 100, Grammar: "g", Vocabulary: "v", Fluency: "f"},
		},
		{
			name: "missing field",
			p:    reply(`{"score": 90, "grammar": "g"}`),
			want: tutor.DefaultFeedback(),
		},
		{
			name: "unparseable",
			p:    reply(`great job!`),
			want: tutor.DefaultFeedback(),
		},
		{
			name: "transport error",
			p:    &mock.Provider{CompleteErr: errors.New("timeout")},
			want: tutor.DefaultFeedback(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := newService(t, tt.p).Feedback(context.Background(), history)
			if got != tt.want {
				t.Errorf("Feedback = %+v, want %+v", got, tt.want)
			}
			if tt.checkIn {
				prompt := tt.p.Calls()[0].Req.Messages[0].Content
				if !strings.Contains(prompt, "Tutor: Tell me about your weekend.\nStudent: I goed to the park.") {
					t.Errorf("prompt missing chat history:\n%s", prompt)
				}
			}
		})
	}
}

func TestDefaultFeedback(t *testing.T) {
	t.Parallel()
	if fb := tutor.DefaultFeedback(); fb.Score != 75 || fb.Grammar == "" || fb.Vocabulary == "" || fb.Fluency == "" {
		t.Errorf("DefaultFeedback = %+v", fb)
	}
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("down")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "llm", MaxFailures: 2, ResetTimeout: time.Hour,
	})
	svc := newService(t, p, tutor.WithCircuitBreaker(cb))

	for range 4 {
		_, _ = svc.Translate(context.Background(), "x")
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("model called %d times, want 2", n)
	}
	_, err := svc.Translate(context.Background(), "x")
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, tutor.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrCircuitOpen wrapped in ErrGenerationFailed", err)
	}
}

func TestTimeoutBoundsRequest(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	_, err := newService(t, p, tutor.WithTimeout(10*time.Millisecond)).Translate(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRecordsSpanAndMetrics(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	svc := tutor.New(reply("Hello"), tutor.WithMetrics(m), tutor.WithProviderName("openai"))
	if _, err := svc.Translate(context.Background(), "سلام"); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "tutor.translate" {
		t.Fatalf("spans = %+v, want one tutor.translate span", spans)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			found[met.Name] = true
		}
	}
	for _, name := range []string{"lingotutor.llm.duration", "lingotutor.provider.requests"} {
		if !found[name] {
			t.Errorf("metric %q not recorded", name)
		}
	}
}
