// Command interviewer runs a voice interview on the local microphone and
// speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	orchestration "github.com/koscakluka/ema-interview/core"
	"github.com/koscakluka/ema-interview/core/audio/miniaudio"
	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/llms/groq"
	"github.com/koscakluka/ema-interview/core/metrics"
	"github.com/koscakluka/ema-interview/core/persistence"
	redisstore "github.com/koscakluka/ema-interview/core/persistence/redis"
	"github.com/koscakluka/ema-interview/core/planner"
	sttdeepgram "github.com/koscakluka/ema-interview/core/speechtotext/deepgram"
	ttsdeepgram "github.com/koscakluka/ema-interview/core/texttospeech/deepgram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := run(); err != nil {
		slog.Error("interviewer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	candidate := flag.String("candidate", "", "candidate name")
	position := flag.String("position", "", "position the candidate applies for")
	room := flag.String("room", "local", "room reference stored with the session")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	fileConfig, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fileConfig.applyEnv()
	config, err := fileConfig.orchestration()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	interviewMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if fileConfig.MetricsAddr != "" {
		server := serveMetrics(fileConfig.MetricsAddr, registry)
		defer server.Close()
	}

	services, cleanup, err := buildServices(ctx, fileConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	pool, err := orchestration.NewServicePool(services)
	if err != nil {
		return err
	}

	opts := []orchestration.ManagerOption{
		orchestration.WithConfig(config),
		orchestration.WithMetrics(interviewMetrics),
		orchestration.WithEventCallback(logEvent),
	}
	if fileConfig.QuestionBank != "" {
		source, err := os.ReadFile(fileConfig.QuestionBank)
		if err != nil {
			return fmt.Errorf("failed to read question bank: %w", err)
		}
		bank, err := planner.ParseBank(source)
		if err != nil {
			return err
		}
		opts = append(opts, orchestration.WithQuestionBank(bank))
	}
	if fileConfig.FallbackAudio != "" {
		fallback, err := os.ReadFile(fileConfig.FallbackAudio)
		if err != nil {
			return fmt.Errorf("failed to read fallback audio: %w", err)
		}
		opts = append(opts, orchestration.WithFallbackAudio(fallback))
	}

	manager, err := orchestration.NewManager(pool, opts...)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Close(ctx); err != nil {
			slog.Warn("failed to close sessions", "error", err)
		}
		if err := pool.Close(ctx); err != nil {
			slog.Warn("failed to close services", "error", err)
		}
	}()

	id, err := manager.StartSession(ctx, *candidate, *position, *room)
	if err != nil {
		return fmt.Errorf("failed to start interview: %w", err)
	}
	slog.Info("interview started", "session_id", id)

	go func() {
		<-ctx.Done()
		if err := manager.AbortSession(id); err != nil && !errors.Is(err, orchestration.ErrSessionEnded) {
			slog.Warn("failed to abort interview", "session_id", id, "error", err)
		}
	}()

	state, err := manager.Wait(context.Background(), id)
	if err != nil {
		return err
	}
	slog.Info("interview finished",
		"session_id", id,
		"status", state.Status,
		"end_reason", state.EndReason,
		"phase", state.Phase.String(),
		"scores", state.Scores,
	)
	return nil
}

// buildServices connects the collaborators. The LLM and Redis are optional.
func buildServices(ctx context.Context, config fileConfig) (orchestration.Services, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (orchestration.Services, func(), error) {
		cleanup()
		return orchestration.Services{}, nil, err
	}

	transportOptions := []miniaudio.ClientOption{}
	if config.SampleRate > 0 {
		transportOptions = append(transportOptions, miniaudio.WithSampleRate(config.SampleRate))
	}
	transport, err := miniaudio.NewClient(transportOptions...)
	if err != nil {
		return fail(fmt.Errorf("failed to open audio devices: %w", err))
	}
	encoding := transport.EncodingInfo()

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	sttOptions := []sttdeepgram.ClientOption{sttdeepgram.WithEncodingInfo(encoding)}
	if config.SpeechToText.Model != "" {
		sttOptions = append(sttOptions, sttdeepgram.WithModel(config.SpeechToText.Model))
	}
	if config.SpeechToText.Language != "" {
		sttOptions = append(sttOptions, sttdeepgram.WithLanguage(config.SpeechToText.Language))
	}
	stt, err := sttdeepgram.NewClient(deepgramKey, sttOptions...)
	if err != nil {
		transport.Close()
		return fail(fmt.Errorf("failed to create speech to text client: %w", err))
	}
	tts, err := ttsdeepgram.NewTextToSpeechClient(deepgramKey, ttsdeepgram.WithEncodingInfo(encoding))
	if err != nil {
		transport.Close()
		return fail(fmt.Errorf("failed to create text to speech client: %w", err))
	}

	services := orchestration.Services{
		Transport:    transport,
		SpeechToText: stt,
		TextToSpeech: tts,
	}

	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		llmOptions := []groq.ClientOption{}
		if config.LLM.Model != "" {
			llmOptions = append(llmOptions, groq.WithModel(config.LLM.Model))
		}
		services.LLM = groq.NewClient(key, llmOptions...)
	} else {
		slog.Warn("GROQ_API_KEY not set, interviewer lines come from the question bank only")
	}

	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       config.Redis.DB,
		})
		cleanups = append(cleanups, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			transport.Close()
			return fail(fmt.Errorf("failed to reach redis at %s: %w", config.Redis.Addr, err))
		}

		storeOptions := []redisstore.Option{}
		if config.Redis.TTL > 0 {
			storeOptions = append(storeOptions, redisstore.WithTTL(config.Redis.TTL))
		}
		if config.Redis.Prefix != "" {
			storeOptions = append(storeOptions, redisstore.WithPrefix(config.Redis.Prefix))
		}
		services.Persistence = redisstore.NewStore(client, storeOptions...)
	} else {
		services.Persistence = persistence.NewMemoryStore()
	}

	return services, cleanup, nil
}

func logEvent(event events.Event) {
	switch event := event.(type) {
	case events.InterviewerLinePlanned:
		fmt.Printf("Interviewer: %s\n", event.Line)
	case events.CandidateTurnEnded:
		if event.NoResponse {
			fmt.Println("Candidate: (silence)")
		} else {
			fmt.Printf("Candidate: %s\n", event.Text)
		}
	case events.PhaseChanged:
		slog.Info("phase changed", "from", event.From.String(), "to", event.To.String(), "forced", event.Forced)
	case events.ScoreRecorded:
		slog.Info("score recorded", "dimension", event.Dimension, "value", event.Value)
	case events.InterviewerSpeechFailed:
		slog.Warn("interviewer line failed", "error", event.Err)
	default:
		slog.Debug("session event", "kind", event.Kind())
	}
}
