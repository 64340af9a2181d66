// Command companiond runs the conversational companion daemon: an
// HTTP/WebSocket surface over a mood-tracking, persona-driven chat core
// with continuous voice listening and live-chat ingestion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/normanking/cortexcompanion/internal/ai"
	"github.com/normanking/cortexcompanion/internal/audio"
	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/config"
	"github.com/normanking/cortexcompanion/internal/ingest"
	"github.com/normanking/cortexcompanion/internal/listen"
	"github.com/normanking/cortexcompanion/internal/logging"
	"github.com/normanking/cortexcompanion/internal/mood"
	"github.com/normanking/cortexcompanion/internal/persona"
	"github.com/normanking/cortexcompanion/internal/queue"
	"github.com/normanking/cortexcompanion/internal/server"
	"github.com/normanking/cortexcompanion/internal/store"
	"github.com/normanking/cortexcompanion/internal/turn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "companiond:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set environment directly.
	_ = godotenv.Load()

	var (
		flagPort    = pflag.Int("port", 0, "HTTP listen port (overrides config)")
		flagPersona = pflag.String("persona", "", "persona to activate (overrides config)")
		flagUser    = pflag.String("user", "", "user display name (overrides config)")
		flagNoVoice = pflag.Bool("no-voice", false, "disable microphone capture and speech playback")
		flagDevice  = pflag.Int("device", -2, "audio input device index (-1 for default)")
	)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *flagPort > 0 {
		cfg.Server.Port = *flagPort
	}
	if *flagPersona != "" {
		cfg.User.PersonaID = *flagPersona
	}
	if *flagUser != "" {
		cfg.User.Name = *flagUser
	}
	if *flagDevice > -2 {
		cfg.Audio.DeviceIndex = *flagDevice
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("no OpenAI API key: set openai.api_key or OPENAI_API_KEY")
	}

	logger, err := logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   logging.LogLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	log := logger.Zerolog()
	log.Info().Str("log_file", logger.LogPath()).Msg("Companion daemon starting")

	// Hosted AI backend.
	openaiClient := ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, &ai.OpenAIConfig{
		ChatModel:       cfg.OpenAI.ChatModel,
		SentimentModel:  cfg.OpenAI.SentimentModel,
		WhisperModel:    cfg.OpenAI.TranscribeModel,
		SpeechModel:     cfg.OpenAI.SpeechModel,
		Voice:           cfg.OpenAI.SpeechVoice,
		EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
		ModerationModel: ai.DefaultOpenAIConfig().ModerationModel,
	}, log)

	// Session state: personas, mood, history.
	personas := persona.NewManager()
	if err := personas.Select(cfg.User.PersonaID); err != nil {
		return fmt.Errorf("select persona: %w", err)
	}
	session := turn.NewSession(cfg.History.MaxMessages, mood.Config{
		Scores: map[mood.Sentiment]float64{
			mood.SentimentPositive: cfg.Mood.PositiveScore,
			mood.SentimentNeutral:  0,
			mood.SentimentNegative: cfg.Mood.NegativeScore,
		},
		MinLevel: cfg.Mood.MinLevel,
		MaxLevel: cfg.Mood.MaxLevel,
	}, personas, cfg.User.Name)

	collab := turn.Collaborators{
		Completer:  openaiClient,
		Moderator:  openaiClient,
		Classifier: buildClassifier(cfg.Mood.Strategy, openaiClient, log),
	}

	if cfg.Store.Enabled {
		transcripts, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open transcript store: %w", err)
		}
		defer transcripts.Close()
		collab.Transcripts = transcripts

		ctx := context.Background()
		if err := session.Restore(ctx, transcripts); err != nil {
			log.Warn().Err(err).Msg("Transcript restore failed, starting fresh")
		}
	}

	if cfg.Search.IndexURL != "" {
		collab.Searcher = ai.NewVectorSearcher(openaiClient, cfg.Search.IndexURL, cfg.Search.APIKey, cfg.Search.TopK, log)
	}

	var capturer audio.Capturer
	if !*flagNoVoice {
		collab.Speaker = ai.NewVoiceSpeaker(openaiClient, nil, log)
		capturer = audio.NewRecorder(audio.Config{
			SampleRate:   cfg.Audio.SampleRate,
			FrameSize:    cfg.Audio.SampleRate / 50,
			SilenceRMS:   cfg.Audio.SilenceRMS,
			TrailingGap:  cfg.Audio.TrailingGap,
			MaxUtterance: cfg.Audio.MaxUtterance,
			DeviceIndex:  cfg.Audio.DeviceIndex,
		}, log)
	}

	orchestrator := turn.New(session, turn.Config{
		Temperature:        cfg.OpenAI.Temperature,
		MaxTokens:          cfg.OpenAI.MaxTokens,
		FallbackMessage:    turn.DefaultConfig().FallbackMessage,
		ModerationFallback: turn.DefaultConfig().ModerationFallback,
		SpeechTimeout:      turn.DefaultConfig().SpeechTimeout,
	}, collab, log)

	inputs := queue.New(queue.Config{
		HighCapacity: cfg.Queue.HighCapacity,
		LowCapacity:  cfg.Queue.LowCapacity,
		PollInterval: cfg.Queue.PollInterval,
	}, log)

	events := bus.NewEventBus()

	var listenSess *listen.Session
	if capturer != nil {
		listenSess = listen.NewSession(listen.Config{
			Tick:           cfg.Listen.Tick,
			IdleThreshold:  cfg.Listen.IdleThreshold,
			MaxIdlePrompts: cfg.Listen.MaxIdlePrompts,
			QuitKeyword:    cfg.Listen.QuitKeyword,
		}, capturer, openaiClient, orchestrator, personas, log)
		defer capturer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ingestWorker *ingest.Worker
	if cfg.Ingest.Enabled {
		feed, err := ingest.NewDiscordFeed(cfg.Ingest.DiscordToken, cfg.Ingest.ChannelID, log)
		if err != nil {
			log.Warn().Err(err).Msg("Live-chat feed unavailable, ingestion disabled")
		} else {
			defer feed.Close()
			ingestWorker = ingest.NewWorker(ingest.Config{
				PollInterval: cfg.Ingest.PollInterval,
				MaxLength:    cfg.Ingest.MaxLength,
			}, feed, inputs, events, log)
			ingestWorker.Start(ctx)
		}
	}

	var captioner ai.Captioner
	if cfg.Caption.APIKey != "" {
		captioner = ai.NewHFCaptioner(cfg.Caption.APIKey, cfg.Caption.BaseURL, log)
	}

	srv := server.New(cfg.Server, server.Deps{
		Orchestrator: orchestrator,
		Inputs:       inputs,
		ListenSess:   listenSess,
		IngestWorker: ingestWorker,
		Transcriber:  openaiClient,
		Captioner:    captioner,
		Events:       events,
	}, log)

	serveErr := srv.Start(ctx)

	// Hot-reload the tunables that can change without a restart. The
	// OpenAI client, store, and transport keep their boot-time settings.
	config.Watch(func(fresh *config.Config) {
		inputs.Resize(fresh.Queue.HighCapacity, fresh.Queue.LowCapacity)
		session.Mood.Reconfigure(mood.Config{
			Scores: map[mood.Sentiment]float64{
				mood.SentimentPositive: fresh.Mood.PositiveScore,
				mood.SentimentNeutral:  0,
				mood.SentimentNegative: fresh.Mood.NegativeScore,
			},
			MinLevel: fresh.Mood.MinLevel,
			MaxLevel: fresh.Mood.MaxLevel,
		})
		if listenSess != nil {
			listenSess.UpdateConfig(listen.Config{
				Tick:           fresh.Listen.Tick,
				IdleThreshold:  fresh.Listen.IdleThreshold,
				MaxIdlePrompts: fresh.Listen.MaxIdlePrompts,
				QuitKeyword:    fresh.Listen.QuitKeyword,
			})
		}
		log.Info().Msg("Configuration reloaded")
	})

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildClassifier picks the sentiment strategy: the lexical scorer runs
// locally and free, the llm strategy asks the chat model.
func buildClassifier(strategy string, client *ai.OpenAIClient, log zerolog.Logger) mood.Classifier {
	switch strategy {
	case "llm":
		return ai.NewModelClassifier(client)
	default:
		if strategy != "lexical" {
			log.Warn().Str("strategy", strategy).Msg("Unknown mood strategy, using lexical")
		}
		return mood.NewLexicalClassifier()
	}
}
