// Command narrata loads configuration, wires the engine's components
// together, and either runs one narrative to completion or starts the
// recurring-task supervisor loop. It is the only entry point into the
// process — there is no HTTP API and no distributed coordination, so
// wiring happens once here rather than behind a server mux.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"narrata/internal/config"
	"narrata/internal/content"
	"narrata/internal/executor"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/live"
	"narrata/internal/llm"
	"narrata/internal/llm/providers"
	"narrata/internal/narrative"
	"narrata/internal/observability"
	"narrata/internal/platform"
	"narrata/internal/processor"
	"narrata/internal/ratelimit"
	"narrata/internal/resolve"
	"narrata/internal/storage"
	"narrata/internal/task"
)

func main() {
	narrativeName := flag.String("narrative", "", "run this narrative once and exit, instead of starting the supervisor loop")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shut down telemetry cleanly")
		}
	}()

	store, err := storage.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	engine, actor, err := build(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire engine components")
	}
	defer actor.Close()

	loadNarrative := func(ctx context.Context, name string) (narrative.Narrative, error) {
		path := filepath.Join(cfg.NarrativeDir, name+".toml")
		nf, err := config.LoadNarrativeFile(path)
		if err != nil {
			return narrative.Narrative{}, err
		}
		return narrative.Build(nf)
	}

	if *narrativeName != "" {
		n, err := loadNarrative(ctx, *narrativeName)
		if err != nil {
			log.Fatal().Err(err).Str("narrative", *narrativeName).Msg("failed to load narrative")
		}
		rec, err := engine.Run(ctx, n)
		if err != nil {
			log.Fatal().Err(err).Str("narrative", *narrativeName).Str("status", string(rec.Status)).Msg("narrative run failed")
		}
		log.Info().Str("narrative", *narrativeName).Int("acts", len(rec.Acts)).Msg("narrative run completed")
		return
	}

	sup := task.New(store, engine, loadNarrative, cfg.Supervisor.MaxFailures)
	log.Info().Dur("interval", cfg.Supervisor.Interval).Msg("starting task supervisor")
	sup.Run(ctx, cfg.Supervisor.Interval)

	if n, err := sup.Prune(context.Background(), cfg.Supervisor.PruneAfterDays); err != nil {
		log.Error().Err(err).Msg("failed to prune old task executions on shutdown")
	} else if n > 0 {
		log.Info().Int64("deleted", n).Msg("pruned old task executions on shutdown")
	}
}

// build constructs the narrative executor and the content-generation
// actor it's wired to, constructing them in the order rate limiting ->
// client pool -> streaming -> dispatcher -> resolvers -> processors ->
// executor, so each one exists before the component that takes it.
// Every component here is a consumer-defined interface
// implementation from one of the internal packages; main is the only
// place that imports all of them at once.
func build(cfg config.Config, store *storage.Store) (*executor.Executor, *content.Actor, error) {
	httpClient := observability.NewHTTPClient(nil)

	tiers, err := config.LoadTierConfig(cfg.TierConfigPath, cfg.ConfigSearchPaths)
	if err != nil {
		return nil, nil, narrataerrors.Wrap(narrataerrors.KindConfigurationInvalid, "tier_config", err)
	}

	var redisCounter *ratelimit.RedisRPDCounter
	if cfg.Redis.Enabled {
		redisCounter, err = ratelimit.NewRedisRPDCounter(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
	}
	limiter := ratelimit.NewManager(tiers, cfg.DefaultProvider, redisCounter)
	httpClient.Transport = ratelimit.NewObservingTransport(httpClient.Transport, limiter)

	pool := llm.NewPool(cfg, httpClient, providers.Build)

	var liveSession *live.Dialer
	if cfg.Google.LiveBaseURL != "" && os.Getenv(cfg.Google.APIKeyEnv) != "" {
		liveSession, err = live.NewDialer(cfg.Google, cfg.Supervisor.LiveMessagesPerMinute)
		if err != nil {
			return nil, nil, err
		}
	}

	var dispatcherLive llm.LiveSession
	if liveSession != nil {
		dispatcherLive = liveSession
	}
	dispatcher := llm.NewDispatcher(pool, limiter, dispatcherLive, cfg.DefaultProvider)

	registry := platform.NewRegistry()
	resolver := resolve.New(registry, store, httpClient, 0)

	actor := content.NewActor(store)
	processors := processor.NewRegistry()
	processors.Register(content.NewProcessor(actor))

	defaults := executor.Defaults{
		Model:       defaultModel(cfg),
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.DefaultMaxTokens,
	}

	return executor.New(resolver, dispatcher, processors, store, defaults), actor, nil
}

func defaultModel(cfg config.Config) string {
	switch cfg.DefaultProvider {
	case "openai":
		return cfg.OpenAI.Model
	case "google":
		return cfg.Google.Model
	default:
		return cfg.Anthropic.Model
	}
}
