package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	responderx "github.com/fernandofuc/tistis-platform-sub010/agent/agents/responder"
	routerx "github.com/fernandofuc/tistis-platform-sub010/agent/agents/router"
	specialistx "github.com/fernandofuc/tistis-platform-sub010/agent/agents/specialist"
	aggregatex "github.com/fernandofuc/tistis-platform-sub010/agent/aggregate"
	bookingx "github.com/fernandofuc/tistis-platform-sub010/agent/booking"
	breakerx "github.com/fernandofuc/tistis-platform-sub010/agent/breaker"
	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	convstatex "github.com/fernandofuc/tistis-platform-sub010/agent/convstate"
	crmx "github.com/fernandofuc/tistis-platform-sub010/agent/crm"
	embeddingx "github.com/fernandofuc/tistis-platform-sub010/agent/embedding"
	learningx "github.com/fernandofuc/tistis-platform-sub010/agent/learning"
	legacyx "github.com/fernandofuc/tistis-platform-sub010/agent/legacy"
	llmx "github.com/fernandofuc/tistis-platform-sub010/agent/llm"
	metricsx "github.com/fernandofuc/tistis-platform-sub010/agent/metrics"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	promptgenx "github.com/fernandofuc/tistis-platform-sub010/agent/promptgen"
	ragx "github.com/fernandofuc/tistis-platform-sub010/agent/rag"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
	toolx "github.com/fernandofuc/tistis-platform-sub010/agent/tool"
	configx "github.com/fernandofuc/tistis-platform-sub010/pkg/config"
	_ "github.com/fernandofuc/tistis-platform-sub010/pkg/logger/autoload"
	openrouterx "github.com/fernandofuc/tistis-platform-sub010/pkg/openrouter"
	qstashx "github.com/fernandofuc/tistis-platform-sub010/pkg/qstash"
	serverx "github.com/fernandofuc/tistis-platform-sub010/server"
)

type AppConfig struct {
	DatabaseURL       string `envconfig:"DATABASE_URL" split_words:"true"`
	LearningUpdateURL string `envconfig:"LEARNING_UPDATE_URL" split_words:"true"`
}

// crmReader is what the aggregator needs from the CRM side; both the PG and
// memory stores satisfy it.
type crmReader interface {
	contractx.TenantStore
	contractx.LoyaltyStore
	contractx.LearningStore
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	// Persistence. Without DATABASE_URL everything runs on in-memory stores,
	// which only makes sense for a single node.
	var (
		promptStore  promptcachex.Store
		snapshots    contractx.SnapshotSource
		crmStore     crmReader
		metricsStore contractx.MetricsRecorder
	)
	if appCfg.DatabaseURL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(appCfg.DatabaseURL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres unreachable")
		}
		defer db.Close()

		promptStore = promptcachex.NewPGStore(db)
		snapshots = snapshotx.NewPGSource(db)
		crmStore = crmx.NewPGStore(db)
		metricsStore = metricsx.NewPGRecorder(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		promptStore = promptcachex.NewMemoryStore()
		snapshots = snapshotx.NewMemorySource()
		crmStore = crmx.NewMemoryStore()
		metricsStore = metricsx.NewMemoryRecorder()
	}

	cache, err := promptcachex.New(promptStore)
	if err != nil {
		log.Fatal().Err(err).Msg("create prompt cache")
	}

	// Prompt generation uses the raw SDK client; router and specialist go
	// through eino chat models.
	generatorCfg := llmCfg.OpenRouterFor(llmx.RoleGenerator)
	sdkClient := openrouterx.NewClient(generatorCfg)
	if sdkClient == nil {
		log.Fatal().Msg("openrouter client initialization failed")
	}
	synth, err := promptgenx.NewChatSynthesizer(sdkClient, generatorCfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("create prompt synthesizer")
	}
	generator, err := promptgenx.NewGenerator(synth, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("create prompt generator")
	}

	aggregator, err := aggregatex.New(crmStore, snapshots, crmStore, crmStore, cache, generator)
	if err != nil {
		log.Fatal().Err(err).Msg("create context aggregator")
	}

	// Knowledge retrieval.
	embedCfg := configx.MustNew[embeddingx.Config]("EMBEDDING")
	embedder, err := embeddingx.NewClient(*embedCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create embedding client")
	}
	index := ragx.NewIndex()
	retriever, err := ragx.NewRetriever(embedder, index)
	if err != nil {
		log.Fatal().Err(err).Msg("create retriever")
	}
	ragLoader, err := ragx.NewLoader(snapshots, embedder, index)
	if err != nil {
		log.Fatal().Err(err).Msg("create knowledge loader")
	}

	// Tools. Appointments stay disabled unless the booking action layer is
	// configured; capability gating handles the rest per tenant.
	tools := []toolx.Tool{
		toolx.NewKnowledgeSearchTool(retriever, ragLoader),
		toolx.NewBusinessLookupTool(snapshots),
	}
	if bookingCfg, err := configx.New[bookingx.Config]("BOOKING"); err == nil {
		bookings, err := bookingx.NewClient(*bookingCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create booking client")
		}
		tools = append(tools, toolx.NewCreateAppointmentTool(bookings))
	} else {
		log.Warn().Msg("booking action layer not configured, appointments tool disabled")
	}
	registry, err := toolx.NewRegistry(tools...)
	if err != nil {
		log.Fatal().Err(err).Msg("create tool registry")
	}
	executor, err := toolx.NewExecutor(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("create tool executor")
	}

	// Chat models per role.
	routerModelCfg := llmCfg.OpenRouterFor(llmx.RoleRouter)
	routerModel, err := routerModelCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create router chat model")
	}
	intentRouter, err := routerx.New(ctx, routerModel)
	if err != nil {
		log.Fatal().Err(err).Msg("create intent router")
	}

	specialistModelCfg := llmCfg.OpenRouterFor(llmx.RoleSpecialist)
	specialistModel, err := specialistModelCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create specialist chat model")
	}
	specialist, err := specialistx.New(ctx, specialistModel, registry.Infos())
	if err != nil {
		log.Fatal().Err(err).Msg("create specialist")
	}

	// Optional side-effect collaborators.
	var conversations contractx.ConversationStore
	if convCfg, err := configx.New[convstatex.UpstashRedisConfig]("UPSTASH_REDIS"); err == nil {
		conversations, err = convstatex.NewUpstashRedisStore(*convCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create conversation store")
		}
	} else {
		log.Warn().Msg("upstash redis not configured, conversation context disabled")
	}

	var learningQueue contractx.LearningQueue
	if qstashCfg, err := configx.New[qstashx.Config]("QSTASH"); err == nil && appCfg.LearningUpdateURL != "" {
		qstashClient, err := qstashx.NewClient(*qstashCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create qstash client")
		}
		learningQueue, err = learningx.NewQStashQueue(qstashClient, appCfg.LearningUpdateURL)
		if err != nil {
			log.Fatal().Err(err).Msg("create learning queue")
		}
	} else {
		log.Warn().Msg("qstash not configured, learning updates disabled")
	}

	service, err := responderx.New(responderx.Deps{
		Aggregator:    aggregator,
		Router:        intentRouter,
		Specialist:    specialist,
		Tools:         executor,
		Conversations: conversations,
		Learning:      learningQueue,
		Metrics:       metricsStore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create response service")
	}

	fallback, err := legacyx.New(snapshots)
	if err != nil {
		log.Fatal().Err(err).Msg("create legacy responder")
	}

	handlers, err := serverx.NewHandlers(service, fallback, breakerx.New(), cache, snapshots)
	if err != nil {
		log.Fatal().Err(err).Msg("create http handlers")
	}

	srv := serverx.New(*configx.MustNew[serverx.Config]("SERVER"), handlers)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
