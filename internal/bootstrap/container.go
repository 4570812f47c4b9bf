package bootstrap

import (
	"context"
	"log"
	"os"

	"ai-taskagent-be/internal/config"
	"ai-taskagent-be/internal/controller"
	"ai-taskagent-be/internal/pkg/logger"
	"ai-taskagent-be/internal/repository/unitofwork"
	"ai-taskagent-be/internal/service"
	"ai-taskagent-be/internal/workflows"
	"ai-taskagent-be/pkg/agent/analyzer"
	"ai-taskagent-be/pkg/agent/contextstore"
	"ai-taskagent-be/pkg/agent/inference"
	"ai-taskagent-be/pkg/agent/orchestrator"
	"ai-taskagent-be/pkg/agent/resolver"
	agentsearch "ai-taskagent-be/pkg/agent/search"
	"ai-taskagent-be/pkg/agent/workflow"
	"ai-taskagent-be/pkg/embedding"
	"ai-taskagent-be/pkg/embedding/jina"
	"ai-taskagent-be/pkg/llm/factory"

	pktNats "ai-taskagent-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController   controller.IAuthController
	AgentController  controller.IAgentController
	RecordController controller.IRecordController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	AuditService    service.IAuditService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	agentLogger := log.New(os.Stdout, "", log.LstdFlags)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Keys.Jina)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.HuggingFace,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	// NATS (audit events; the agent runs fine without it)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis (agent session context)
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)

	var sessionStore contextstore.ContextStore
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Falling back to in-memory session store", err)
		sessionStore = contextstore.NewMemoryStore(cfg.Agent.SessionTTL)
	} else {
		sessionStore = contextstore.NewRedisStore(rdb, cfg.Agent.SessionTTL)
	}

	// 5. Embedding Pipeline
	publisherService := service.NewPublisherService(cfg.Keys.EmbedRecordTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Keys.EmbedRecordTopic,
		uowFactory,
		embeddingProvider,
		cfg.Ai.ChunkSize,
		cfg.Ai.ChunkOverlap,
	)

	// 6. Agent Core
	registry := workflow.NewRegistry()
	if err := workflows.RegisterAll(registry); err != nil {
		log.Fatalf("[FATAL] Workflow catalog invalid: %v", err)
	}

	resolverConfig := resolver.DefaultConfig()
	resolverConfig.AutoSelectThreshold = cfg.Agent.AutoSelectThreshold
	resolverConfig.AmbiguousThreshold = cfg.Agent.AmbiguousThreshold

	recordStore := agentsearch.NewRecordStore(uowFactory, publisherService, agentLogger)
	entityResolver := resolver.NewResolver(
		agentsearch.NewVectorSearch(uowFactory, embeddingProvider, agentLogger),
		agentsearch.NewDBSearch(uowFactory, agentLogger),
		recordStore,
		resolverConfig,
		agentLogger,
	)

	inferenceClient := inference.NewLLMClient(llmProvider, agentLogger)
	engine := workflow.NewEngine(registry, entityResolver, recordStore, inferenceClient, agentLogger)
	messageAnalyzer := analyzer.NewAnalyzer(inferenceClient, registry, agentLogger)
	accessPolicy := service.NewAccessPolicy(uowFactory)

	var auditPublisher orchestrator.EventPublisher
	if natsPub != nil {
		auditPublisher = natsPub
	}

	agentOrchestrator := orchestrator.NewOrchestrator(
		sessionStore,
		messageAnalyzer,
		engine,
		inferenceClient,
		accessPolicy,
		auditPublisher,
		agentLogger,
	)

	// 7. Services
	authService := service.NewAuthService(uowFactory)
	agentService := service.NewAgentService(uowFactory, agentOrchestrator, sysLogger)
	recordService := service.NewRecordService(uowFactory, publisherService, natsWrapper(natsPub), sysLogger)

	// 8. Controllers
	return &Container{
		AuthController:   controller.NewAuthController(authService),
		AgentController:  controller.NewAgentController(agentService),
		RecordController: controller.NewRecordController(recordService),

		ConsumerService: consumerService,
		AuditService:    service.NewAuditService(natsSub, sysLogger),
	}
}

// natsWrapper avoids handing services a typed-nil interface when NATS
// is down.
func natsWrapper(pub *pktNats.Publisher) service.NatsEventPublisher {
	if pub == nil {
		return nil
	}
	return pub
}
