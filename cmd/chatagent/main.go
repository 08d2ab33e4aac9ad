// Command chatagent is the process entry point for the chatflow build/edit
// session runtime (spec §6): it loads config.Config from the environment,
// wires every collaborator a staged-graph node needs, registers the
// session workflow with an in-memory engine (internal/graph/engine/inmem;
// a production deployment swaps in internal/graph/engine/temporal behind
// the same engine.Engine interface), and drives one session end to end
// for a requirement given on the command line.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowcraft/chatagent/internal/checkpoint"
	checkpointinmem "github.com/flowcraft/chatagent/internal/checkpoint/inmem"
	checkpointmongo "github.com/flowcraft/chatagent/internal/checkpoint/mongo"
	"github.com/flowcraft/chatagent/internal/config"
	"github.com/flowcraft/chatagent/internal/domain"
	"github.com/flowcraft/chatagent/internal/domain/chatflow"
	"github.com/flowcraft/chatagent/internal/events"
	eventsinmem "github.com/flowcraft/chatagent/internal/events/inmem"
	eventsmongo "github.com/flowcraft/chatagent/internal/events/mongo"
	"github.com/flowcraft/chatagent/internal/events/redispub"
	"github.com/flowcraft/chatagent/internal/graph/engine"
	"github.com/flowcraft/chatagent/internal/graph/engine/inmem"
	"github.com/flowcraft/chatagent/internal/ingress"
	"github.com/flowcraft/chatagent/internal/knowledge/credential"
	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
	patterninmem "github.com/flowcraft/chatagent/internal/knowledge/pattern/inmem"
	patternmongo "github.com/flowcraft/chatagent/internal/knowledge/pattern/mongo"
	"github.com/flowcraft/chatagent/internal/knowledge/template"
	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/llm/anthropic"
	"github.com/flowcraft/chatagent/internal/llm/gateway"
	"github.com/flowcraft/chatagent/internal/llm/openai"
	"github.com/flowcraft/chatagent/internal/graph/nodes"
	"github.com/flowcraft/chatagent/internal/platform"
	"github.com/flowcraft/chatagent/internal/session"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

// taskQueue is the single in-process queue this binary's demo engine runs
// against; a production deployment on Temporal assigns one per worker pool
// instead.
const taskQueue = "chatagent.default"

func main() {
	requirement := strings.Join(os.Args[1:], " ")
	if requirement == "" {
		requirement = "Create a chatflow that answers customer support questions about order status."
	}

	if err := run(requirement); err != nil {
		fmt.Fprintln(os.Stderr, "chatagent:", err)
		os.Exit(1)
	}
}

func run(requirement string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	platformClient, err := platform.New(cfg.Platform.BaseURL,
		platform.WithBearerToken(cfg.Platform.BearerToken),
		platform.WithHTTPClient(&http.Client{Timeout: cfg.Platform.Timeout}))
	if err != nil {
		return fmt.Errorf("constructing platform client: %w", err)
	}

	engineInst, err := llmEngine(cfg.LLM)
	if err != nil {
		return fmt.Errorf("constructing llm engine: %w", err)
	}

	nodeSchemas, credentials, templates, err := loadKnowledgeStores(ctx, platformClient)
	if err != nil {
		return fmt.Errorf("loading knowledge stores: %w", err)
	}

	checkpoints, eventSink, patterns, closeMongo, err := wireStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring persistence: %w", err)
	}
	if closeMongo != nil {
		defer closeMongo(ctx)
	}

	var publisher events.Publisher
	if cfg.Events.RedisURL != "" {
		redisOpts, rerr := redis.ParseURL(cfg.Events.RedisURL)
		if rerr != nil {
			return fmt.Errorf("parsing events.redis_url: %w", rerr)
		}
		publisher = redispub.New(redis.NewClient(redisOpts))
	}
	recorder := events.NewRecorder(eventSink, publisher)

	capabilities := domain.NewRegistry()
	if err := capabilities.Register(chatflow.New(platformClient, nodeSchemas, credentials)); err != nil {
		return fmt.Errorf("registering chatflow capability: %w", err)
	}

	tools := toolregistry.New()

	deps := nodes.Deps{
		LLM:             engineInst,
		Models:          cfg.LLM,
		Tools:           tools,
		NodeSchemas:     nodeSchemas,
		Credentials:     credentials,
		Templates:       templates,
		Patterns:        patterns,
		Platform:        platformClient,
		Checkpoints:     checkpoints,
		Events:          recorder,
		Capabilities:    capabilities,
		BudgetConfig:    cfg.Budget,
		HITLLongPoll:    time.Duration(cfg.HITLLongPollSeconds) * time.Second,
		PatternAutoSave: cfg.PatternAutoSave,
	}
	graph := nodes.New(deps)

	wfEngine := inmem.New()
	if err := wfEngine.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      session.WorkflowName,
		TaskQueue: taskQueue,
		Handler:   session.NewWorkflow(graph, checkpoints, cfg.Budget),
	}); err != nil {
		return fmt.Errorf("registering session workflow: %w", err)
	}

	svc := ingress.NewService(wfEngine, taskQueue)
	resp, err := svc.Start(ctx, ingress.Request{
		Requirement: requirement,
		AutoApprove: cfg.AutoApproveDefault,
		RuntimeMode: string(cfg.RuntimeMode),
	})
	if err != nil {
		return fmt.Errorf("running session: %w", err)
	}

	fmt.Printf("session_id=%s status=%s refs=%v summary=%q\n",
		resp.SessionID, resp.Status, resp.ResultRefs, resp.Summary)
	return nil
}

func llmEngine(cfg config.LLMConfig) (llm.Engine, error) {
	var base llm.Engine
	var err error
	switch cfg.Provider {
	case config.ProviderAnthropic:
		base, err = anthropic.NewFromAPIKey(cfg.APIKey, anthropic.Options{
			DefaultModel: cfg.DefaultModel, HighModel: cfg.HighModel, SmallModel: cfg.SmallModel,
			MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature,
		})
	case config.ProviderOpenAI:
		base, err = openai.NewFromAPIKey(cfg.APIKey, openai.Options{
			DefaultModel: cfg.DefaultModel, HighModel: cfg.HighModel, SmallModel: cfg.SmallModel,
			MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature,
		})
	case config.ProviderBedrock:
		return nil, fmt.Errorf("llm: bedrock provider requires a constructed bedrockruntime client; wire it in a deployment-specific main")
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return gateway.NewServer(gateway.WithEngine(base))
}

func loadKnowledgeStores(ctx context.Context, p *platform.Client) (*nodeschema.Store, *credential.Store, *template.Store, error) {
	schemas, err := p.ListNodeSchemas(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing node schemas: %w", err)
	}
	creds, err := p.ListCredentials(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing credentials: %w", err)
	}
	return nodeschema.New(schemas, p), credential.New(creds, p), template.New(nil), nil
}

// wireStores resolves every persistence-backed store from cfg: the Mongo
// variant when its DSN is set, the in-memory variant otherwise (spec §6:
// "empty DSN means use internal/checkpoint/inmem"). All three durable
// stores share one *mongo.Client when any of them needs one.
func wireStores(ctx context.Context, cfg *config.Config) (checkpoint.Store, events.Sink, pattern.Store, func(context.Context), error) {
	dsn := firstNonEmpty(cfg.Checkpoint.DSN, cfg.Events.DSN)
	if dsn == "" {
		return checkpointinmem.New(), eventsinmem.New(), patterninmem.New(), nil, nil
	}

	client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(dsn))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connecting mongo: %w", err)
	}
	closeFn := func(ctx context.Context) { _ = client.Disconnect(ctx) }

	var checkpoints checkpoint.Store = checkpointinmem.New()
	if cfg.Checkpoint.DSN != "" {
		checkpoints, err = checkpointmongo.New(checkpointmongo.Options{
			Client: client, Database: cfg.Checkpoint.Database, Collection: cfg.Checkpoint.Collection,
		})
		if err != nil {
			closeFn(ctx)
			return nil, nil, nil, nil, fmt.Errorf("constructing checkpoint store: %w", err)
		}
	}

	var eventSink events.Sink = eventsinmem.New()
	if cfg.Events.DSN != "" {
		eventSink, err = eventsmongo.New(eventsmongo.Options{
			Client: client, Database: cfg.Events.Database, Collection: cfg.Events.Collection,
		})
		if err != nil {
			closeFn(ctx)
			return nil, nil, nil, nil, fmt.Errorf("constructing events sink: %w", err)
		}
	}

	patterns, err := patternmongo.New(patternmongo.Options{
		Client: client, Database: cfg.Checkpoint.Database, Collection: "patterns",
	})
	if err != nil {
		closeFn(ctx)
		return nil, nil, nil, nil, fmt.Errorf("constructing pattern store: %w", err)
	}

	return checkpoints, eventSink, patterns, closeFn, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
