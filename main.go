package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	capx "github.com/itinera-labs/itinera/agent/capability"
	intentx "github.com/itinera-labs/itinera/agent/intent"
	nodex "github.com/itinera-labs/itinera/agent/nodes"
	orchestratorx "github.com/itinera-labs/itinera/agent/orchestrator"
	promptx "github.com/itinera-labs/itinera/agent/prompt"
	providerx "github.com/itinera-labs/itinera/agent/provider"
	storagex "github.com/itinera-labs/itinera/agent/storage"
	statex "github.com/itinera-labs/itinera/agent/state"
	configx "github.com/itinera-labs/itinera/pkg/config"
	_ "github.com/itinera-labs/itinera/pkg/logger/autoload"
	openrouterx "github.com/itinera-labs/itinera/pkg/openrouter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Relational store (authoritative side of the synchronizer).
	pgCfg := configx.MustNew[storagex.PostgresConfig]("POSTGRES")
	db := storagex.NewDB(*pgCfg)
	defer db.Close()

	records, err := storagex.NewBunRecordStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("record store init failed")
	}
	if err := records.CreateSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema creation failed")
	}

	// Semantic graph store (mirror side, plus the memory capability).
	graphCfg := configx.MustNew[storagex.GraphConfig]("GRAPH")
	graph, err := storagex.NewGraphClient(*graphCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("graph client init failed")
	}

	syncCfg := configx.MustNew[storagex.SyncConfig]("SYNC")
	synchronizer, err := storagex.NewSynchronizer(records, graph, *syncCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("synchronizer init failed")
	}
	defer synchronizer.Close()

	// Session checkpoints.
	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("state store init failed")
	}

	// Capability fleet.
	providerCfg := configx.MustNew[providerx.Config]("PROVIDER")
	registry := capx.NewRegistry()
	if err := providerx.RegisterAll(registry, *providerCfg, graph); err != nil {
		log.Fatal().Err(err).Msg("capability registration failed")
	}

	managerCfg := configx.MustNew[capx.ManagerConfig]("MANAGER")
	manager, err := capx.NewManager(registry, capx.NewCache(), *managerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("capability manager init failed")
	}
	defer func() {
		if err := manager.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("manager shutdown")
		}
	}()

	// Classification and reply composition: LLM when configured, rules and
	// templates otherwise.
	prompts := promptx.LoadPromptSet()
	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")

	var classifier intentx.Classifier = intentx.NewRuleClassifier()
	var composer nodex.Composer
	if openRouterCfg.Enabled() {
		chatModel, err := openRouterCfg.New(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("chat model init failed")
		}
		modelClassifier, err := intentx.NewModelClassifier(ctx, chatModel, prompts.Intent)
		if err != nil {
			log.Fatal().Err(err).Msg("model classifier init failed")
		}
		classifier = modelClassifier
		composer = nodex.NewLLMComposer(openrouterx.NewClient(*openRouterCfg), openRouterCfg.Model, prompts.Reply)
	} else {
		log.Info().Msg("openrouter not configured, using rule classifier and template replies")
	}

	routerCfg := configx.MustNew[intentx.RouterConfig]("ROUTER")
	router := intentx.NewRouter(manager.AvailableCapabilities(), *routerCfg)

	serviceCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")
	service, err := orchestratorx.New(store, manager, classifier, router, synchronizer, composer, *serviceCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}
	defer service.Flush()

	log.Info().Strs("capabilities", manager.AvailableCapabilities()).Msg("itinera ready")
	runConsole(ctx, service)
}

// runConsole reads user turns from stdin until EOF or signal.
func runConsole(ctx context.Context, service *orchestratorx.Orchestrator) {
	sessionID := fmt.Sprintf("console-%d", os.Getpid())
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("itinera travel assistant (ctrl-d to exit)")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		result, err := service.RunTurn(ctx, sessionID, text)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			fmt.Println("Something went wrong, please try again.")
			continue
		}
		fmt.Println(result.Reply)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
