package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/calldeck/calldeck/agent/credential"
	"github.com/calldeck/calldeck/agent/directory"
	"github.com/calldeck/calldeck/agent/dispatch"
	"github.com/calldeck/calldeck/agent/lifecycle"
	"github.com/calldeck/calldeck/agent/policy"
	"github.com/calldeck/calldeck/agent/status"
	statex "github.com/calldeck/calldeck/agent/state"
	"github.com/calldeck/calldeck/agent/tool"
	configx "github.com/calldeck/calldeck/pkg/config"
	_ "github.com/calldeck/calldeck/pkg/logger/autoload"
	openrouterx "github.com/calldeck/calldeck/pkg/openrouter"
	placesx "github.com/calldeck/calldeck/pkg/places"
	telephonyx "github.com/calldeck/calldeck/pkg/telephony"
	voiceagentx "github.com/calldeck/calldeck/pkg/voiceagent"
)

type AppConfig struct {
	StoreBackend string `envconfig:"STORE_BACKEND" split_words:"true" default:"memory"`
	ToolVersion  string `envconfig:"TOOL_VERSION" split_words:"true" default:"v1"`
	SearchAPI    bool   `envconfig:"SEARCH_API" split_words:"true" default:"true"`
}

func newStore(backend string) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return statex.NewMemoryStore(), nil
	case "upstash":
		cfg := configx.MustNew[statex.UpstashConfig]("UPSTASH")
		return statex.NewUpstashStore(*cfg)
	case "postgres":
		cfg := configx.MustNew[statex.BunConfig]("POSTGRES")
		return statex.NewBunStore(*cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	store, err := newStore(appCfg.StoreBackend)
	if err != nil {
		panic(err)
	}
	if bunStore, ok := store.(*statex.BunStore); ok {
		if err := bunStore.Migrate(ctx); err != nil {
			panic(fmt.Errorf("migrate kv store: %w", err))
		}
	}

	dir, err := directory.New(store)
	if err != nil {
		panic(err)
	}
	pol, err := policy.New(store)
	if err != nil {
		panic(err)
	}

	issuer, err := credential.NewIssuer(*configx.MustNew[credential.Config]("SESSION_TOKEN"))
	if err != nil {
		panic(err)
	}
	telephony, err := telephonyx.NewClient(*configx.MustNew[telephonyx.Config]("TELEPHONY"))
	if err != nil {
		panic(err)
	}
	provisioner, err := voiceagentx.NewClient(*configx.MustNew[voiceagentx.Config]("VOICE_AGENT"))
	if err != nil {
		panic(err)
	}

	tracker, err := status.New(store, provisioner)
	if err != nil {
		panic(err)
	}

	prereqs := configx.MustNew[lifecycle.Prereqs]("")
	manager, err := lifecycle.New(store, dir, pol, telephony, provisioner, issuer, tracker, *prereqs)
	if err != nil {
		panic(err)
	}

	var searcher tool.Searcher
	if appCfg.SearchAPI {
		client, err := placesx.NewClient(*configx.MustNew[placesx.Config]("PLACES"))
		if err != nil {
			panic(err)
		}
		searcher = client
	}

	catalog, err := tool.Build(appCfg.ToolVersion, tool.Deps{
		Dispatcher: manager,
		Status:     tracker,
		Searcher:   searcher,
		Directory:  dir,
		Policy:     pol,
	})
	if err != nil {
		panic(err)
	}

	chatModel, err := configx.MustNew[openrouterx.Config]("OPENROUTER").New(ctx)
	if err != nil {
		panic(fmt.Errorf("build chat model: %w", err))
	}

	dispatcher, err := dispatch.New(ctx, dispatch.Config{
		Registry:       catalog.Registry,
		Model:          chatModel,
		Classes:        catalog.Classes,
		CallInitiating: catalog.CallInitiating,
	})
	if err != nil {
		panic(err)
	}
	_ = dispatcher
	_ = tool.Infos()

	fmt.Println("calldeck engine wired:", appCfg.ToolVersion)
}
