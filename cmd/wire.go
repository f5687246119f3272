package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"consortium-core/config"
	"consortium-core/core"
	llmclient "consortium-core/llm-client"
	"consortium-core/observability"
	"consortium-core/store"
)

// defaultModels is the worker set used when a run names no models.
var defaultModels = []string{
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"gpt-4",
	"gemini-pro",
}

type app struct {
	cfg        *config.Config
	pool       *core.PoolManager
	dispatcher *core.Dispatcher
	store      *store.ConsortiumRepository
	templates  core.Templates
}

func wireApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	storeCfg := viper.New()
	if cfg.StorePath != "" {
		storeCfg.Set(store.ConsortiumsPathKey, cfg.StorePath)
	}
	repo, err := store.NewConsortiumRepository(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("wire consortium repository: %w", err)
	}

	templates := core.LoadTemplates(cfg.TemplatesDir)
	if cfg.TemplatePack != "" {
		templates, err = core.LoadTemplatePack(cfg.TemplatePack, templates)
		if err != nil {
			return nil, fmt.Errorf("wire templates: %w", err)
		}
	}

	pool := core.NewPoolManager()
	opts := []core.DispatcherOption{
		core.WithPoolManager(pool),
		core.WithCallTimeout(cfg.WorkerTimeout),
		core.WithConcurrency(cfg.MaxConcurrency),
	}
	if cfg.ResponseLogPath != "" {
		opts = append(opts, core.WithResponseLogger(store.NewResponseLog(cfg.ResponseLogPath)))
	}
	router := llmclient.NewRouter(cfg.Credentials(), cfg.MaxTokens)

	return &app{
		cfg:        cfg,
		pool:       pool,
		dispatcher: core.NewDispatcher(router, opts...),
		store:      repo,
		templates:  templates,
	}, nil
}

// specDefaults fills what a run leaves unset.
func (a *app) specDefaults() core.SpecDefaults {
	return core.SpecDefaults{
		Models:       defaultModels,
		SystemPrompt: a.templates.SystemPrompt,
	}
}
