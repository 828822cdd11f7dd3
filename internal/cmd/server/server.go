// Package server wires the game master service: campaign loading, AI
// client, event stream, storage, and the HTTP API.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/api/httpapi"
	contentsqlite "github.com/mmerah/ai-gamemaster/internal/content/sqlite"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/orchestrator"
	"github.com/mmerah/ai-gamemaster/internal/game/party"
	"github.com/mmerah/ai-gamemaster/internal/game/processor"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
	platformcmd "github.com/mmerah/ai-gamemaster/internal/platform/cmd"
	"github.com/mmerah/ai-gamemaster/internal/storage"
	savesqlite "github.com/mmerah/ai-gamemaster/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server command configuration. Environment defaults
// can be overridden by flags.
type Config struct {
	HTTPAddr     string `env:"GAMEMASTER_HTTP_ADDR" envDefault:"localhost:8080"`
	CampaignFile string `env:"GAMEMASTER_CAMPAIGN_FILE"`
	CampaignID   string `env:"GAMEMASTER_CAMPAIGN_ID"`
	SavePath     string `env:"GAMEMASTER_SAVE_PATH" envDefault:"gamemaster.db"`
	ContentPath  string `env:"GAMEMASTER_CONTENT_PATH" envDefault:"content.db"`

	AICompletionsURL string        `env:"GAMEMASTER_AI_COMPLETIONS_URL"`
	AIAPIKey         string        `env:"GAMEMASTER_AI_API_KEY"`
	AIModel          string        `env:"GAMEMASTER_AI_MODEL" envDefault:"gpt-4o-mini"`
	AITimeout        time.Duration `env:"GAMEMASTER_AI_TIMEOUT" envDefault:"120s"`

	RatePerSecond int `env:"GAMEMASTER_RATE_LIMIT_RPS" envDefault:"10"`
	RateBurst     int `env:"GAMEMASTER_RATE_LIMIT_BURST" envDefault:"20"`
}

// ParseConfig loads environment defaults and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.CampaignFile, "campaign", cfg.CampaignFile, "campaign definition file (YAML)")
	fs.StringVar(&cfg.CampaignID, "resume", cfg.CampaignID, "campaign id to resume from the save store")
	fs.StringVar(&cfg.SavePath, "save-path", cfg.SavePath, "campaign save database path")
	fs.StringVar(&cfg.ContentPath, "content-path", cfg.ContentPath, "reference content database path")
	fs.StringVar(&cfg.AIModel, "ai-model", cfg.AIModel, "AI model name")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the game master server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	gs, saves, lore, cleanup, err := loadSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	queue := event.NewQueue()
	emitter := event.NewEmitter(queue, event.NewSequencer())
	proc := processor.New(emitter, nil)

	client := ai.NewHTTPClient(ai.HTTPConfig{
		CompletionsURL: cfg.AICompletionsURL,
		APIKey:         cfg.AIAPIKey,
		Model:          cfg.AIModel,
		HTTPClient:     &http.Client{Timeout: cfg.AITimeout},
	})

	orch := orchestrator.New(gs, proc, client, ai.NewRetryCache(), emitter, lore)
	api := httpapi.NewServer(orch, queue, emitter, saves, httpapi.Config{
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("game master listening addr=%s campaign=%s", cfg.HTTPAddr, gs.CampaignID)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if saves != nil {
			if err := saves.Save(shutdownCtx, gs); err != nil {
				log.Printf("save on shutdown failed error=%v", err)
			}
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// loadSession opens storage and resolves the starting game state: a
// resumed save when -resume matches one, otherwise a fresh campaign from
// the definition file.
func loadSession(ctx context.Context, cfg Config) (*state.GameState, storage.CampaignStore, orchestrator.LoreSource, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var saves storage.CampaignStore
	if strings.TrimSpace(cfg.SavePath) != "" {
		store, err := savesqlite.Open(cfg.SavePath)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open save store: %w", err)
		}
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				log.Printf("close save store error=%v", err)
			}
		})
		saves = store
	}

	var lore orchestrator.LoreSource
	if strings.TrimSpace(cfg.ContentPath) != "" {
		store, err := contentsqlite.Open(cfg.ContentPath)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("open content store: %w", err)
		}
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				log.Printf("close content store error=%v", err)
			}
		})
		lore = store
	}

	if strings.TrimSpace(cfg.CampaignID) != "" && saves != nil {
		gs, err := saves.Load(ctx, cfg.CampaignID)
		if err == nil {
			log.Printf("resumed campaign id=%s location=%q", gs.CampaignID, gs.Location)
			return gs, saves, lore, cleanup, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("resume campaign: %w", err)
		}
		log.Printf("no save found for campaign id=%s; starting fresh", cfg.CampaignID)
	}

	if strings.TrimSpace(cfg.CampaignFile) == "" {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("a campaign file (-campaign) or resumable save (-resume) is required")
	}

	gs, err := party.Load(cfg.CampaignFile)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("load campaign file: %w", err)
	}
	log.Printf("loaded campaign id=%s members=%d", gs.CampaignID, len(gs.Party))
	return gs, saves, lore, cleanup, nil
}
