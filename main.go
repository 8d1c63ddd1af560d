package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KKould/snowtree/api"
	"github.com/KKould/snowtree/config"
	"github.com/KKould/snowtree/db"
	"github.com/KKould/snowtree/execution"
	"github.com/KKould/snowtree/gitexec"
	"github.com/KKould/snowtree/log"
	"github.com/KKould/snowtree/panel"
	"github.com/KKould/snowtree/session"
	"github.com/KKould/snowtree/timeline"
	"github.com/KKould/snowtree/watch"
)

func main() {
	cfg := config.Get()

	if cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}

	for _, dir := range []string{cfg.DataDir, cfg.WorktreeBaseDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("database initialized")

	recorder := timeline.NewRecorder(store)
	gitExecutor := gitexec.NewExecutor(recorder, time.Duration(cfg.GitTimeoutMs)*time.Millisecond)
	git := gitexec.NewGit(gitExecutor, cfg.GitBinary)

	panels := panel.NewManager(store)
	if err := panels.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize panel manager")
	}

	tracker := execution.NewTracker(store, git)
	sessions := session.NewManager(store, panels, tracker, git, recorder, cfg)

	// The watcher nudges diff panels when worktree files change so the UI
	// can refresh without polling.
	watcher, err := watch.NewWatcher(func(sessionID string) {
		for _, p := range panels.ListSessionPanels(sessionID) {
			if p.Type != panel.TypeDiff {
				continue
			}
			if _, err := panels.UpdatePanel(p.ID, panel.UpdateRequest{
				State: &panel.StatePatch{CustomState: map[string]any{"worktreeDirty": true}},
			}); err != nil {
				log.Warn().Err(err).Str("panel", p.ID).Msg("failed to flag worktree change")
			}
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start worktree watcher")
	}
	sessions.AttachWatcher(watcher)
	sessions.Start()

	// Gin's default debug logging is replaced by the zerolog middleware
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinLogger())
	r.SetTrustedProxies(nil)

	handlers := api.NewHandlers(store, sessions, panels, tracker, recorder)
	api.SetupRoutes(r, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().
			Str("addr", addr).
			Str("env", cfg.Env).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Agent processes first: their exit events still need the db open
	sessions.Stop()
	watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	log.Info().Msg("server stopped")
}
