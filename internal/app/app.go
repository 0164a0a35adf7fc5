package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/sociallyhub/moderation/internal/config"
	"github.com/sociallyhub/moderation/internal/countstore"
	"github.com/sociallyhub/moderation/internal/db"
	"github.com/sociallyhub/moderation/internal/http/api/community"
	"github.com/sociallyhub/moderation/internal/logging"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the moderation API server and blocks until the context is
// cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg *config.Config) error {
	logging.Setup(cfg.Logging)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	counts, errCounts := buildCountStore(ctx, cfg)
	if errCounts != nil {
		return errCounts
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	community.RegisterCommunityRoutes(engine, conn, cfg.JWT, counts)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// buildCountStore selects the trigger-counter backend: redis when a URL is
// configured, otherwise in-memory.
func buildCountStore(ctx context.Context, cfg *config.Config) (countstore.CountStore, error) {
	if cfg.Redis.URL == "" {
		log.Debug("no redis configured, using in-memory trigger counters")
		return countstore.NewMemCountStore(), nil
	}
	store, err := countstore.NewRedisCountStore(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	return store, nil
}
