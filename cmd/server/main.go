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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yomiage-bot/internal/reading"
	"yomiage-bot/internal/store"
	"yomiage-bot/pkg/config"
	"yomiage-bot/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	st := store.New(cfg.DataDir, cfg.SettingsDir)
	dict := reading.NewDictionary(st)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Per-guild word dictionary
		api.GET("/dictionary", func(c *gin.Context) {
			entries, err := dict.Entries()
			if err != nil {
				log.Error("Failed to read dictionary", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read dictionary"})
				return
			}
			c.JSON(http.StatusOK, entries)
		})

		api.POST("/dictionary", func(c *gin.Context) {
			var req struct {
				Surface string `json:"surface" binding:"required"`
				Reading string `json:"reading" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := dict.Add(req.Surface, req.Reading); err != nil {
				log.Error("Failed to add word", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add word"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "added"})
		})

		api.DELETE("/dictionary/:surface", func(c *gin.Context) {
			if err := dict.Delete(c.Param("surface")); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Registered phrase sounds
		api.GET("/phrases", func(c *gin.Context) {
			phrases, err := st.Phrases()
			if err != nil {
				log.Error("Failed to read phrases", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read phrases"})
				return
			}
			c.JSON(http.StatusOK, phrases)
		})

		// Phrase play counts for one user
		api.GET("/usage/:user_id", func(c *gin.Context) {
			usage, err := st.Usage()
			if err != nil {
				log.Error("Failed to read usage log", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read usage log"})
				return
			}
			counts, ok := usage.UserData[c.Param("user_id")]
			if !ok {
				counts = make([]int, usage.SoundCount)
			}
			c.JSON(http.StatusOK, gin.H{"counts": counts})
		})

		// Voice settings
		api.GET("/settings/user/:id", func(c *gin.Context) {
			setting, err := st.UserSetting(c.Param("id"))
			if err != nil {
				log.Error("Failed to read user setting", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read setting"})
				return
			}
			c.JSON(http.StatusOK, setting)
		})

		api.PUT("/settings/user/:id", func(c *gin.Context) {
			var setting store.UserSetting
			if err := c.ShouldBindJSON(&setting); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := st.UpdateUserSetting(c.Param("id"), setting); err != nil {
				log.Error("Failed to update user setting", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update setting"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "updated"})
		})

		api.GET("/settings/guild/:id", func(c *gin.Context) {
			setting, err := st.GuildSetting(c.Param("id"))
			if err != nil {
				log.Error("Failed to read guild setting", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read setting"})
				return
			}
			c.JSON(http.StatusOK, setting)
		})
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
	}

	log.Info("Server exited")
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
