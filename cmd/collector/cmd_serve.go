package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"malmohomes/collector/internal/api"
	"malmohomes/collector/internal/database"
)

var serveFlags struct {
	addr      string
	db        string
	outputDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the consolidated listings as a read-only JSON API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (default SERVER_ADDR)")
	f.StringVar(&serveFlags.db, "db", "", "SQLite database (default <output-dir>/properties.db)")
	f.StringVar(&serveFlags.outputDir, "output-dir", "", "Batch output directory for run metadata (default OUTPUT_DIR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := app.logger
	addr := app.cfg.Server.Addr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}
	outputDir := app.cfg.Paths.OutputDir
	if serveFlags.outputDir != "" {
		outputDir = serveFlags.outputDir
	}

	db, err := database.NewDatabase(databasePath(serveFlags.db, outputDir), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	api.SetupRoutes(router, api.NewHandler(db, outputDir, logger), app.cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Microsecond),
		}).Debug("Handled request")
	}
}
