package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/pkg/authflow"
)

// authHandlers starts and inspects authorization sessions on behalf of
// remote users. Sessions outlive the request that started them.
type authHandlers struct {
	app   *app
	coord *authflow.Coordinator
	root  context.Context
}

func (h *authHandlers) start(c *gin.Context) {
	user := c.Param("user")
	s, err := h.coord.Start(h.root, user)
	if errors.Is(err, authflow.ErrSessionPending) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go func() {
		res, err := s.Result(h.root)
		if err != nil {
			return
		}
		log := h.app.logger.WithFields(logging.Fields{"user_id": user, "state": res.State})
		if err := h.app.storeAuthorization(h.root, res); err != nil {
			log.WithError(err).Warn("Authorization not stored")
			return
		}
		log.Info("Provider credential stored")
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"state":    s.State().String(),
		"auth_url": h.app.provider.AuthCodeURL(s.CorrelationToken()),
	})
}

func (h *authHandlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.coord.State(c.Param("user")).String()})
}

func (h *authHandlers) cancel(c *gin.Context) {
	if !h.coord.Cancel(c.Param("user")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending authorization"})
		return
	}
	c.Status(http.StatusNoContent)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler with the callback and metrics server",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(cmd *cobra.Command, a *app, _ []string) error {
		ctx := cmd.Context()

		engine := newEngine()
		// Sessions started over HTTP have no window to watch; only the
		// callback and the hard timeout resolve them.
		coord, err := a.newCoordinator(engine, authflow.BrowserLauncher{})
		if err != nil {
			return err
		}
		h := &authHandlers{app: a, coord: coord, root: ctx}
		engine.POST("/auth/:user", h.start)
		engine.GET("/auth/:user", h.status)
		engine.DELETE("/auth/:user", h.cancel)
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
		engine.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		srv := &http.Server{
			Addr:         a.cfg.Server.Addr(),
			Handler:      engine,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}
		serveErr := make(chan error, 1)
		go func() {
			a.logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		if err := a.sched.Start(ctx); err != nil {
			return err
		}
		defer a.sched.Stop()

		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down")
		case err := <-serveErr:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
