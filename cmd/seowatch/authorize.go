package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/pkg/authflow"
	"github.com/amosWeiskopf/seowatch/pkg/ranking"
)

// newCoordinator mounts the callback routes on engine and returns a
// coordinator delivering through them
func (a *app) newCoordinator(engine *gin.Engine, launcher authflow.Launcher) (*authflow.Coordinator, error) {
	callback, err := authflow.NewCallbackServer(a.cfg.Provider.RedirectURL, a.logger)
	if err != nil {
		return nil, err
	}
	callback.Register(engine)

	authCfg := a.cfg.Auth
	authCfg.TrustedOrigins = append(append([]string{}, authCfg.TrustedOrigins...), callback.Origin())
	return authflow.NewCoordinator(a.provider, callback, launcher, authCfg, a.logger, authflow.WithMetrics(a.metrics)), nil
}

// storeAuthorization persists the token of an authorized session
func (a *app) storeAuthorization(ctx context.Context, res authflow.Result) error {
	switch {
	case res.State != authflow.Authorized && res.Err != nil:
		return fmt.Errorf("authorization %s: %w", res.State, res.Err)
	case res.State != authflow.Authorized:
		return fmt.Errorf("authorization %s", res.State)
	case res.Err != nil:
		return fmt.Errorf("authorization granted but code exchange failed: %w", res.Err)
	case res.Token == nil:
		return errors.New("authorization returned no token")
	}
	return a.store.SaveCredential(ctx, ranking.CredentialFromToken(res.UserID, a.provider.Name(), res.Token, time.Now()))
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize [USER]",
	Short: "Authorize access to the ranking provider for a user",
	Long: `Opens the provider's consent page and waits for the redirect. Set
auth.browser_command to open the page automatically; otherwise the URL is
printed. The handshake gives up after auth.timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		engine := newEngine()
		coord, err := a.newCoordinator(engine, authflow.BrowserLauncher{
			Command: a.cfg.Auth.BrowserCommand,
			Out:     cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}

		srv := &http.Server{Addr: a.cfg.Server.Addr(), Handler: engine}
		serveErr := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := <-serveErr; err != nil {
				a.logger.WithError(err).Error("Callback listener failed")
				cancel()
			}
		}()

		res, err := coord.Authorize(ctx, args[0])
		if res.State == authflow.Idle {
			return err
		}
		if err := a.storeAuthorization(cmd.Context(), res); err != nil {
			switch res.State {
			case authflow.TimedOut:
				fmt.Fprintln(cmd.ErrOrStderr(), "No response from the provider in time. Run authorize again and complete the consent page.")
			case authflow.Failed:
				fmt.Fprintln(cmd.ErrOrStderr(), "Authorization did not complete. Check the consent page was not closed early and run authorize again.")
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s for %s\n", args[0], a.provider.Name())
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(authorizeCmd)
}
