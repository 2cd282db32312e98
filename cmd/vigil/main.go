package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vigil-live/vigil/internal/dotenv"
	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/crisis"
	"github.com/vigil-live/vigil/pkg/core/relay"
	"github.com/vigil-live/vigil/pkg/core/report"
	"github.com/vigil-live/vigil/pkg/core/vault"
	"github.com/vigil-live/vigil/pkg/core/voice/stt"
	"github.com/vigil-live/vigil/pkg/core/voice/tts"
	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/lifecycle"
	"github.com/vigil-live/vigil/pkg/gateway/live/sessions"
	"github.com/vigil-live/vigil/pkg/gateway/metrics"
	gatewayserver "github.com/vigil-live/vigil/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: buildGateway,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildGateway wires the production collaborators from config. The returned
// cleanup closes the incident vault.
func buildGateway(cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	if err := crisis.ValidateTable(); err != nil {
		return nil, nil, fmt.Errorf("voice profile table: %w", err)
	}

	var groqOpts []brain.Option
	if cfg.GroqModel != "" {
		groqOpts = append(groqOpts, brain.WithModel(cfg.GroqModel))
	}

	collab := gatewayserver.Collaborators{
		STT:   stt.NewDeepgram(cfg.DeepgramAPIKey),
		Brain: brain.NewGroq(cfg.GroqAPIKey, groqOpts...),
		TTS:   tts.NewMurf(cfg.MurfAPIKey),
	}

	cleanup := func() {}
	if cfg.VaultPath != "" {
		store, err := vault.Open(cfg.VaultPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open incident vault: %w", err)
		}
		collab.Reporter = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close incident vault", "error", err)
			}
		}
	} else {
		collab.Reporter = report.Discard{}
	}

	if cfg.TelephonyEnabled() {
		registry := relay.NewRegistry()
		tel := relay.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		collab.Registry = registry
		collab.Relay = relay.New(tel, registry, cfg.PublicHost, logger)
		collab.NewBridgeResponder = func(systemPrompt string) brain.Responder {
			opts := append([]brain.Option{brain.WithSystemPrompt(systemPrompt)}, groqOpts...)
			return brain.NewGroq(cfg.GroqAPIKey, opts...)
		}
	}

	m := metrics.New("vigil")
	lc := &lifecycle.Lifecycle{}
	tracker := sessions.NewTracker()
	return gatewayserver.New(cfg, logger, m, lc, tracker, collab), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, cleanup, err := deps.newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	defer cleanup()

	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"telephony_enabled", cfg.TelephonyEnabled(),
		"vault_enabled", cfg.VaultPath != "")

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	gw.WarnSessionsDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		gw.CancelSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "vigil: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "vigil: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
