package cli

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

	"toolhost/internal/session"
	"toolhost/internal/stats"
	"toolhost/internal/store"
	"toolhost/internal/telemetry"
	"toolhost/internal/tool"
	"toolhost/internal/web"
)

// ServeCmd runs the embedding server: the sandboxed viewer and the beacon
// endpoint, backed by the configured aggregate store.
type ServeCmd struct {
	Listen       string `short:"l" default:"${config_listen}" help:"Address to listen on"`
	StoreURL     string `default:"${config_store_url}" help:"Base URL of the REST aggregate store"`
	Dev          bool   `help:"Use an in-memory store instead of the REST backend"`
	StoreTimeout string `default:"${config_store_timeout}" help:"HTTP timeout for store requests"`
	Heartbeat    string `default:"${config_heartbeat}" help:"Session heartbeat interval"`
	Debounce     string `default:"${config_debounce}" help:"Activity write debounce window"`
	ScriptBudget string `default:"${config_script_budget}" help:"Wall-clock budget for sandboxed tool scripts"`
}

// Run executes the serve command
func (c *ServeCmd) Run(globals *Globals) error {
	heartbeat, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_DURATION", fmt.Sprintf("invalid heartbeat duration: %s", err))
	}
	debounce, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_DURATION", fmt.Sprintf("invalid debounce duration: %s", err))
	}
	budget, err := time.ParseDuration(c.ScriptBudget)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_DURATION", fmt.Sprintf("invalid script budget: %s", err))
	}

	log, err := newServerLogger(globals)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	st, err := buildStore(globals, c.Dev, c.StoreURL, c.StoreTimeout, log)
	if err != nil {
		return err
	}

	if !globals.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	bg := telemetry.NewSubmitter(log)
	counter := stats.NewCounter(st, bg)
	renderer := tool.NewRenderer(st, counter, tool.RendererOptions{
		ScriptBudget: budget,
		Logger:       log,
	})

	srv, handler := web.NewServer(web.Config{
		Store:     st,
		Submitter: bg,
		Counter:   counter,
		Renderer:  renderer,
		Logger:    log,
		Session: session.Options{
			HeartbeatInterval: heartbeat,
			DebounceWindow:    debounce,
		},
	})

	httpSrv := &http.Server{
		Addr:              c.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", c.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// End live sessions, then let their final writes drain.
	srv.Shutdown()
	bg.Close()
	return nil
}

// buildStore selects the aggregate store backend. Dev mode (or a missing
// store URL) falls back to a process-local in-memory tree.
func buildStore(globals *Globals, dev bool, url, timeoutStr string, log *zap.Logger) (store.Store, error) {
	if dev || globals.Config.Store.Dev || url == "" {
		if url == "" && !dev && !globals.Config.Store.Dev {
			log.Warn("no store URL configured, using in-memory store")
		} else {
			log.Info("using in-memory store")
		}
		return store.NewMemory(), nil
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, outputErrorCommon(globals, "INVALID_DURATION", fmt.Sprintf("invalid store timeout: %s", err))
	}
	client := &http.Client{Timeout: timeout}
	return store.NewREST(url, client, log), nil
}
