package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ebogdum/cleanlog/auth"
	"github.com/ebogdum/cleanlog/config"
	"github.com/ebogdum/cleanlog/core/log"
	"github.com/ebogdum/cleanlog/core/log/httplog"
	"github.com/ebogdum/cleanlog/core/log/record"
	"github.com/ebogdum/cleanlog/core/log/scope"
	"github.com/ebogdum/cleanlog/core/log/value"
	"github.com/ebogdum/cleanlog/locks"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFilePath string

	rootCmd := &cobra.Command{
		Use:           "cleanlog",
		Short:         "cleanlog - structured JSON logging pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	var emit emitOptions
	emitCmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit one record through the configured pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(cmd.Context(), configFilePath, emit)
		},
	}
	emitCmd.Flags().StringVar(&emit.level, "level", "info", "Record level")
	emitCmd.Flags().StringVarP(&emit.message, "message", "m", "", "Record message")
	emitCmd.Flags().StringVar(&emit.props, "props", "", "Per-call properties as a JSON object")
	emitCmd.Flags().StringVar(&emit.context, "context", "", "Ambient scope properties as a JSON object")
	emitCmd.Flags().StringVar(&emit.name, "name", "", "Source context of the record")

	var serve serveOptions
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo HTTP API with request-scoped logging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFilePath, serve)
		},
	}
	serveCmd.Flags().StringVar(&serve.listenAddr, "listen", ":8080", "Listen address")
	serveCmd.Flags().StringSliceVar(&serve.apiKeys, "api-key", nil, "API key and user name as key:username (repeatable)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Validate the logging configuration and display the loaded settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, configFilePath)
		},
	}

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(emitCmd, serveCmd, configCmd)
	return rootCmd
}

func loadConfig(path string) (config.AppConfig, error) {
	if path == "" {
		return config.LoadConfig()
	}
	return config.LoadConfigFromFile(path)
}

type emitOptions struct {
	level   string
	message string
	props   string
	context string
	name    string
}

// runEmit writes a single record, which makes it a smoke test for sinks
func runEmit(ctx context.Context, configFilePath string, opts emitOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	lvl, err := record.ParseLevel(opts.level)
	if err != nil {
		return err
	}

	var props any
	if opts.props != "" {
		obj, err := value.ParseObject([]byte(opts.props))
		if err != nil {
			return fmt.Errorf("invalid --props: %w", err)
		}
		props = obj
	}

	var ambient *value.Object
	if opts.context != "" {
		if ambient, err = value.ParseObject([]byte(opts.context)); err != nil {
			return fmt.Errorf("invalid --context: %w", err)
		}
	}

	cfg, err := loadConfig(configFilePath)
	if err != nil {
		return err
	}
	logger, err := log.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	if ambient != nil {
		var h *scope.Handle
		ctx, h = logger.AddContext(ctx, ambient)
		defer h.Release()
	}

	logger.Named(opts.name).Log(ctx, lvl, opts.message, props)
	return nil
}

type serveOptions struct {
	listenAddr string
	apiKeys    []string
}

func runServe(configFilePath string, opts serveOptions) error {
	cfg, err := loadConfig(configFilePath)
	if err != nil {
		return err
	}
	logger, err := log.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	users, err := parseAPIKeys(opts.apiKeys)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              opts.listenAddr,
		Handler:           newRouter(logger, auth.NewAPIKeyAuthenticator(users), locks.NewLocalProvider(cfg.Locks.DefaultConcurrency, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Starting HTTP server", map[string]any{"ListenAddr": opts.listenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error(context.Background(), "Server failed", map[string]any{"Error": err})
			return err
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down server", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "Server forced to shutdown", map[string]any{"Error": err})
		return err
	}

	logger.Info(context.Background(), "Server exited gracefully", nil)
	return nil
}

// parseAPIKeys parses key:username pairs. Each user gets a fresh id.
func parseAPIKeys(pairs []string) (map[string]auth.User, error) {
	users := make(map[string]auth.User, len(pairs))
	for _, pair := range pairs {
		key, name, ok := strings.Cut(pair, ":")
		if !ok || key == "" || name == "" {
			return nil, fmt.Errorf("invalid --api-key %q, expected key:username", pair)
		}
		users[key] = auth.User{ID: uuid.New(), Username: name}
	}
	return users, nil
}

func newRouter(logger *log.Logger, authn *auth.APIKeyAuthenticator, lockProvider locks.Provider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(authn.Middleware)
	r.Use(httplog.Middleware(logger, auth.ContextProvider{}))
	r.Use(middleware.Recoverer)

	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		text := r.URL.Query().Get("text")
		logger.Info(r.Context(), "Echo endpoint called", map[string]any{"Text": text})
		writeJSON(w, http.StatusOK, map[string]string{"text": text})
	})

	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		u, err := auth.ContextProvider{}.RequireUser(r.Context())
		if err != nil {
			logger.Warn(r.Context(), "Unauthenticated profile request", nil)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "NOT_AUTHENTICATED", "message": err.Error()})
			return
		}
		logger.Info(r.Context(), "User profile accessed", map[string]any{"UserName": u.Username})
		writeJSON(w, http.StatusOK, map[string]string{"id": u.ID.String(), "username": u.Username})
	})

	r.Post("/jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		hold, ok := lockProvider.Lock("job:" + name).TryAcquire()
		if !ok {
			logger.Warn(r.Context(), "Job already running", map[string]any{"JobName": name})
			writeJSON(w, http.StatusConflict, map[string]string{"code": "JOB_RUNNING", "message": "job is already running"})
			return
		}
		defer hold.Release()

		ctx, h := logger.AddContext(r.Context(), map[string]any{"JobName": name})
		defer h.Release()
		logger.Info(ctx, "Job started", nil)
		logger.Info(ctx, "Job completed", nil)
		writeJSON(w, http.StatusAccepted, map[string]string{"job": name})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// validateConfig validates the configuration and displays settings
func validateConfig(cmd *cobra.Command, configFilePath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := loadConfig(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Level: %s\n", cfg.Log.Level)
	fmt.Fprintf(out, "Outputs: %s\n", strings.Join(maskOutputs(cfg.Log.Outputs), ", "))
	if cfg.Log.ErrorOutput != "" {
		fmt.Fprintf(out, "Error Output: %s (%.1f/s)\n", maskOutput(cfg.Log.ErrorOutput), cfg.Log.ErrorRateLimit)
	}
	fmt.Fprintf(out, "Environment: %s\n", cfg.Log.Environment)
	for _, o := range cfg.Log.Overrides {
		fmt.Fprintf(out, "Override: %s >= %s\n", o.Prefix, o.Level)
	}
	fmt.Fprintf(out, "Redaction: %s (%s)\n", cfg.Log.Redaction.Mode, strings.Join(cfg.Log.Redaction.Keys, ", "))
	fmt.Fprintf(out, "Lock Concurrency: %d\n", cfg.Locks.DefaultConcurrency)
	return nil
}

func maskOutputs(outputs []string) []string {
	masked := make([]string, len(outputs))
	for i, o := range outputs {
		masked[i] = maskOutput(o)
	}
	return masked
}

// maskOutput hides credentials in sink URLs for display
func maskOutput(output string) string {
	scheme, rest, ok := strings.Cut(output, "://")
	if !ok {
		return output
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok || creds == "" {
		return output
	}
	return scheme + "://***@" + host
}
