// Package main implements the kaaj command line client.
package main

import (
	"context"
	"fmt"
	"os"

	"kaaj/internal/backend/remote"
	"kaaj/internal/config"
	"kaaj/internal/connectivity"
	"kaaj/internal/imagehost"
	"kaaj/internal/logging"
	"kaaj/internal/session"
	"kaaj/internal/todos"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(userMessage(err)))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kaaj",
	Short:         "kaaj - personal task management",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultClientConfigPath(), "Client config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// env is everything a command needs, wired the way a UI would wire it.
type env struct {
	cfg     *config.ClientConfig
	logger  *log.Logger
	client  *remote.Client
	monitor *connectivity.Monitor
	cache   *session.Cache
	session *session.Store
	todos   *todos.Store
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Prefix: "kaaj"})

	e := &env{cfg: cfg, logger: logger, cache: session.NewCache(cfg.SessionCache)}
	e.client = remote.New(cfg.BackendURL, remote.WithLogger(logger.WithPrefix("remote")))
	e.monitor = connectivity.New(e.client,
		connectivity.WithMaxRetries(cfg.MaxRetries),
		connectivity.WithLogger(logger.WithPrefix("connectivity")),
	)

	opts := []session.Option{
		session.WithCache(e.cache),
		session.WithLogger(logger.WithPrefix("session")),
		session.OnSignedOut(func() {
			if e.todos != nil {
				e.todos.Clear()
			}
		}),
	}
	opts = append(opts, imageHostOptions(cfg.ImageHost, logger)...)
	e.session = session.NewStore(e.client, e.client, e.monitor, opts...)
	e.todos = todos.NewStore(e.client, e.monitor, e.session, todos.WithLogger(logger.WithPrefix("todos")))

	if _, err := e.session.Restore(ctx); err != nil {
		logger.Warn("restore session", "err", err)
	}
	e.monitor.CheckConnection(ctx)
	return e, nil
}

// close writes back credentials the client may have refreshed.
func (e *env) close() {
	st := e.session.State()
	creds := e.client.Credentials()
	if st.Status != session.StatusSignedIn || st.User == nil || creds == nil {
		return
	}
	if err := e.cache.Save(session.Cached{User: *st.User, Credentials: *creds}); err != nil {
		e.logger.Warn("save session cache", "err", err)
	}
}

// withEnv adapts a command body that needs an env.
func withEnv(run func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()
		return run(cmd, args, e)
	}
}

// requireUser fails unless a session is established.
func (e *env) requireUser() error {
	if _, ok := e.session.CurrentUserID(); !ok {
		return fmt.Errorf("not signed in, run 'kaaj login' first")
	}
	return nil
}

// imageHostOptions wires photo uploads when the image host is configured.
// Without it uploads fail with a config error when attempted.
func imageHostOptions(cfg config.ImageHostConfig, logger *log.Logger) []session.Option {
	uploader, err := imagehost.New(cfg, imagehost.WithLogger(logger.WithPrefix("images")))
	if err != nil {
		logger.Warn("image host not configured, photo uploads disabled", "err", err)
		return nil
	}
	return []session.Option{session.WithImageHost(uploader)}
}
