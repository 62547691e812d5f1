package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/bebop/internal/cache"
	"github.com/nao1215/bebop/internal/config"
	"github.com/nao1215/bebop/internal/database"
	"github.com/nao1215/bebop/internal/dialer"
	"github.com/nao1215/bebop/internal/log"
	"github.com/nao1215/bebop/internal/navigation"
	"github.com/nao1215/bebop/internal/parser"
	"github.com/nao1215/bebop/internal/plugin/file"
	"github.com/nao1215/bebop/internal/plugin/finger"
	"github.com/nao1215/bebop/internal/plugin/gopher"
	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/tofu"
)

// session holds everything a command needs to fetch pages. Close it
// when the command is done so that pending pin updates are written.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *tofu.Store
	db       *database.TrustDB
	registry *protocol.Registry
	cache    *cache.Cache
	engine   *navigation.Engine
}

// getBoolFlag retrieves a flag from the command or, when the command was
// created on its own, from its root.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getStringFlag is the string counterpart of getBoolFlag.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the configuration from the defaults and the
// configuration file. An explicitly given file must exist; otherwise a
// missing file means defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.ConfigFilePath = getStringFlag(cmd, "config")

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		if err := cfg.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	return cfg, nil
}

// newLogger creates the logger of a command and makes it the default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}

// openTrustStore opens the trust store, backed by the SQLite database
// unless the command runs with --ephemeral. The returned TrustDB is nil
// for an ephemeral store.
func openTrustStore(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*tofu.Store, *database.TrustDB, error) {
	opts := []tofu.Option{
		tofu.WithPinMaxAge(cfg.PinMaxAge),
		tofu.WithLogger(logger),
	}

	if getBoolFlag(cmd, "ephemeral") {
		store, err := tofu.Open(ctx, tofu.NewMemoryBackend(), opts...)
		return store, nil, err
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trust database: %w", err)
	}
	logger.Debug("trust database opened", "path", db.Path())

	store, err := tofu.Open(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// closeTrustStore flushes the store and closes its database.
func closeTrustStore(ctx context.Context, store *tofu.Store, db *database.TrustDB) error {
	err := store.Close(ctx)
	if db != nil {
		err = errors.Join(err, db.Close())
	}
	return err
}

// openSession wires the transports, the cache and the navigation engine
// for cfg. cfg must be valid.
func openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*session, error) {
	policy, err := cfg.CommitPolicy()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd, cfg)
	store, db, err := openTrustStore(ctx, cmd, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, store: store, db: db}

	s.registry, err = newRegistry(cfg, store, logger)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	s.cache, err = cache.New(
		cache.WithMaxEntries(cfg.CacheEntries),
		cache.WithMaxBytes(cfg.CacheBytes),
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
	)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	s.engine = navigation.NewEngine(s.registry,
		navigation.WithCache(s.cache),
		navigation.WithParser(parser.New(parser.WithHTMLRendering(cfg.RenderHTML))),
		navigation.WithMaxRedirects(cfg.MaxRedirects),
		navigation.WithAutoFollowRedirects(cfg.AutoFollowRedirects),
		navigation.WithCommitPolicy(policy),
		navigation.WithHistoryLimit(cfg.HistoryLimit),
		navigation.WithVersion(getVersion()),
		navigation.WithLogger(logger),
	)
	return s, nil
}

// newRegistry registers the Gemini handler and the bundled plugins, then
// freezes the registry.
func newRegistry(cfg *config.Config, store *tofu.Store, logger *slog.Logger) (*protocol.Registry, error) {
	opts := []dialer.Option{dialer.WithConnectTimeout(cfg.ConnectTimeout)}
	if cfg.ProxyAddress != "" {
		opts = append(opts, dialer.WithProxy(cfg.ProxyAddress))
	}
	d, err := dialer.New(opts...)
	if err != nil {
		return nil, err
	}

	registry := protocol.NewRegistry()
	gemini := protocol.NewGeminiHandler(d, store,
		protocol.WithReadTimeout(cfg.ReadTimeout),
		protocol.WithMaxBodySize(cfg.MaxBodySize),
		protocol.WithIdentities(store),
		protocol.WithGeminiLogger(logger),
	)
	if err := registry.Register(gemini); err != nil {
		return nil, err
	}

	plugins := []protocol.Handler{
		gopher.New(d,
			gopher.WithReadTimeout(cfg.ReadTimeout),
			gopher.WithMaxBodySize(cfg.MaxBodySize),
			gopher.WithLogger(logger),
		),
		finger.New(d,
			finger.WithReadTimeout(cfg.ReadTimeout),
			finger.WithMaxBodySize(cfg.MaxBodySize),
			finger.WithLogger(logger),
		),
		file.New(
			file.WithMaxBodySize(cfg.MaxBodySize),
			file.WithLogger(logger),
		),
	}
	for _, h := range plugins {
		if err := registry.RegisterScheme(h.Scheme(), h); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	logger.Debug("transports registered", "schemes", registry.Schemes(), "proxy", d.ProxyAddress())
	return registry, nil
}

// Close flushes the trust store and closes the database.
func (s *session) Close(ctx context.Context) error {
	return closeTrustStore(ctx, s.store, s.db)
}

// errorHint returns a line telling the user how to get past err, or ""
// when there is nothing to suggest.
func errorHint(err error) string {
	var mismatch *tofu.PinMismatchError
	if errors.As(err, &mismatch) {
		return fmt.Sprintf("If the certificate change is expected, run:\n  bebop trust repin %s %s",
			net.JoinHostPort(mismatch.Host, strconv.Itoa(mismatch.Port)), mismatch.Got)
	}
	if errors.Is(err, protocol.ErrClientCertificateRequired) {
		return "The server asks for a client certificate. Create one with:\n  bebop identity create NAME URL"
	}
	return ""
}
