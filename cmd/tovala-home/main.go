package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"tovala-go-home/internal/coordinator"
	"tovala-go-home/internal/store"
	"tovala-go-home/internal/tovala"
	"tovala-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// AccountConfig describes one Tovala account to poll.
type AccountConfig struct {
	Name         string   `yaml:"name"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password"`
	Token        string   `yaml:"token"` // optional pre-supplied bearer token
	OvenID       string   `yaml:"oven_id"`
	Hosts        []string `yaml:"hosts"`
	PollInterval string   `yaml:"poll_interval"`
}

type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`
	Web      struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	} `yaml:"telegram"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d].name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate account name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Token == "" && (a.Email == "" || a.Password == "") {
			return fmt.Errorf("account %q needs email+password or a token", a.Name)
		}
		if a.PollInterval != "" {
			if _, err := time.ParseDuration(a.PollInterval); err != nil {
				return fmt.Errorf("account %q: invalid poll_interval: %w", a.Name, err)
			}
		}
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("tovala-go-home starting", "version", version, "accounts", len(cfg.Accounts))

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := coordinator.NewEventBus(logger)
	reg := coordinator.NewRegistry()

	for _, acct := range cfg.Accounts {
		if err := setupAccount(acct, db, bus, reg, logger); err != nil {
			logger.Error("account disabled", "account", acct.Name, "err", err)
		}
	}
	if len(reg.List()) == 0 {
		logger.Error("no accounts could be set up")
		os.Exit(1)
	}

	// Automation engine (no-op when built with no_automation).
	auto := initAutomation(reg, bus, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))

	webServer := web.NewServer(reg, bus, db, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// MQTT bridge (no-op when built with no_mqtt).
	mqtt := initMQTT(reg, bus, db, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	saveSessions(reg, db, logger)
	reg.StopAll()

	logger.Info("goodbye")
}

// setupAccount builds the client, coordinator, and poller for one account.
// An authentication failure disables the account; any other error leaves it
// registered so the poller keeps retrying.
func setupAccount(acct AccountConfig, db store.Store, bus *coordinator.EventBus, reg *coordinator.Registry, logger *slog.Logger) error {
	log := logger.With("account", acct.Name)

	client := tovala.NewClient(tovala.Config{
		Email:    acct.Email,
		Password: acct.Password,
		Token:    acct.Token,
		Hosts:    acct.Hosts,
	}, log)

	if sess, err := db.GetSession(acct.Name); err == nil {
		client.RestoreSession(tovala.Session{
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
			Host:      sess.Host,
			UserID:    sess.UserID,
		})
		log.Info("restored persisted session", "host", sess.Host)
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Warn("load persisted session", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Authenticate(ctx); err != nil {
		var authErr *tovala.AuthError
		if errors.As(err, &authErr) {
			// Bad credentials do not fix themselves; retrying would only
			// hammer the login endpoint.
			return fmt.Errorf("authentication rejected: %w", err)
		}
		// Transient; the poller retries on its own schedule.
		log.Warn("initial authentication failed, polling will retry", "err", err)
	} else if sess, ok := client.Session(); ok {
		if err := db.SaveSession(acct.Name, &store.Session{
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
			Host:      sess.Host,
			UserID:    sess.UserID,
		}); err != nil {
			log.Warn("persist session", "err", err)
		}
	}

	ovenID := acct.OvenID
	if ovenID == "" {
		ovenID = discoverOven(ctx, acct.Name, client, db, bus, log)
	}

	coord := coordinator.New(client, acct.Name, ovenID, bus, logger)
	interval := coordinator.DefaultPollInterval
	if acct.PollInterval != "" {
		interval, _ = time.ParseDuration(acct.PollInterval)
	}
	poller := coordinator.StartPoller(context.Background(), coord, interval, logger)

	if err := reg.Add(&coordinator.Entry{
		Account:     acct.Name,
		Client:      client,
		Coordinator: coord,
		Poller:      poller,
	}); err != nil {
		poller.Stop()
		return err
	}
	return nil
}

// discoverOven asks the account for its ovens and remembers the first one.
// Discovery failing is not fatal: the coordinator publishes empty snapshots
// until an oven id appears.
func discoverOven(ctx context.Context, account string, client *tovala.Client, db store.Store, bus *coordinator.EventBus, log *slog.Logger) string {
	ovens, err := client.ListOvens(ctx)
	if err != nil {
		log.Warn("oven discovery failed", "err", err)
		return ""
	}
	if len(ovens) == 0 {
		log.Warn("account has no ovens")
		return ""
	}

	oven := ovens[0]
	id := tovala.OvenID(oven)
	if id == "" {
		log.Warn("discovered oven has no usable id")
		return ""
	}
	name, _ := oven["name"].(string)
	if len(ovens) > 1 {
		log.Info("multiple ovens on account, polling the first", "count", len(ovens), "oven", id)
	}

	now := time.Now()
	rec := &store.Oven{ID: id, Account: account, Name: name, DiscoveredAt: now, LastSeen: now}
	if prev, err := db.GetOven(id); err == nil {
		rec.DiscoveredAt = prev.DiscoveredAt
	}
	if err := db.SaveOven(rec); err != nil {
		log.Warn("persist discovered oven", "err", err)
	}

	bus.Emit(coordinator.Event{Type: coordinator.EventOvenDiscovered, Data: coordinator.DiscoveryData{
		Account: account, OvenID: id, Name: name,
	}})
	log.Info("discovered oven", "oven", id, "name", name)
	return id
}

// saveSessions persists each live session so a restart can skip the login.
func saveSessions(reg *coordinator.Registry, db store.Store, logger *slog.Logger) {
	for _, e := range reg.List() {
		if e.Client == nil {
			continue
		}
		sess, ok := e.Client.Session()
		if !ok {
			continue
		}
		if err := db.SaveSession(e.Account, &store.Session{
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
			Host:      sess.Host,
			UserID:    sess.UserID,
		}); err != nil {
			logger.Warn("persist session", "account", e.Account, "err", err)
		}
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "tovala-home.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "tovala"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
