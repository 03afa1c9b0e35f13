package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/config"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/api"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/devices"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/idgen"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/logging"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/notify"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/storage"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/storage/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	bootstrapTimeout  = 30 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: os.Stdout,
	})

	// Initialize database
	logger.Info("Initializing SQLite database", "path", cfg.Database.Path)
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Bootstrap the cloud session. Invalid credentials are fatal; a network
	// failure degrades to the cached accessory list so the bridge can come
	// up while the cloud is unreachable.
	auth := amos.NewAuthService(cfg.Amos.Region, logger)

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	var initial amos.Credentials
	var cloudDevices []amos.DeviceSummary

	logger.Info("Authenticating with Amos cloud", "region", cfg.Amos.Region)
	account, err := auth.GetCredentials(bootstrapCtx, cfg.Amos.Username, cfg.Amos.Password)
	switch {
	case err == nil:
		initial = account.Credentials
		cloudDevices = account.Devices
		logger.Info("Cloud session established",
			"uid", initial.UID,
			"devices", len(cloudDevices),
		)
	case errors.Is(err, amos.ErrInvalidCredentials):
		return fmt.Errorf("cloud login rejected: %w", err)
	default:
		logger.Warn("Cloud bootstrap failed, starting degraded",
			"error", err,
		)
	}

	session := amos.NewSession(auth, cfg.Amos.Username, cfg.Amos.Password, initial, logger)

	// Merge the cloud device list with the configured devices. Configured
	// names and models win over the cloud's.
	known, err := mergeDevices(bootstrapCtx, db, cfg.Amos.Devices, cloudDevices)
	if err != nil {
		return err
	}
	if len(known) == 0 {
		return fmt.Errorf("no devices available: cloud unreachable and nothing cached")
	}

	// Optional low-liquid Telegram alerts
	var notifier *notify.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		logger.Info("Telegram low-liquid alerts enabled", "chat_id", cfg.Telegram.ChatID)
	}

	// Register devices and start their polling loops
	registry := devices.NewRegistry()
	host := amos.HostForRegion(cfg.Amos.Region)
	pollInterval := time.Duration(cfg.Amos.PollIntervalSeconds) * time.Second

	for _, summary := range known {
		client := amos.NewClient(host, amos.DeviceIdentity{
			NID:      summary.NID,
			Username: cfg.Amos.Username,
			AppID:    cfg.Amos.AppID,
		}, session, logger)

		device := amos.NewDevice(client, summary.Name, summary.Model, logger)
		device.AddSink(db)
		if notifier != nil {
			device.AddSink(notifier)
		}

		if err := registry.Register(device); err != nil {
			return fmt.Errorf("failed to register device %s: %w", summary.NID, err)
		}

		device.Start(pollInterval)
		logger.Info("Device registered",
			"nid", summary.NID,
			"name", summary.Name,
			"poll_interval", pollInterval,
		)
	}
	defer registry.StopAll()

	// Initialize REST API
	router := api.NewRouter(api.RouterConfig{
		Registry: registry,
		Session:  session,
		APIKey:   cfg.Security.APIKey,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		registry.StopAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}

// mergeDevices combines configured devices, the freshly fetched cloud list
// and previously cached accessories into one set keyed by nid, persisting
// anything new. Config entries take precedence for display fields.
func mergeDevices(ctx context.Context, db storage.Storage, configured []config.AmosDevice, cloud []amos.DeviceSummary) ([]amos.DeviceSummary, error) {
	byNID := make(map[string]amos.DeviceSummary)
	var order []string

	add := func(summary amos.DeviceSummary) {
		if summary.NID == "" {
			return
		}
		if _, seen := byNID[summary.NID]; !seen {
			order = append(order, summary.NID)
		}
		byNID[summary.NID] = summary
	}

	cached, err := db.ListAccessories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached accessories: %w", err)
	}
	for _, accessory := range cached {
		add(amos.DeviceSummary{NID: accessory.NID, Name: accessory.Name, Model: accessory.Model})
	}

	for _, summary := range cloud {
		add(summary)
	}

	for _, device := range configured {
		add(amos.DeviceSummary{NID: device.NID, Name: device.Name, Model: device.Model})
	}

	result := make([]amos.DeviceSummary, 0, len(order))
	for _, nid := range order {
		summary := byNID[nid]
		if summary.Name == "" {
			summary.Name = summary.NID
		}

		if err := db.SaveAccessory(ctx, &storage.Accessory{
			ID:    idgen.NewAccessory(),
			NID:   summary.NID,
			Name:  summary.Name,
			Model: summary.Model,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist accessory %s: %w", summary.NID, err)
		}

		result = append(result, summary)
	}

	return result, nil
}
