package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/api"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/database"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/geo"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/mqtt"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/services"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/websocket"
	"github.com/PrashantPatil10178/IOTPulse-sub000/pkg/config"
)

// store is what the server needs from a persistence backend
type store interface {
	database.Store
	database.Seeder
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := newLogger(cfg)
	log.Logger = logger
	logger.Info().Msg("Starting IoT ingestion server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Storage ===
	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to initialize storage")
	}
	if err := database.Seed(ctx, db, seedUsers(cfg), seedDevices(cfg)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed users and devices")
	}

	// === Real-time fan-out ===
	hub := websocket.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(ctx)
	go hub.Run(hubCtx)

	// === Ingestion ===
	locator := geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.Timeout, logger)
	ingestion := services.NewIngestionService(db, hub, locator, logger)

	// === MQTT ===
	var transport *mqtt.Transport
	var status api.TransportStatus
	if cfg.MQTT.Enabled {
		transport = mqtt.NewTransport(mqtt.Config{
			Broker:               cfg.MQTT.Broker,
			Username:             cfg.MQTT.Username,
			Password:             cfg.MQTT.Password,
			ClientIDPrefix:       cfg.MQTT.ClientIDPrefix,
			ReconnectPeriod:      cfg.MQTT.ReconnectPeriod,
			ConnectTimeout:       cfg.MQTT.ConnectTimeout,
			KeepAlive:            cfg.MQTT.KeepAlive,
			MaxReconnectAttempts: cfg.MQTT.MaxReconnectAttempts,
		}, ingestion, logger)
		status = transport

		// The HTTP adapter keeps serving when the broker is unreachable
		if err := transport.Initialize(ctx); errors.Is(err, mqtt.ErrConnectPending) {
			logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT broker unreachable, retrying in background")
		} else if err != nil {
			logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT transport failed to connect")
		}
	} else {
		logger.Info().Msg("MQTT transport disabled")
	}

	// === HTTP ===
	handler := api.NewHandler(ingestion, status, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		APIKeys:        cfg.Auth.APIKeys,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		WebSocket:      hub.ServeWS,
	}, logger)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn().Msg("No API keys configured, x-api-key check disabled")
	}

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	// === Graceful shutdown ===
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if transport != nil {
		transport.Disconnect(true)
	}

	stopHub()

	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage")
	}

	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.EqualFold(cfg.Log.Format, "console") {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store, error) {
	switch cfg.Storage.Driver {
	case config.DriverClickHouse:
		ch := cfg.Storage.ClickHouse
		return database.NewClickHouseStore(ctx, ch.Addr, ch.Database, ch.Username, ch.Password, logger)
	case config.DriverMongo:
		return database.NewMongoStore(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, logger)
	case config.DriverMemory:
		logger.Warn().Msg("Using in-memory storage, readings are lost on restart")
		return database.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func seedUsers(cfg *config.Config) []models.User {
	users := make([]models.User, 0, len(cfg.Seed.Users))
	for _, u := range cfg.Seed.Users {
		users = append(users, models.User{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	return users
}

func seedDevices(cfg *config.Config) []models.Device {
	devices := make([]models.Device, 0, len(cfg.Seed.Devices))
	for _, d := range cfg.Seed.Devices {
		devices = append(devices, models.Device{ID: d.ID, UserID: d.UserID, Name: d.Name, Type: d.Type})
	}
	return devices
}
