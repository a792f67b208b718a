package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwhan/tubedigest/app/cfg"
	"github.com/jwhan/tubedigest/app/database"
	"github.com/jwhan/tubedigest/app/mailer"
	"github.com/jwhan/tubedigest/app/pipeline"
	"github.com/jwhan/tubedigest/app/secrets"
	"github.com/jwhan/tubedigest/app/summarizer"
	"github.com/jwhan/tubedigest/app/transcript"
	"github.com/jwhan/tubedigest/app/web"
	"github.com/jwhan/tubedigest/app/youtube"
)

func main() {
	// A missing .env file is fine; the environment may be set elsewhere.
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	if appCfg.Command == "" {
		fmt.Fprintln(os.Stderr, "Error: no command given (add-channel, run-once, run, serve)")
		os.Exit(1)
	}

	slog.Info("Starting", "version", appCfg.Version, "command", appCfg.Command)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Debug("Database ready", "schema_version", version, "dirty", dirty)

	app, err := buildApp(appCfg, db)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch appCfg.Command {
	case "add-channel":
		err = app.addChannel(ctx, appCfg.AddChannel.Channel, appCfg.AddChannel.Email)
	case "run-once":
		_, err = app.deliverer.RunOnce(ctx)
	case "run":
		err = app.deliverer.RunDaemon(ctx, time.Duration(appCfg.Run.Interval)*time.Minute)
		if err == context.Canceled {
			err = nil
		}
	case "serve":
		err = app.serve(ctx, appCfg)
	default:
		err = fmt.Errorf("unknown command: %s", appCfg.Command)
	}

	if err != nil {
		slog.Error("Command failed", "command", appCfg.Command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

type app struct {
	userRepo    database.UserRepository
	channelRepo database.ChannelRepository
	scanRepo    database.ScanRepository
	summaryRepo database.SummaryRepository
	sentRepo    database.SentRepository

	resolver   *youtube.Resolver
	feedClient *youtube.FeedClient
	scanner    *pipeline.Scanner
	generator  *pipeline.Generator
	deliverer  *pipeline.Deliverer
	cipher     *secrets.Cipher
}

func buildApp(appCfg *cfg.Cfg, db *database.DB) (*app, error) {
	var cipher *secrets.Cipher
	if appCfg.EncryptKey != "" {
		var err error
		cipher, err = secrets.NewCipher(appCfg.EncryptKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cipher: %w", err)
		}
	} else {
		slog.Warn("ENCRYPT_KEY not set, stored API keys will not be encrypted")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	userRepo := database.NewUserRepository(db)
	channelRepo := database.NewChannelRepository(db)
	scanRepo := database.NewScanRepository(db)
	summaryRepo := database.NewSummaryRepository(db)
	sentRepo := database.NewSentRepository(db)

	feedClient := youtube.NewFeedClient(httpClient, appCfg.UserAgent)
	transcripts := transcript.NewFetcher(httpClient, appCfg.UserAgent)
	summaries := summarizer.NewClient(&http.Client{Timeout: 120 * time.Second})
	mail := mailer.NewMailer(mailer.Config{
		Host:     appCfg.SMTPHost,
		Port:     appCfg.SMTPPort,
		User:     appCfg.SMTPUser,
		Password: appCfg.SMTPPassword,
		UseTLS:   appCfg.SMTPUseTLS,
	})

	return &app{
		userRepo:    userRepo,
		channelRepo: channelRepo,
		scanRepo:    scanRepo,
		summaryRepo: summaryRepo,
		sentRepo:    sentRepo,
		resolver:    youtube.NewResolver(httpClient, appCfg.UserAgent),
		feedClient:  feedClient,
		scanner:     pipeline.NewScanner(feedClient, channelRepo, scanRepo, 5),
		generator:   pipeline.NewGenerator(userRepo, scanRepo, summaryRepo, transcripts, summaries, cipher),
		deliverer: pipeline.NewDeliverer(feedClient, transcripts, summaries, mail, channelRepo, sentRepo,
			pipeline.DelivererOptions{
				APIKey:            appCfg.OpenAIAPIKey,
				Model:             appCfg.OpenAIModel,
				RecipientFallback: appCfg.RecipientEmail,
			}),
		cipher: cipher,
	}, nil
}

// addChannel registers a channel for the CLI delivery loop, fetching the
// feed once to record the channel title.
func (a *app) addChannel(ctx context.Context, input, email string) error {
	channelID, err := a.resolver.Resolve(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to resolve channel: %w", err)
	}

	title, _, err := a.feedClient.FetchEntries(ctx, channelID)
	if err != nil {
		slog.Warn("Could not fetch channel feed, registering without title", "channel", channelID, "error", err)
		title = ""
	}

	if err := a.channelRepo.UpsertChannel(pipeline.CLIOwnerID, channelID, input, title, email); err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}

	slog.Info("Channel registered", "channel", channelID, "title", title, "recipient", email)

	return nil
}

func (a *app) serve(ctx context.Context, appCfg *cfg.Cfg) error {
	sessionSecret := appCfg.SessionSecret
	if sessionSecret == "" {
		// Sessions will not survive a restart without a configured secret.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		sessionSecret = hex.EncodeToString(buf)
		slog.Warn("SESSION_SECRET not set, using a random secret for this run")
	}

	handler := web.NewHandler(a.userRepo, a.channelRepo, a.scanRepo, a.summaryRepo,
		a.resolver, a.feedClient, a.scanner, a.generator, a.cipher, appCfg.Version)
	engine := web.NewServer(handler, sessionSecret)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	slog.Info("Shutdown complete")

	return nil
}
