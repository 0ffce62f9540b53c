package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/profile-mailer/internal/api"
	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/config"
	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/personalize"
	"github.com/ignite/profile-mailer/internal/pkg/distlock"
	"github.com/ignite/profile-mailer/internal/pkg/httpretry"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
	"github.com/ignite/profile-mailer/internal/ratelimit"
	"github.com/ignite/profile-mailer/internal/repository/postgres"
	"github.com/ignite/profile-mailer/internal/service/campaign"
	"github.com/ignite/profile-mailer/internal/service/contact"
	"github.com/ignite/profile-mailer/internal/service/sending"
	"github.com/ignite/profile-mailer/internal/service/smtpsetting"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
	"github.com/ignite/profile-mailer/internal/transport/gmail"
	"github.com/ignite/profile-mailer/internal/transport/ses"
	"github.com/ignite/profile-mailer/internal/transport/smtp"
)

// checkPortAvailable fails fast when another process holds the port.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	return ln.Close()
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	case cfg.Addr != "":
		opts = &redis.Options{Addr: cfg.Addr}
	default:
		return nil, nil
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// platformTransport carries owner notifications: SES when enabled, else the
// configured SMTP relay.
func platformTransport(ctx context.Context, cfg *config.Config) (sending.Transport, string, error) {
	if cfg.SES.Enabled {
		t, err := ses.NewFromKeys(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
		if err != nil {
			return nil, "", err
		}
		from := cfg.SES.FromEmail
		if from == "" {
			from = cfg.SMTP.FromEmail
		}
		return t, from, nil
	}
	t := smtp.New(smtp.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		Timeout:  cfg.SMTP.Timeout(),
	}, domain.TransportPlatform)
	from := cfg.SMTP.FromEmail
	if from == "" {
		from = cfg.SMTP.User
	}
	return t, from, nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
		log.Println("Connected to Redis")
	} else {
		log.Println("Redis not configured: using in-memory sessions and rate limits, PostgreSQL advisory locks")
	}

	// Repositories
	campaignRepo := postgres.NewCampaignRepo(db)
	subscriberRepo := postgres.NewSubscriberRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	gmailRepo := postgres.NewGmailAccountRepo(db)
	settingRepo := postgres.NewSmtpSettingRepo(db)

	// Sessions and OAuth
	var sessions auth.SessionStore
	if rdb != nil {
		sessions = auth.NewRedisSessionStore(rdb)
	} else {
		mem := auth.NewMemorySessionStore()
		mem.RunSweeper(ctx, 5*time.Minute)
		sessions = mem
	}
	authManager := auth.NewManager(cfg.Auth, sessions)

	gmailRedirect := cfg.Gmail.RedirectURL
	if gmailRedirect == "" {
		gmailRedirect = cfg.Auth.BaseURL + "/auth/gmail/callback"
	}
	connector := auth.NewGmailConnector(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret,
		gmailRedirect, cfg.Gmail.TokenURL, cfg.Auth.SecureCookie, gmailRepo)

	// Transports
	gmailClient := gmail.NewClient(cfg.Gmail.APIBaseURL, httpretry.NewRetryClient(nil, cfg.Gmail.MaxRetries))
	refresher := gmail.OAuthRefresher{Config: connector.OAuthConfig()}
	gmailFactory := func(a *domain.GmailAccount) sending.Transport {
		return gmail.NewTransport(gmailClient, refresher, gmailRepo, a)
	}
	smtpFactory := func(s *domain.SmtpSetting) sending.VerifyingTransport {
		return smtp.New(smtp.FromSetting(s, cfg.SMTP.Timeout()), domain.TransportSMTP)
	}
	platform, platformFrom, err := platformTransport(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize platform transport: %v", err)
	}
	log.Printf("Platform transport: %s", platform.Kind())

	locks := distlock.NewFactory(rdb, db, cfg.Dispatch.LockTTL())

	// Services
	campaignSvc := campaign.NewService(campaignRepo)
	subscriberSvc := subscriber.NewService(subscriberRepo, profileRepo)
	sendSvc := sending.NewService(sending.Deps{
		Composer:       sending.Composer{MaxRecipients: cfg.Dispatch.MaxRecipients},
		Dispatcher:     sending.NewDispatcher(cfg.Dispatch.WindowSize, cfg.Dispatch.PacingDelay()),
		Ledger:         campaignSvc,
		Profiles:       profileRepo,
		Subscribers:    subscriberRepo,
		GmailAccounts:  gmailRepo,
		SmtpSettings:   settingRepo,
		GmailTransport: gmailFactory,
		SMTPTransport:  smtpFactory,
		Personalizer:   personalize.NewEngine(),
		PersistTimeout: time.Duration(cfg.Dispatch.PersistTimeoutMs) * time.Millisecond,
	})
	settingSvc := smtpsetting.NewService(settingRepo, locks, smtpFactory)
	contactSvc := contact.NewNotifier(profileRepo, platform, platformFrom, cfg.SMTP.FromName)

	var limiter ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.PublicPerMinute)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.PublicPerMinute)
	}
	clients, err := ratelimit.NewClientResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid ratelimit.trusted_proxies: %v", err)
	}

	health := api.NewHealthChecker()
	health.Register("database", db.PingContext)
	if rdb != nil {
		health.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	handlers := api.NewHandlers(api.Services{
		Sender:       sendSvc,
		Campaigns:    campaignSvc,
		Subscribers:  subscriberSvc,
		SmtpSettings: settingSvc,
		Gmail:        connector,
		Contact:      contactSvc,
		Health:       health,
	})
	router := api.SetupRoutes(api.RouterConfig{
		Handlers:       handlers,
		Auth:           authManager,
		Gmail:          connector,
		Limiter:        limiter,
		Clients:        clients,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	server := api.NewServer(addr, router)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	// In-flight sends run on a detached context; give them time to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

