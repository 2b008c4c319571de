package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/newsletter/internal/api"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/content"
	"github.com/ignite/newsletter/internal/email"
	"github.com/ignite/newsletter/internal/ledger"
	"github.com/ignite/newsletter/internal/pacing"
	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/ignite/newsletter/internal/pkg/logger"
	dynamorepo "github.com/ignite/newsletter/internal/repository/dynamodb"
	"github.com/ignite/newsletter/internal/repository/memory"
	"github.com/ignite/newsletter/internal/repository/postgres"
	"github.com/ignite/newsletter/internal/service/dispatch"
	"github.com/ignite/newsletter/internal/service/subscription"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// subscriberStore is what both services need from the chosen backend.
type subscriberStore interface {
	subscription.Repository
	dispatch.SubscriberReader
}

// checkPortAvailable fails fast when something else already holds the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

// extractHost returns the host part of a postgres DSN for logging.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.ShouldRedact())

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() aws.Config {
		if awsLoaded {
			return awsCfg
		}
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Storage.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Storage.AWSRegion))
		}
		if cfg.Storage.AWSProfile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Storage.AWSProfile))
		}
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		awsLoaded = true
		return awsCfg
	}

	health := api.HealthDeps{}

	// Subscriber store
	var (
		store subscriberStore
		db    *sql.DB
	)
	switch cfg.Storage.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		pingCancel()
		if err != nil {
			log.Fatalf("Failed to reach database at %s: %v", extractHost(cfg.Storage.DatabaseURL), err)
		}
		log.Printf("Subscriber store: postgres (%s)", extractHost(cfg.Storage.DatabaseURL))
		store = postgres.NewSubscriberRepo(db)
		health.DB = db
	case "dynamodb":
		client := dynamodb.NewFromConfig(loadAWS())
		store = dynamorepo.NewSubscriberRepo(client, cfg.Storage.DynamoDBTable)
		health.Dynamo = client
		health.Table = cfg.Storage.DynamoDBTable
		log.Printf("Subscriber store: dynamodb (table %s)", cfg.Storage.DynamoDBTable)
	default:
		store = memory.NewSubscriberRepo()
		log.Println("Subscriber store: memory (data is lost on restart)")
	}

	// Redis for locks, pacing and the dispatch ledger
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("WARNING: redis unreachable, falling back to local locks: %v", err)
			redisClient.Close()
			redisClient = nil
		}
		health.Redis = redisClient
	}

	// Newsletter content
	var loader content.Loader
	switch cfg.Content.Type {
	case "s3":
		s3Cfg := loadAWS().Copy()
		if cfg.Content.S3Region != "" {
			s3Cfg.Region = cfg.Content.S3Region
		}
		client := s3.NewFromConfig(s3Cfg)
		loader = content.NewS3Loader(client, cfg.Content.S3Bucket, cfg.Content.S3Prefix)
		health.S3 = client
		health.S3Bucket = cfg.Content.S3Bucket
	case "feed":
		loader = content.NewFeedLoader(cfg.Content.FeedURL,
			httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, cfg.Content.FeedRetry))
	default:
		loader = content.DirLoader{Dir: cfg.Content.Dir}
	}
	issues := content.NewStore(loader)
	log.Printf("Newsletter content: %s", cfg.Content.Type)

	// Email
	var sender email.Sender = email.LogSender{}
	if cfg.Email.Provider == "ses" {
		sesClient, err := email.LoadSESClient(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		if err != nil {
			log.Fatalf("Failed to create SES client: %v", err)
		}
		from := cfg.Email.From
		if cfg.Email.FromName != "" {
			from = fmt.Sprintf("%s <%s>", cfg.Email.FromName, cfg.Email.From)
		}
		sender = email.NewSESSender(sesClient, email.SESOptions{
			From:             from,
			ConfigurationSet: cfg.SES.ConfigurationSet,
			Timeout:          cfg.SES.Timeout(),
		})
	} else {
		log.Println("WARNING: email provider is 'log', nothing will be delivered")
	}
	mailer, err := email.NewMailer(sender, email.Options{
		SiteName:   cfg.Site.Name,
		SiteURL:    cfg.Site.BaseURL,
		BatchSize:  cfg.Email.BatchSize,
		BatchPause: cfg.Email.BatchPause(),
	})
	if err != nil {
		log.Fatalf("Failed to load email templates: %v", err)
	}

	// Dispatch
	pacer := pacing.Chain{pacing.NewFixedDelay(cfg.Dispatch.Delay())}
	if redisClient != nil && cfg.Dispatch.RatePerSecond > 0 {
		perSecond := int(cfg.Dispatch.RatePerSecond)
		if perSecond < 1 {
			perSecond = 1
		}
		pacer = append(pacer, pacing.NewRedisLimiter(redisClient, "newsletter", perSecond, 0))
	}
	newLock := distlock.NewFactory(redisClient, db, cfg.Dispatch.LockTTL())
	var sent interface {
		dispatch.Ledger
		api.DispatchHistory
	} = ledger.NewMemoryLedger()
	if redisClient != nil {
		sent = ledger.NewRedisLedger(redisClient)
	}

	dispatcher := dispatch.NewService(store, issues, mailer, dispatch.Options{
		SourceName: cfg.Site.Name,
		BaseURL:    cfg.Site.BaseURL,
		Pacer:      pacer,
		NewLock:    func(key string) dispatch.Locker { return newLock(key) },
		Ledger:     sent,
	})
	subscriptions := subscription.NewService(store, mailer)

	handlers := api.NewHandlers(subscriptions, dispatcher, issues, sent, api.Site{
		Name:    cfg.Site.Name,
		BaseURL: cfg.Site.BaseURL,
	})
	server := api.NewServer(cfg.Server, handlers, api.NewHealthChecker(health))

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	go func() {
		log.Printf("Newsletter server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if db != nil {
		db.Close()
	}
	log.Println("Server stopped")
}
