package main

import (
	"context" // context package is needed for Redis and Mongo operations
	"time"    // Startup timeouts

	"calorie_tracker/internal/api"        // HTTP handlers
	"calorie_tracker/internal/auth"       // Registration, login and sessions
	"calorie_tracker/internal/capture"    // Capture orchestration
	"calorie_tracker/internal/config"     // Custom package for configuration
	"calorie_tracker/internal/db"         // SQL stores
	"calorie_tracker/internal/estimator"  // Calorie estimation client
	"calorie_tracker/internal/mongostore" // MongoDB stores
	"calorie_tracker/internal/storage"    // Capture archive
	"calorie_tracker/internal/utils"      // Redis cache

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// recentCacheTTL bounds how stale the home page's ledger list can get
const recentCacheTTL = time.Minute

// stores are the backend-specific persistence pieces
type stores struct {
	users  auth.UserStore
	ledger capture.Ledger
	close  func()
}

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	ctx := context.Background()

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Connect to the configured credential and ledger store
	st, err := openStores(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.close()

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	defer redisClient.Close()

	// Test Redis connection
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	authService, err := auth.NewService(st.users, auth.NewRedisSessionStore(redisClient), cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logrus.Fatalf("failed to set up sessions: %v", err)
	}

	est := estimator.NewClient(cfg.EstimatorURL, cfg.EstimatorTimeout)
	opts := []capture.Option{
		capture.WithCache(utils.NewCache(redisClient, "calorie_tracker:", recentCacheTTL)),
		capture.WithClock(time.Now, cfg.LedgerLocation),
	}
	// Archive captures only when a bucket is configured
	if cfg.S3Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			logrus.Fatalf("failed to set up capture archive: %v", err)
		}
		opts = append(opts, capture.WithArchive(archive))
		logrus.WithFields(logrus.Fields{"bucket": cfg.S3Bucket}).Info("Capture archive enabled")
	}
	captureService := capture.NewService(authService, est, st.ledger, opts...)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.NewRouter(r, api.Deps{
		Auth:        authService,
		Captures:    captureService,
		Estimator:   est,
		HomeEntries: cfg.HomeEntries,
		Cookie:      api.CookieOptions{Secure: cfg.IsProd, MaxAge: cfg.SessionTTL},
	})

	logrus.WithFields(logrus.Fields{
		"port":     cfg.AppPort,
		"backend":  cfg.StoreBackend,
		"timezone": cfg.LedgerLocation.String(),
	}).Info("Server running")
	if err := r.Run(":" + cfg.AppPort); err != nil { // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}

// openStores connects to MySQL or MongoDB depending on STORE_BACKEND
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDBName)
		if err := mongostore.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			users:  mongostore.NewUserRepository(database),
			ledger: mongostore.NewLedgerRepository(database),
			close:  func() { _ = client.Disconnect(context.Background()) },
		}, nil
	default:
		gdb, err := db.OpenMySQL(cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		return &stores{
			users:  db.NewUserRepository(gdb),
			ledger: db.NewLedgerRepository(gdb),
			close:  func() { _ = sqlDB.Close() },
		}, nil
	}
}
