package main

import (
	"context" // Context for index creation
	"time"    // Migration timeout

	"calorie_tracker/internal/config"     // Custom import path (Config)
	"calorie_tracker/internal/db"         // Custom import path (Database)
	"calorie_tracker/internal/mongostore" // MongoDB indexes

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if cfg.StoreBackend == config.BackendMongo {
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logrus.Fatalf("failed to connect to MongoDB: %v", err)
		}
		defer client.Disconnect(context.Background())
		// Unique indexes back the conflict and ledger guarantees
		if err := mongostore.EnsureIndexes(ctx, client.Database(cfg.MongoDBName)); err != nil {
			logrus.Fatalf("failed to create indexes: %v", err)
		}
		return
	}

	gdb, err := db.OpenMySQL(cfg.MySQLDSN())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
}
