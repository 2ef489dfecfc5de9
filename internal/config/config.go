package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For durations and time zones

	"github.com/joho/godotenv" // For loading .env files
)

// Store backends
const (
	BackendMySQL = "mysql"
	BackendMongo = "mongo"
)

// Config holds the application configuration
type Config struct {
	AppPort          string         // Application port
	StoreBackend     string         // mysql or mongo
	DBUser           string         // Database user
	DBPassword       string         // Database password
	DBHost           string         // Database host
	DBPort           string         // Database port
	DBName           string         // Database name
	MongoURI         string         // MongoDB connection string
	MongoDBName      string         // MongoDB database name
	SessionSecret    string         // HMAC key for session cookies
	SessionTTL       time.Duration  // Session lifetime
	RedisAddr        string         // Redis server address
	RedisPass        string         // Redis password
	RedisDB          int            // Redis database number
	EstimatorURL     string         // Calorie estimation endpoint
	EstimatorTimeout time.Duration  // Bound on one estimation call
	LedgerLocation   *time.Location // Time zone that defines "today"
	HomeEntries      int            // Ledger entries shown on the home page
	S3Bucket         string         // Capture archive bucket, empty disables archiving
	S3Region         string         // Capture archive region
	S3Endpoint       string         // Optional S3-compatible endpoint
	S3AccessKey      string         // Static credentials for S3-compatible stores
	S3SecretKey      string         // Static credentials for S3-compatible stores
	IsProd           bool           // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:          getEnv("APP_PORT", "5000"),
		StoreBackend:     getEnv("STORE_BACKEND", BackendMySQL),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBHost:           getEnv("DB_HOST", "127.0.0.1"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBName:           getEnv("DB_NAME", "calorie_tracker"),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:      getEnv("MONGO_DBNAME", "calorie_tracker"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		SessionTTL:       getDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:        os.Getenv("REDIS_PASS"),
		RedisDB:          redisDB,
		EstimatorURL:     getEnv("ESTIMATOR_URL", "http://machine_learning_client:5000/predict"),
		EstimatorTimeout: getDuration("ESTIMATOR_TIMEOUT", 5*time.Second),
		LedgerLocation:   getLocation("LEDGER_TIMEZONE"),
		HomeEntries:      getInt("HOME_ENTRIES", 5),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         getEnv("S3_REGION", os.Getenv("AWS_REGION")),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		IsProd:           os.Getenv("IS_PROD") == "true",
	}
}

// MySQLDSN builds the Data Source Name for the MySQL backend
func (c *Config) MySQLDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getLocation falls back to the server's local zone when unset or unknown
func getLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
