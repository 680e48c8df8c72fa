package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"120"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Auth Enabled - when false, the X-User-ID header identifies the caller
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Prefix for every key fern writes
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"fern:"`

	// Kafka brokers (comma-separated). Empty disables lifecycle events.
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:""`
	// Kafka topic for import and export lifecycle events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"fern.sync-events"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`

	// SoftOne web services endpoint, e.g. https://company.oncloud.gr/s1services
	SoftOneEndpoint string `env:"SOFTONE_ENDPOINT" env-default:""`
	SoftOneUsername string `env:"SOFTONE_USERNAME" env-default:""`
	SoftOnePassword string `env:"SOFTONE_PASSWORD" env-default:""`
	SoftOneAppID    string `env:"SOFTONE_APP_ID" env-default:""`
	// Company, branch, module and refid sent to authenticate; empty values use the login response
	SoftOneCompany string `env:"SOFTONE_COMPANY" env-default:""`
	SoftOneBranch  string `env:"SOFTONE_BRANCH" env-default:""`
	SoftOneModule  string `env:"SOFTONE_MODULE" env-default:""`
	SoftOneRefID   string `env:"SOFTONE_REFID" env-default:""`
	// Session lifetime when the ERP gives no expiry hint
	SoftOneSessionTTL time.Duration `env:"SOFTONE_SESSION_TTL" env-default:"20m"`
	// Timeout for a single ERP call
	SoftOneTimeout time.Duration `env:"SOFTONE_TIMEOUT" env-default:"20s"`
	// JMESPath expressions locating an expiry hint in the login and authenticate responses
	SoftOneLoginExpiryPaths []string `env:"SOFTONE_LOGIN_EXPIRY_PATHS"`
	SoftOneAuthExpiryPaths  []string `env:"SOFTONE_AUTH_EXPIRY_PATHS"`
	// SqlData name returning the item catalogue
	SoftOneItemsSQL string `env:"SOFTONE_ITEMS_SQL" env-default:"getItems"`
	// SqlData parameter carrying the delta window in minutes
	SoftOneDeltaParam string `env:"SOFTONE_DELTA_PARAM" env-default:"pMins"`
	// SqlData name looking up a customer by email
	SoftOneCustomerLookupSQL string `env:"SOFTONE_CUSTOMER_LOOKUP_SQL" env-default:"getCustomers"`

	// Import settings
	// Rows processed per batch call
	ImportBatchSize int `env:"IMPORT_BATCH_SIZE" env-default:"25"`
	// Lifetime of an unfinished import run
	ImportStateTTL time.Duration `env:"IMPORT_STATE_TTL" env-default:"1h"`
	// What happens to products missing from a full import (draft or outofstock)
	ImportStalePolicy string `env:"IMPORT_STALE_POLICY" env-default:"draft"`
	// Products scanned per stale page
	ImportStalePageSize int  `env:"IMPORT_STALE_PAGE_SIZE" env-default:"50"`
	ImportCategories    bool `env:"IMPORT_CATEGORIES" env-default:"true"`
	ImportAttributes    bool `env:"IMPORT_ATTRIBUTES" env-default:"true"`
	// Run a full import unless the request says otherwise
	ImportDefaultFull bool `env:"IMPORT_DEFAULT_FULL" env-default:"false"`

	// Scheduler settings
	// Interval between scheduled imports, 0 disables the scheduler
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"0"`
	// Force a full import when the last one is older than this, 0 never forces
	SchedulerFullImportInterval time.Duration `env:"SCHEDULER_FULL_IMPORT_INTERVAL" env-default:"24h"`
	// Lifetime of the scheduler lock, extended after every batch
	SchedulerLockTTL time.Duration `env:"SCHEDULER_LOCK_TTL" env-default:"5m"`

	// Export settings
	// SALDOC series for exported orders
	ExportSeries string `env:"EXPORT_SERIES" env-default:""`
	// Order statuses that trigger an export
	ExportQualifyingStatuses []string `env:"EXPORT_QUALIFYING_STATUSES" env-default:"processing,completed"`
	// Attempts to transmit a document before giving up
	ExportMaxAttempts int `env:"EXPORT_MAX_ATTEMPTS" env-default:"3"`
	// ISO country code to SoftOne country id, e.g. GR:1000,CY:1001
	ExportCountryCodes map[string]string `env:"EXPORT_COUNTRY_CODES"`
	// Payment method id to SoftOne payment code, e.g. cod:1000,bacs:1001
	ExportPaymentCodes map[string]string `env:"EXPORT_PAYMENT_CODES"`
	ExportShipmentCode string            `env:"EXPORT_SHIPMENT_CODE" env-default:""`
	// CODE given to customers created for guest orders, empty lets SoftOne number them
	ExportGuestCustomerCode string `env:"EXPORT_GUEST_CUSTOMER_CODE" env-default:""`

	// WooCommerce settings
	WooCommerceURL            string        `env:"WOOCOMMERCE_URL" env-default:""`
	WooCommerceConsumerKey    string        `env:"WOOCOMMERCE_CONSUMER_KEY" env-default:""`
	WooCommerceConsumerSecret string        `env:"WOOCOMMERCE_CONSUMER_SECRET" env-default:""`
	WooCommerceVersion        string        `env:"WOOCOMMERCE_API_VERSION" env-default:"wc/v3"`
	WooCommerceTimeout        time.Duration `env:"WOOCOMMERCE_TIMEOUT" env-default:"30s"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}
