package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`

	// Also bounds how many donations can be recorded concurrently
	DatabaseMaxConns int32 `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	// Upper bound for a single storage round trip issued by a handler
	RequestTimeoutSec uint `envconfig:"REQUEST_TIMEOUT_SEC" default:"5"`

	// Donation idempotency
	IdempotencyWindowSec uint `envconfig:"IDEMPOTENCY_WINDOW_SEC" default:"86400"` // 24 hours
	IdempotencyBucketSec uint `envconfig:"IDEMPOTENCY_BUCKET_SEC" default:"60"`

	// Cron expression for the reconciliation job, empty disables it
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 15m"`

	// Cognito Auth
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `envconfig:"COGNITO_CLIENT_ID"`
	CognitoIssuerURL  string `envconfig:"COGNITO_ISSUER_URL"`
	AdminGroup        string `envconfig:"ADMIN_GROUP" default:"admin"`

	// Auth Configuration
	CookieName       string `envconfig:"SESSION_COOKIE_NAME" default:"session_id"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes

	// Project and category images
	ImageBucket        string `envconfig:"IMAGE_BUCKET"`
	ImagePublicBaseURL string `envconfig:"IMAGE_PUBLIC_BASE_URL"`

	// Stripe signs payment webhooks with this secret
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}
