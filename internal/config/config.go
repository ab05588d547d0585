package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Image providers accepted in IMAGE_PROVIDER.
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr         string
	LogLevel         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Optional bcrypt hash of the access token guarding /v1 and /ws. Empty leaves the API open.
	AccessTokenHash string

	// Output
	OutputDir   string // generated images land here, e.g. ./generated_images
	JPEGQuality int

	// Image generation
	ImageProvider     string // bedrock or gemini
	GenerationTimeout time.Duration

	// AWS / Bedrock
	AWSRegion       string
	AWSAccessKey    string // empty: SDK default credential chain
	AWSSecretKey    string
	BedrockModelID  string
	BedrockEndpoint string // if set, overrides the Bedrock runtime endpoint (e.g. a local mock)

	// Gemini API
	GeminiAPIKey      string
	GeminiAPIEndpoint string // if set, overrides default Gemini API base URL
	GeminiModelImage  string

	// Phone
	DefaultCountryCode string // digits only, prepended to 10-digit local numbers

	// Delivery
	DeliveryCaption      string
	WhatsAppWebURL       string
	BrowserUserDataDir   string
	BrowserHeadless      bool
	BrowserNoSandbox     bool
	DeliveryReadyTimeout time.Duration
	DeliverySendTimeout  time.Duration

	// S3 mirror of generated images (disabled when S3Bucket is empty)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	// History (disabled when DatabaseURL is empty)
	DatabaseURL string

	// Kafka events (disabled when KafkaBrokers is empty)
	KafkaBrokers       []string
	KafkaTopicEvents   string
	KafkaGroupRecorder string

	// Webhook notifications (disabled when WebhookURL is empty)
	WebhookURL        string
	WebhookSecret     string
	WebhookTimeout    time.Duration
	WebhookMaxRetries int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 3*time.Minute),

		AccessTokenHash: getEnv("ACCESS_TOKEN_HASH", ""),

		OutputDir:   getEnv("OUTPUT_DIR", defaultOutputDir()),
		JPEGQuality: getEnvInt("JPEG_QUALITY", 95),

		ImageProvider:     strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderBedrock)),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 2*time.Minute),

		AWSRegion:       getEnv("AWS_REGION", "us-west-2"),
		AWSAccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", "stability.stable-image-ultra-v1:1"),
		BedrockEndpoint: getEnv("BEDROCK_ENDPOINT", ""),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelImage:  getEnv("GEMINI_MODEL_IMAGE", "imagen-4.0-generate-001"),

		DefaultCountryCode: strings.TrimPrefix(getEnv("PHONE_DEFAULT_COUNTRY_CODE", "91"), "+"),

		DeliveryCaption:      getEnv("DELIVERY_CAPTION", "Happy New Year 2025! 🎊"),
		WhatsAppWebURL:       getEnv("WHATSAPP_WEB_URL", "https://web.whatsapp.com"),
		BrowserUserDataDir:   getEnv("BROWSER_USER_DATA_DIR", defaultBrowserDir()),
		BrowserHeadless:      getEnvBool("BROWSER_HEADLESS", false),
		BrowserNoSandbox:     getEnvBool("BROWSER_NO_SANDBOX", false),
		DeliveryReadyTimeout: getEnvDuration("DELIVERY_READY_TIMEOUT", 60*time.Second),
		DeliverySendTimeout:  getEnvDuration("DELIVERY_SEND_TIMEOUT", 30*time.Second),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaTopicEvents:   getEnv("KAFKA_TOPIC_EVENTS", "wishes.events.v1"),
		KafkaGroupRecorder: getEnv("KAFKA_GROUP_RECORDER", "wishes-recorder"),

		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout:    getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookMaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 5),
	}
}

// Validate reports configuration values the service cannot start with.
func (c *Config) Validate() error {
	switch c.ImageProvider {
	case ProviderBedrock:
		if c.BedrockModelID == "" {
			return fmt.Errorf("BEDROCK_MODEL_ID is required for the bedrock provider")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("invalid IMAGE_PROVIDER %q: must be %s or %s", c.ImageProvider, ProviderBedrock, ProviderGemini)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	}

	if c.DefaultCountryCode == "" {
		return fmt.Errorf("PHONE_DEFAULT_COUNTRY_CODE is required")
	}
	for _, r := range c.DefaultCountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("PHONE_DEFAULT_COUNTRY_CODE must contain digits only, got %q", c.DefaultCountryCode)
		}
	}

	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	return nil
}

func defaultOutputDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "generated_images"
	}
	return filepath.Join(wd, "generated_images")
}

// defaultBrowserDir keeps the WhatsApp Web login between runs.
func defaultBrowserDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wishes-chrome")
	}
	return filepath.Join(dir, "wishes", "chrome")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
