package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the services depend on. It is loaded once at
// startup and passed down by value reference; nothing reads the environment
// after Load returns.
type Config struct {
	Port        string   `mapstructure:"PORT"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	Production  bool     `mapstructure:"PRODUCTION"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	OtpTTL      time.Duration `mapstructure:"OTP_TTL"`
	OtpAttempts int           `mapstructure:"OTP_ATTEMPTS"`

	ResetTokenTTL time.Duration `mapstructure:"RESET_TOKEN_TTL"`

	// Categories is the fixed set of post categories and user interests.
	Categories []string `mapstructure:"CATEGORIES"`

	// MinInterests is the number of interests a registration must carry.
	MinInterests int `mapstructure:"MIN_INTERESTS"`

	SMTPName     string `mapstructure:"SMTP_NAME"`
	SMTPEmail    string `mapstructure:"SMTP_EMAIL"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	MinioEndpoint       string `mapstructure:"MINIO_INTERNAL_ENDPOINT"`
	MinioPublicEndpoint string `mapstructure:"MINIO_PUBLIC_ENDPOINT"`
	MinioAccessKey      string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey      string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket         string `mapstructure:"MINIO_BUCKET"`

	GoogleClientId string `mapstructure:"GOOGLE_CLIENT_ID"`

	FrontendURL string `mapstructure:"FRONTEND_URL"`
}

func Load() *Config {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found; using environment variables and defaults")
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	viper.SetDefault("PORT", "8000")
	viper.SetDefault("CORS_ORIGINS", []string{"http://localhost:5173"})
	viper.SetDefault("PRODUCTION", false)

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "")
	viper.SetDefault("DB_NAME", "inkwell")

	viper.SetDefault("ACCESS_TOKEN_TTL", "1h")
	viper.SetDefault("REFRESH_TOKEN_TTL", "360h")
	viper.SetDefault("OTP_TTL", "10m")
	viper.SetDefault("OTP_ATTEMPTS", 3)
	viper.SetDefault("RESET_TOKEN_TTL", "1h")
	viper.SetDefault("MIN_INTERESTS", 3)

	viper.SetDefault("CATEGORIES", []string{
		"technology", "science", "programming", "travel", "food",
		"lifestyle", "health", "education", "entertainment", "sports",
	})

	viper.SetDefault("SMTP_NAME", "Inkwell")
	viper.SetDefault("MINIO_BUCKET", "inkwell-bucket")
	viper.SetDefault("FRONTEND_URL", "http://localhost:5173")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode config into struct, %v", err)
	}

	return &config
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=disable TimeZone=UTC"
}

// HasCategory reports whether name is a known category. Matching is
// case-insensitive; stored values are always lowercase.
func (c *Config) HasCategory(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, cat := range c.Categories {
		if cat == name {
			return true
		}
	}
	return false
}
