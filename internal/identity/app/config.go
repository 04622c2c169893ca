package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencouncil/cityreport/internal/identity/mail"
	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/pkg/jwtx"
)

// Config is the full runtime configuration of the identity service, read
// from the environment (optionally seeded from a .env file).
type Config struct {
	Service string
	Version string
	Env     string

	ListenAddr string

	LogLevel  string
	LogFormat string

	DatabaseFile string

	SigningSecret []byte
	Issuer        string
	Audience      []string
	TokenTTL      time.Duration

	OTPTTL         time.Duration
	OTPMaxAttempts int

	// MFAIssuer is the label shown in authenticator apps.
	MFAIssuer string

	SMTP mail.SMTPConfig

	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over file entries.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Service: "identity",
		Version: getEnv("VERSION", "dev"),
		Env:     getEnv("ENV", "development"),

		ListenAddr: ":" + getEnv("PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseFile: getEnv("IDENTITY_DATABASE_FILE", "identity.db"),

		SigningSecret: []byte(os.Getenv("IDENTITY_SIGNING_SECRET")),
		Issuer:        getEnv("IDENTITY_ISSUER", "cityreport"),
		Audience:      splitList(getEnv("IDENTITY_AUDIENCE", "cityreport-api")),
		TokenTTL:      getEnvDuration("IDENTITY_TOKEN_TTL", jwtx.DefaultTokenTTL),

		OTPTTL:         getEnvDuration("IDENTITY_OTP_TTL", service.DefaultOTPTTL),
		OTPMaxAttempts: getEnvInt("IDENTITY_OTP_MAX_ATTEMPTS", service.DefaultOTPMaxAttempts),

		MFAIssuer: getEnv("IDENTITY_MFA_ISSUER", "CityReport"),

		SMTP: mail.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},

		ShutdownGracePeriod:  getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDuration("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval),
	}

	if len(cfg.SigningSecret) < jwtx.MinSecretLength {
		return Config{}, fmt.Errorf("IDENTITY_SIGNING_SECRET must be at least %d bytes", jwtx.MinSecretLength)
	}
	if cfg.OTPTTL <= 0 {
		return Config{}, fmt.Errorf("IDENTITY_OTP_TTL must be positive")
	}
	if cfg.OTPMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("IDENTITY_OTP_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
