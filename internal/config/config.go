package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv          string        `yaml:"app_env"`
	HTTPPort        string        `yaml:"http_port"`
	LogLevel        string        `yaml:"log_level"`
	DatabaseURL     string        `yaml:"database_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`

	LLMProvider       string        `yaml:"llm_provider"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIModel       string        `yaml:"openai_model"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	VerifyProvider   string `yaml:"verify_provider"`
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioServiceSID string `yaml:"twilio_verify_service_sid"`

	AliyunAccessKeyID     string `yaml:"aliyun_access_key_id"`
	AliyunAccessKeySecret string `yaml:"aliyun_access_key_secret"`
	AliyunSignName        string `yaml:"aliyun_sign_name"`
	AliyunTemplateCode    string `yaml:"aliyun_template_code"`
	AliyunCountryCode     string `yaml:"aliyun_country_code"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	OTPRateLimit  int           `yaml:"otp_rate_limit"`
	OTPRateWindow time.Duration `yaml:"otp_rate_window"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	VerifyTwilio = "twilio"
	VerifyAliyun = "aliyun"
	VerifyLocal  = "local"
)

func defaults() Config {
	return Config{
		AppEnv:            "production",
		HTTPPort:          "8080",
		LogLevel:          "info",
		DatabaseURL:       "clearr.db",
		ShutdownTimeout:   10 * time.Second,
		JWTTTL:            7 * 24 * time.Hour,
		LLMProvider:       ProviderGemini,
		OpenAIBaseURL:     "https://api.openai.com/v1",
		GenerationTimeout: 30 * time.Second,
		VerifyProvider:    VerifyTwilio,
		AliyunCountryCode: "86",
		OTPRateLimit:      5,
		OTPRateWindow:     15 * time.Minute,
	}
}

// IsDevelopment enables verbose errors in responses.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// process environment. Later sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.VerifyProvider = strings.ToLower(strings.TrimSpace(cfg.VerifyProvider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"APP_ENV":                   &cfg.AppEnv,
		"HTTP_PORT":                 &cfg.HTTPPort,
		"LOG_LEVEL":                 &cfg.LogLevel,
		"DATABASE_URL":              &cfg.DatabaseURL,
		"JWT_SECRET":                &cfg.JWTSecret,
		"LLM_PROVIDER":              &cfg.LLMProvider,
		"GEMINI_API_KEY":            &cfg.GeminiAPIKey,
		"GEMINI_MODEL":              &cfg.GeminiModel,
		"OPENAI_BASE_URL":           &cfg.OpenAIBaseURL,
		"OPENAI_API_KEY":            &cfg.OpenAIAPIKey,
		"OPENAI_MODEL":              &cfg.OpenAIModel,
		"VERIFY_PROVIDER":           &cfg.VerifyProvider,
		"TWILIO_ACCOUNT_SID":        &cfg.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":         &cfg.TwilioAuthToken,
		"TWILIO_VERIFY_SERVICE_SID": &cfg.TwilioServiceSID,
		"ALIYUN_ACCESS_KEY_ID":      &cfg.AliyunAccessKeyID,
		"ALIYUN_ACCESS_KEY_SECRET":  &cfg.AliyunAccessKeySecret,
		"ALIYUN_SIGN_NAME":          &cfg.AliyunSignName,
		"ALIYUN_TEMPLATE_CODE":      &cfg.AliyunTemplateCode,
		"ALIYUN_COUNTRY_CODE":       &cfg.AliyunCountryCode,
		"REDIS_ADDR":                &cfg.RedisAddr,
		"REDIS_PASSWORD":            &cfg.RedisPassword,
	}
	for key, dst := range strs {
		if value, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(value)
		}
	}
	// PORT is what most hosting platforms inject.
	if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		cfg.HTTPPort = strings.TrimSpace(value)
	}

	durations := map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":   &cfg.ShutdownTimeout,
		"JWT_TTL":            &cfg.JWTTTL,
		"GENERATION_TIMEOUT": &cfg.GenerationTimeout,
		"OTP_RATE_WINDOW":    &cfg.OTPRateWindow,
	}
	for key, dst := range durations {
		value, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if value, ok := os.LookupEnv("OTP_RATE_LIMIT"); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("OTP_RATE_LIMIT: %w", err)
		}
		cfg.OTPRateLimit = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.VerifyProvider {
	case VerifyTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioServiceSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_VERIFY_SERVICE_SID are required"))
		}
	case VerifyAliyun:
		if c.AliyunAccessKeyID == "" || c.AliyunAccessKeySecret == "" {
			errs = append(errs, errors.New("ALIYUN_ACCESS_KEY_ID and ALIYUN_ACCESS_KEY_SECRET are required"))
		}
	case VerifyLocal:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the local verifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFY_PROVIDER %q", c.VerifyProvider))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("GENERATION_TIMEOUT must be positive"))
	}
	if c.RedisAddr != "" && (c.OTPRateLimit <= 0 || c.OTPRateWindow < time.Millisecond) {
		errs = append(errs, errors.New("OTP rate limit and window must be positive"))
	}
	return errors.Join(errs...)
}
