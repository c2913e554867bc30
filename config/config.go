package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	YooKassa  YooKassaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustedProxies lists proxies whose X-Forwarded-For is honoured; empty trusts none.
	TrustedProxies []string
}

type DatabaseConfig struct {
	Driver          string // mysql or sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type PaymentConfig struct {
	// Gateway selects the provider: yookassa or sandbox.
	Gateway string
	// WebhookSecret enables X-Webhook-Signature (HMAC-SHA256) verification when set.
	WebhookSecret string
	// WebhookAllowedCIDRs restricts webhook source addresses when non-empty.
	WebhookAllowedCIDRs []string
	// ReturnBaseURL is the public origin the donor is sent back to, e.g. https://schools.example.com
	ReturnBaseURL string
	// NotFoundRetryBudget is how many gateway NotFound answers a pending transaction
	// absorbs before it is marked failed.
	NotFoundRetryBudget int
	DefaultDescription  string
}

type YooKassaConfig struct {
	BaseURL    string
	ShopID     string
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.readtimeout", 10*time.Second)
	v.SetDefault("server.writetimeout", 10*time.Second)
	v.SetDefault("server.trustedproxies", []string{})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "newschools:newschools@tcp(localhost:3306)/newschools?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.maxidleconns", 10)
	v.SetDefault("database.maxopenconns", 100)
	v.SetDefault("database.connmaxlifetime", time.Hour)

	v.SetDefault("jwt.accesssecret", "change-me-in-production")
	v.SetDefault("jwt.accessexpiry", 12*time.Hour)
	v.SetDefault("jwt.issuer", "newschools")

	v.SetDefault("payment.gateway", "yookassa")
	v.SetDefault("payment.webhooksecret", "")
	v.SetDefault("payment.webhookallowedcidrs", []string{})
	v.SetDefault("payment.returnbaseurl", "http://localhost:8099")
	v.SetDefault("payment.notfoundretrybudget", 5)
	v.SetDefault("payment.defaultdescription", "Пожертвование")

	v.SetDefault("yookassa.baseurl", "https://api.yookassa.ru")
	v.SetDefault("yookassa.shopid", "")
	v.SetDefault("yookassa.secretkey", "")
	v.SetDefault("yookassa.timeout", 30*time.Second)
	v.SetDefault("yookassa.maxretries", 3)
	v.SetDefault("yookassa.retrydelay", 500*time.Millisecond)

	v.SetDefault("ratelimit.requestspersecond", 2.0)
	v.SetDefault("ratelimit.burst", 20)
}

// Load reads defaults, an optional config file and the environment, in that order of
// precedence (environment wins). A .env file in the working directory is loaded first
// without overriding variables that are already set.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Env:            v.GetString("server.env"),
			ReadTimeout:    v.GetDuration("server.readtimeout"),
			WriteTimeout:   v.GetDuration("server.writetimeout"),
			TrustedProxies: v.GetStringSlice("server.trustedproxies"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.maxidleconns"),
			MaxOpenConns:    v.GetInt("database.maxopenconns"),
			ConnMaxLifetime: v.GetDuration("database.connmaxlifetime"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("jwt.accesssecret"),
			AccessExpiry: v.GetDuration("jwt.accessexpiry"),
			Issuer:       v.GetString("jwt.issuer"),
		},
		Payment: PaymentConfig{
			Gateway:             v.GetString("payment.gateway"),
			WebhookSecret:       v.GetString("payment.webhooksecret"),
			WebhookAllowedCIDRs: v.GetStringSlice("payment.webhookallowedcidrs"),
			ReturnBaseURL:       strings.TrimRight(v.GetString("payment.returnbaseurl"), "/"),
			NotFoundRetryBudget: v.GetInt("payment.notfoundretrybudget"),
			DefaultDescription:  v.GetString("payment.defaultdescription"),
		},
		YooKassa: YooKassaConfig{
			BaseURL:    strings.TrimRight(v.GetString("yookassa.baseurl"), "/"),
			ShopID:     v.GetString("yookassa.shopid"),
			SecretKey:  v.GetString("yookassa.secretkey"),
			Timeout:    v.GetDuration("yookassa.timeout"),
			MaxRetries: v.GetInt("yookassa.maxretries"),
			RetryDelay: v.GetDuration("yookassa.retrydelay"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("ratelimit.requestspersecond"),
			Burst:             v.GetInt("ratelimit.burst"),
		},
	}
	if cfg.Payment.NotFoundRetryBudget < 1 {
		cfg.Payment.NotFoundRetryBudget = 1
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
