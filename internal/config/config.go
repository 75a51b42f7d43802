package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storefront/internal/models"
)

const defaultPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | mongo
	DSN      string `yaml:"url"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	UserTTL  time.Duration `yaml:"user_ttl"`
	AdminTTL time.Duration `yaml:"admin_ttl"`
}

type LoginConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	LockDuration time.Duration `yaml:"lock_duration"`
}

type OTPConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Retention    time.Duration `yaml:"retention"`
	PurgeEvery   time.Duration `yaml:"purge_every"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Window       time.Duration `yaml:"window"`
	MaxPerWindow int           `yaml:"max_per_window"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type MobizonConfig struct {
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	DryRun   bool   `yaml:"dry_run"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Login    LoginConfig    `yaml:"login"`
	OTP      OTPConfig      `yaml:"otp"`
	Email    EmailConfig    `yaml:"email"`
	Mobizon  MobizonConfig  `yaml:"mobizon"`
	Telegram TelegramConfig `yaml:"telegram"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// LoadConfig reads CONFIG_PATH (or config/config.yaml), then applies .env and
// environment overrides and fills defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env необязателен

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Database.MongoURI, "MONGO_URI")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.Mobizon.APIKey, "MOBIZON_API_KEY")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Admin.Password, "ADMIN_PASSWORD")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RatePerMinute <= 0 {
		c.Server.RatePerMinute = 60
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MongoDB == "" {
		c.Database.MongoDB = "storefront"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "storefront"
	}
	if c.JWT.UserTTL <= 0 {
		c.JWT.UserTTL = 7 * 24 * time.Hour
	}
	if c.JWT.AdminTTL <= 0 {
		c.JWT.AdminTTL = 24 * time.Hour
	}
	if c.Login.MaxFailures <= 0 {
		c.Login.MaxFailures = 5
	}
	if c.Login.LockDuration <= 0 {
		c.Login.LockDuration = 2 * time.Hour
	}
	if c.OTP.TTL <= 0 {
		c.OTP.TTL = 5 * time.Minute
	}
	if c.OTP.MaxAttempts <= 0 {
		c.OTP.MaxAttempts = 3
	}
	if c.OTP.Retention <= 0 {
		c.OTP.Retention = 10 * time.Minute
	}
	if c.OTP.PurgeEvery <= 0 {
		c.OTP.PurgeEvery = time.Minute
	}
	if c.OTP.Cooldown <= 0 {
		c.OTP.Cooldown = 30 * time.Second
	}
	if c.OTP.Window <= 0 {
		c.OTP.Window = 10 * time.Minute
	}
	if c.OTP.MaxPerWindow <= 0 {
		c.OTP.MaxPerWindow = 5
	}
	if c.Admin.Name == "" {
		c.Admin.Name = "Administrator"
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.url is required for postgres driver")
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for mongo driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("jwt.secret must be at least 16 characters")
	}
	// админ создаётся на старте, телефон у аккаунта обязателен
	if c.Admin.Email != "" && c.Admin.Password != "" {
		if !models.PhonePattern.MatchString(models.NormalizePhone(c.Admin.Phone)) {
			return fmt.Errorf("admin.phone must be 10-15 digits when admin.email is set, got %q", c.Admin.Phone)
		}
	}
	return nil
}
