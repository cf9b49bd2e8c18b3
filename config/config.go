// Package config loads runtime configuration from the environment, with an
// optional .env file for local development. Every knob has a default so the
// server starts with zero configuration against a local sqlite file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration tree.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pesapal  PesapalConfig
	SMTP     SMTPConfig
	Savings  SavingsConfig
	LogLevel string
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Path string
}

type PesapalConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	IPNURL         string
	Currency       string
}

// Enabled reports whether gateway credentials are configured. Without them
// the server runs with online payments disabled.
func (c PesapalConfig) Enabled() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound mail is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type SavingsConfig struct {
	// AnnualInterestRate is the percentage credited to savings, pro-rated
	// monthly by the accrual sweep.
	AnnualInterestRate string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", "*")
	v.SetDefault("database.path", "sacco.db")
	v.SetDefault("pesapal.base_url", "https://cybqa.pesapal.com/pesapalv3")
	v.SetDefault("pesapal.currency", "KES")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("savings.annual_interest_rate", "4.0")
	v.SetDefault("log.level", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			AllowedOrigins: splitOrigins(v.GetString("server.allowed_origins")),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Pesapal: PesapalConfig{
			BaseURL:        v.GetString("pesapal.base_url"),
			ConsumerKey:    v.GetString("pesapal.consumer_key"),
			ConsumerSecret: v.GetString("pesapal.consumer_secret"),
			CallbackURL:    v.GetString("pesapal.callback_url"),
			IPNURL:         v.GetString("pesapal.ipn_url"),
			Currency:       v.GetString("pesapal.currency"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Savings: SavingsConfig{
			AnnualInterestRate: v.GetString("savings.annual_interest_rate"),
		},
		LogLevel: v.GetString("log.level"),
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database path must not be empty")
	}
	return cfg, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
