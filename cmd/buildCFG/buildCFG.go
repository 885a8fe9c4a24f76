package buildCFG

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventhub/internal/mailer"
	"eventhub/internal/scheduler"
	"eventhub/internal/sms"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type PaymentConfig struct {
	WebhookSecret  string
	Currency       string
	PaymentTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port not set, using 8080")
		port = "8080"
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("db.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("db.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("db.slave_dsns")

	lifetime, err := durationOr(cfg.GetString("db.conn_max_lifetime"), 5*time.Minute)
	if err != nil {
		return "", nil, nil, fmt.Errorf("db.conn_max_lifetime: %w", err)
	}

	opts := &dbpg.Options{
		MaxOpenConns:    intOr(cfg.GetInt("db.max_open_conns"), 10),
		MaxIdleConns:    intOr(cfg.GetInt("db.max_idle_conns"), 5),
		ConnMaxLifetime: lifetime,
	}

	log.Info().
		Int("slaves", len(slaveDSNs)).
		Int("max_open_conns", opts.MaxOpenConns).
		Msg("database config loaded")

	return masterDSN, slaveDSNs, opts, nil
}

func BuildMigrationsDir(cfg *config.Config) string {
	return stringOr(cfg.GetString("db.migrations_dir"), "migrations/postgres")
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: stringOr(cfg.GetString("rabbitmq.exchange"), "eventhub.delayed"),
		Queue:    stringOr(cfg.GetString("rabbitmq.queue"), "eventhub.tasks"),
	}
	if rc.Url == "" {
		return rc, errors.New("rabbitmq.url is required")
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildPaymentConfig(cfg *config.Config, log *zerolog.Logger) (PaymentConfig, error) {
	timeout, err := durationOr(cfg.GetString("payment.timeout"), 30*time.Minute)
	if err != nil {
		return PaymentConfig{}, fmt.Errorf("payment.timeout: %w", err)
	}
	pc := PaymentConfig{
		WebhookSecret:  cfg.GetString("payment.webhook_secret"),
		Currency:       strings.ToUpper(stringOr(cfg.GetString("payment.currency"), "INR")),
		PaymentTimeout: timeout,
	}
	if pc.WebhookSecret == "" {
		return pc, errors.New("payment.webhook_secret is required")
	}
	log.Info().Str("currency", pc.Currency).Dur("timeout", pc.PaymentTimeout).Msg("payment config loaded")
	return pc, nil
}

func BuildAuthConfig(cfg *config.Config) (AuthConfig, error) {
	ac := AuthConfig{
		JWTSecret: cfg.GetString("auth.jwt_secret"),
		Issuer:    cfg.GetString("auth.issuer"),
	}
	if len(ac.JWTSecret) < 32 {
		return ac, errors.New("auth.jwt_secret must be at least 32 characters")
	}
	return ac, nil
}

func BuildMailerConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Host:     stringOr(cfg.GetString("mailer.host"), "localhost"),
		Port:     intOr(cfg.GetInt("mailer.port"), 587),
		Username: cfg.GetString("mailer.username"),
		Password: cfg.GetString("mailer.password"),
		From:     stringOr(cfg.GetString("mailer.from"), "no-reply@eventhub.local"),
	}
	if mc.Username == "" {
		log.Warn().Str("host", mc.Host).Msg("mailer credentials not set, sending without auth")
	}
	return mc
}

func BuildSMSConfig(cfg *config.Config) sms.Config {
	return sms.Config{
		GatewayURL: cfg.GetString("sms.gateway_url"),
		APIKey:     cfg.GetString("sms.api_key"),
		Sender:     stringOr(cfg.GetString("sms.sender"), "EVENTHUB"),
	}
}

func BuildSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		ReferralsSpec:     stringOr(cfg.GetString("scheduler.referrals"), "@every 10m"),
		NotificationsSpec: stringOr(cfg.GetString("scheduler.notifications"), "@every 1m"),
	}
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
