package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventhub/cmd/buildCFG"
	"eventhub/internal/api/api"
	"eventhub/internal/auth"
	rabbitReader "eventhub/internal/consumerWorker"
	"eventhub/internal/mailer"
	"eventhub/internal/notify"
	"eventhub/internal/payment"
	"eventhub/internal/rabbit"
	"eventhub/internal/referral"
	"eventhub/internal/repo"
	"eventhub/internal/scheduler"
	"eventhub/internal/service"
	"eventhub/internal/sms"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	envPath := flag.String("env", "", "optional .env file")
	migrate := flag.String("migrate", "up", "apply migrations before start: up, down (roll back and exit) or skip")
	flag.Parse()

	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load(*configPath, *envPath, "EVENTHUB"); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	log.Info().Msg("database connected")

	migrationsDir := buildCFG.BuildMigrationsDir(cfg)
	switch *migrate {
	case "up":
		if err := repo.Migrate(context.Background(), db, &log, migrationsDir, false); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	case "down":
		if err := repo.Migrate(context.Background(), db, &log, migrationsDir, true); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		return
	case "skip":
	default:
		log.Fatal().Str("migrate", *migrate).Msg("unknown migrate mode")
	}

	paymentCfg, err := buildCFG.BuildPaymentConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load payment config")
	}
	authCfg, err := buildCFG.BuildAuthConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	queue := notify.NewQueue(repository, rmq, &log)
	dispatcher := notify.NewDispatcher(
		repository,
		mailer.New(buildCFG.BuildMailerConfig(cfg, &log), &log),
		sms.New(buildCFG.BuildSMSConfig(cfg), &log),
		rmq,
		&log,
	)
	processor := referral.NewProcessor(repository, queue, &log)
	jobs := scheduler.NewJobs(processor, dispatcher, &log)
	webhooks := payment.NewWebhookProcessor(repository, queue, rmq, paymentCfg.WebhookSecret, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	reader := rabbitReader.NewReader(rmq, repository, jobs, queue, &log)
	reader.Start(workerCtx)

	cron := scheduler.New(jobs, buildCFG.BuildSchedulerConfig(cfg), &log)
	if err := cron.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	svc := service.NewService(service.Deps{
		Repo:           repository,
		Notifier:       queue,
		Jobs:           jobs,
		Expirer:        rmq,
		Webhooks:       webhooks,
		Currency:       paymentCfg.Currency,
		PaymentTimeout: paymentCfg.PaymentTimeout,
		Log:            &log,
	})
	app := api.NewRouters(&api.Routers{
		Service:  svc,
		Verifier: auth.NewVerifier(authCfg.JWTSecret, authCfg.Issuer),
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Str("port", serverCfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Str("signal", sig.String()).Msg("initiating shutdown")
	case err := <-serverErrChan:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}
	cron.Stop(shutdownCtx)
	cancelWorkers()
	reader.Stop()

	log.Info().Msg("shutdown complete")
}
