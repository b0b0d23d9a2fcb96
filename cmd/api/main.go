package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/fatoora-api/internal/application/compliance"
	infrapdf "github.com/jhoicas/fatoora-api/internal/infrastructure/pdf"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/postgres"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/redislock"
	infrazatca "github.com/jhoicas/fatoora-api/internal/infrastructure/zatca"
	"github.com/jhoicas/fatoora-api/internal/infrastructure/zatca/signer"
	httpRouter "github.com/jhoicas/fatoora-api/internal/interfaces/http"
	"github.com/jhoicas/fatoora-api/pkg/config"
	"github.com/jhoicas/fatoora-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("zatca_env", cfg.ZATCA.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	tenantRepo := postgres.NewTenantRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Firma: P1363 por defecto, DER como alterno
	encoding, ok := signer.ParseEncoding(cfg.ZATCA.SignatureEncoding)
	if !ok {
		log.Fatal().Str("encoding", cfg.ZATCA.SignatureEncoding).Msg("codificación de firma no soportada")
	}
	signerSvc := signer.NewDigitalSignatureService(encoding)
	pipeline := compliance.NewDocumentPipeline(infrazatca.NewXMLBuilderService(), signerSvc)

	// Llave de desarrollo: solo en env dev y solo para tenants sin llave propia
	var devKey *signer.KeyMaterial
	if cfg.ZATCA.Environment == infrazatca.EnvDev && cfg.ZATCA.DevKeyP12Path != "" {
		devKey, err = signer.LoadFromP12(cfg.ZATCA.DevKeyP12Path, cfg.ZATCA.DevKeyP12Password)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ZATCA.DevKeyP12Path).Msg("cargar llave de desarrollo")
		}
		log.Warn().Msg("usando llave de desarrollo para tenants sin llave")
	}
	keys := compliance.NewKeyResolver(devKey)

	client := infrazatca.NewClient(infrazatca.ClientConfig{
		BaseURL:     cfg.ZATCA.BaseURL,
		Environment: cfg.ZATCA.Environment,
		Timeout:     cfg.ZATCA.RequestTimeout,
		Retry: infrazatca.RetryPolicy{
			MaxAttempts: cfg.ZATCA.RetryMaxAttempts,
			Initial:     cfg.ZATCA.RetryInitial,
			Max:         cfg.ZATCA.RetryMax,
		},
	}, log.Component("zatca_client"))

	complianceCfg := compliance.Config{
		ReportingWindow: cfg.ZATCA.ReportingWindow,
		RequestDelay:    cfg.ZATCA.RequestDelay,
		JobInterval:     cfg.ZATCA.JobInterval,
		JobLockTTL:      cfg.Redis.LockTTL,
		SignMaxAttempts: cfg.ZATCA.SignMaxAttempts,
		SubmittedGrace:  cfg.ZATCA.SubmittedGrace,
	}

	signUC := compliance.NewSignInvoiceUseCase(invoiceRepo, tenantRepo, txRunner, pipeline, keys, client, complianceCfg, log.Zerolog())
	resubmitUC := compliance.NewResubmitUseCase(invoiceRepo, tenantRepo, client, complianceCfg, log.Zerolog())
	queryUC := compliance.NewQueryUseCase(invoiceRepo, tenantRepo, infrapdf.NewMarotoPDFGenerator())
	verifyUC := compliance.NewVerifyChainUseCase(invoiceRepo, tenantRepo, signerSvc, keys)

	// Lock del job: Redis si está configurado, local en otro caso
	var locker compliance.JobLocker
	redisClient, err := redislock.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = redislock.New(redisClient, log.Component("redis_lock"))
	}
	reportingJob := compliance.NewReportingJob(invoiceRepo, tenantRepo, signUC, client, locker, complianceCfg, log.Zerolog())

	jobCtx, stopJob := context.WithCancel(context.Background())
	defer stopJob()
	if cfg.ZATCA.JobEnabled {
		go reportingJob.RunForever(jobCtx)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Fatoora API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		SignInvoice:  signUC,
		Resubmit:     resubmitUC,
		Query:        queryUC,
		VerifyChain:  verifyUC,
		ReportingJob: reportingJob,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stopJob()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
