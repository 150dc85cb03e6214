package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/config"
	"github.com/mbolis/workation/database"
	"github.com/mbolis/workation/guard"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/metrics"
	"github.com/mbolis/workation/notify"
	"github.com/mbolis/workation/routes"
	"github.com/mbolis/workation/store"
	"github.com/mbolis/workation/store/mongostore"
	"github.com/mbolis/workation/upload"
)

// a submission holds its guard at most this long on Redis
const submitHoldTTL = 30 * time.Second

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if err = log.Setup(cfg.LogFormat, cfg.Debug); err != nil {
		log.Fatal("main.log:", err)
	}
	ctx := context.Background()

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	if cfg.AdminUser != "" {
		created, err := database.EnsureAdmin(ctx, db, cfg.AdminUser, cfg.AdminPassword)
		if err != nil {
			log.Fatal("main.db.admin:", err)
		}
		if created {
			log.Infof("created admin user %s", cfg.AdminUser)
		}
	}

	stores, err := openStores(ctx, cfg, db)
	if err != nil {
		log.Fatal("main.store:", err)
	}
	defer stores.Close(context.Background())

	submitGuard, closeGuard := newGuard(ctx, cfg)
	defer closeGuard()

	bucket, closeBucket, err := newBucket(ctx, cfg)
	if err != nil {
		log.Fatal("main.upload:", err)
	}
	defer closeBucket()

	mailer, err := newMailer(cfg)
	if err != nil {
		log.Fatal("main.mailer:", err)
	}

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Stores:       stores,
		Notify:       notify.NewService(mailer, stores.Content, cfg.AdminEmail),
		Upload:       upload.NewService(bucket, cfg.UploadMaxBytes),
		Guard:        submitGuard,
		Metrics:      metrics.New(),
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func openStores(ctx context.Context, cfg config.Config, db *sql.DB) (store.Stores, error) {
	if cfg.Store == config.StoreMongo {
		log.Infof("storing documents in MongoDB database %s", cfg.MongoDB)
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
	}
	return store.NewSQL(db), nil
}

func newGuard(ctx context.Context, cfg config.Config) (guard.Guard, func()) {
	if cfg.RedisAddr == "" {
		g := guard.NewMemory()
		return g, g.Close
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("main.redis.ping: %s", err)
	}
	return guard.NewRedis(client, submitHoldTTL), func() { client.Close() }
}

func newBucket(ctx context.Context, cfg config.Config) (upload.Bucket, func(), error) {
	if cfg.UploadBackend == config.UploadGCS {
		b, err := upload.NewGCSBucket(ctx, upload.GCSConfig{
			Bucket:          cfg.GCSBucket,
			PublicBaseURL:   cfg.PublicBaseURL,
			CredentialsFile: cfg.GCSCredentials,
			EmulatorHost:    cfg.GCSEmulator,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = cfg.Url() + "/uploads"
	}
	b, err := upload.NewDirBucket(cfg.UploadDir, baseURL)
	return b, func() {}, err
}

func newMailer(cfg config.Config) (notify.Mailer, error) {
	if cfg.SendGridAPIKey == "" {
		log.Warn("no SendGrid API key, emails will only be logged")
		return notify.LogMailer{}, nil
	}
	return notify.NewSendGridMailer(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		BaseURL:   cfg.SendGridBaseURL,
		FromEmail: cfg.MailFrom,
		FromName:  cfg.MailFromName,
	})
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
