package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	UploadGCS   = "gcs"
	UploadLocal = "local"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool
	LogFormat   string

	AdminUser     string
	AdminPassword string

	Store     string
	MongoURI  string
	MongoDB   string
	RedisAddr string
	RedisPass string
	RedisDB   int

	UploadBackend  string
	GCSBucket      string
	GCSCredentials string
	GCSEmulator    string
	UploadDir      string
	PublicBaseURL  string
	UploadMaxBytes int64

	SendGridAPIKey  string
	SendGridBaseURL string
	MailFrom        string
	MailFromName    string
	AdminEmail      string

	AllowedOrigins []string
}

// ParseFlags reads the command line. Every flag default comes from the
// environment (a .env file in the working directory is loaded first, if any).
func ParseFlags() (Config, error) {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (cfg Config, err error) {
	_ = godotenv.Load()

	var host string
	fs.StringVar(&host, "host", env("HOST", "0.0.0.0"), "listen host name")
	var port uint
	fs.UintVar(&port, "port", envUint("PORT", 80), "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", env("DB_URL", "workation.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	fs.UintVar(&ttl, "token-ttl", envUint("TOKEN_TTL", 120), "token TTL in seconds")
	fs.BoolVar(&cfg.Debug, "debug", env("DEBUG", "") != "", "log at DEBUG level")
	fs.StringVar(&cfg.LogFormat, "log-format", env("LOG_FORMAT", "text"), "log output format (text|json)")

	fs.StringVar(&cfg.AdminUser, "admin-user", env("ADMIN_USER", ""), "admin user created at startup if missing")
	fs.StringVar(&cfg.AdminPassword, "admin-password", env("ADMIN_PASSWORD", ""), "password for -admin-user")

	fs.StringVar(&cfg.Store, "store", env("STORE", StoreSQLite), "document store backend (sqlite|mongo)")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", env("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection string")
	fs.StringVar(&cfg.MongoDB, "mongo-db", env("MONGO_DB", "workation"), "MongoDB database name")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("REDIS_ADDR", ""), "Redis address for the submission guard (in-process guard if empty)")
	fs.StringVar(&cfg.RedisPass, "redis-password", env("REDIS_PASSWORD", ""), "Redis password")
	var redisDB uint
	fs.UintVar(&redisDB, "redis-db", envUint("REDIS_DB", 0), "Redis database number")

	fs.StringVar(&cfg.UploadBackend, "upload-backend", env("UPLOAD_BACKEND", UploadLocal), "object storage backend (gcs|local)")
	fs.StringVar(&cfg.GCSBucket, "gcs-bucket", env("GCS_BUCKET", ""), "GCS bucket for uploaded images")
	fs.StringVar(&cfg.GCSCredentials, "gcs-credentials", env("GOOGLE_APPLICATION_CREDENTIALS", ""), "service account key file (default credentials if empty)")
	fs.StringVar(&cfg.GCSEmulator, "gcs-emulator-host", env("STORAGE_EMULATOR_HOST", ""), "fake GCS server endpoint, unauthenticated")
	fs.StringVar(&cfg.UploadDir, "upload-dir", env("UPLOAD_DIR", "uploads"), "local directory for uploaded images")
	fs.StringVar(&cfg.PublicBaseURL, "public-base-url", env("PUBLIC_BASE_URL", ""), "public base URL of uploaded objects")
	var maxBytes uint
	fs.UintVar(&maxBytes, "upload-max-bytes", envUint("UPLOAD_MAX_BYTES", 10<<20), "maximum size of one uploaded file")

	fs.StringVar(&cfg.SendGridAPIKey, "sendgrid-api-key", env("SENDGRID_API_KEY", ""), "SendGrid API key (emails are only logged if empty)")
	fs.StringVar(&cfg.SendGridBaseURL, "sendgrid-base-url", env("SENDGRID_BASE_URL", "https://api.sendgrid.com"), "SendGrid API base URL")
	fs.StringVar(&cfg.MailFrom, "mail-from", env("MAIL_FROM", "no-reply@example.com"), "sender address")
	fs.StringVar(&cfg.MailFromName, "mail-from-name", env("MAIL_FROM_NAME", "Workation"), "sender display name")
	fs.StringVar(&cfg.AdminEmail, "admin-email", env("ADMIN_EMAIL", ""), "blind copy address for confirmations")

	var origins string
	fs.StringVar(&origins, "allowed-origins", env("ALLOWED_ORIGINS", "*"), "comma separated CORS origins")

	if err = fs.Parse(args); err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.RedisDB = int(redisDB)
	cfg.UploadMaxBytes = int64(maxBytes)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	err = cfg.validate()
	return
}

func (cfg Config) validate() error {
	if cfg.TokenSecret == "" {
		return errors.New("missing parameter -token-secret")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return errors.New("invalid -log-format " + strconv.Quote(cfg.LogFormat))
	}
	switch cfg.Store {
	case StoreSQLite, StoreMongo:
	default:
		return errors.New("invalid -store " + strconv.Quote(cfg.Store))
	}
	switch cfg.UploadBackend {
	case UploadLocal:
	case UploadGCS:
		if cfg.GCSBucket == "" {
			return errors.New("missing parameter -gcs-bucket")
		}
	default:
		return errors.New("invalid -upload-backend " + strconv.Quote(cfg.UploadBackend))
	}
	if cfg.AdminUser != "" && cfg.AdminPassword == "" {
		return errors.New("missing parameter -admin-password")
	}
	return nil
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func env(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func envUint(name string, def uint) uint {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return uint(n)
}
