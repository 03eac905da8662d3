// Package config loads server settings from a .env file, CAMPUSRENT_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/campusrent/campusrent/internal/auth"
	"github.com/campusrent/campusrent/internal/blob"
	"github.com/campusrent/campusrent/internal/booking"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CAMPUSRENT"

// Blob backends.
const (
	BlobsDB = "db"
	BlobsS3 = "s3"
)

// Config holds everything the server needs to start.
type Config struct {
	DBPath          string `envconfig:"DB" default:"campusrent.sqlite3"`
	Addr            string `envconfig:"ADDR" default:":8080"`
	ManagerUsername string `envconfig:"MANAGER" default:"Manager"`
	LogFile         string `envconfig:"LOG"`

	// JWTSecret overrides the secret generated and stored on first run.
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	TokenTTL        time.Duration `envconfig:"TOKEN_TTL"`
	RequireVerified bool          `envconfig:"REQUIRE_VERIFIED"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL"`

	Blobs string      `envconfig:"BLOBS" default:"db"`
	S3    S3Config    `envconfig:"S3"`
	AMQP  AMQPConfig  `envconfig:"AMQP"`
	Redis RedisConfig `envconfig:"REDIS"`
}

// S3Config mirrors blob.S3Config.
type S3Config struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	Region    string `envconfig:"REGION" default:"us-east-1"`
	Bucket    string `envconfig:"BUCKET"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	PublicURL string `envconfig:"PUBLIC_URL"`
}

// AMQPConfig enables the AMQP notification sink when URL is set.
type AMQPConfig struct {
	URL   string `envconfig:"URL"`
	Queue string `envconfig:"QUEUE" default:"campusrent.notifications"`
}

// RedisConfig enables the Redis notification sink when Addr is set.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB"`
	Channel  string `envconfig:"CHANNEL" default:"campusrent.notifications"`
}

// BlobS3 converts the S3 settings for blob.NewS3Store.
func (c *Config) BlobS3() blob.S3Config {
	return blob.S3Config(c.S3)
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	switch c.Blobs {
	case BlobsDB:
	case BlobsS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required for the s3 blob backend", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown blob backend %q (want %s or %s)", c.Blobs, BlobsDB, BlobsS3)
	}
	if c.DBPath == "" {
		return errors.New("database path must not be empty")
	}
	if c.TokenTTL < 0 {
		return errors.New("token TTL must not be negative")
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval must not be negative")
	}
	return nil
}

// Load reads envFile (a missing file is not an error), then the environment,
// then args. Variables already set in the environment win over envFile.
// flag.ErrHelp is returned as is after usage has been written to out.
func Load(envFile string, args []string, out io.Writer) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = booking.DefaultSweepInterval
	}

	if err := cfg.parseFlags(args, out); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) parseFlags(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("campusrent", flag.ContinueOnError)
	flags.SetOutput(out)

	flags.StringVar(&c.DBPath, "db", c.DBPath, "")
	flags.StringVar(&c.DBPath, "d", c.DBPath, "")

	flags.StringVar(&c.Addr, "addr", c.Addr, "")
	flags.StringVar(&c.Addr, "a", c.Addr, "")

	flags.StringVar(&c.ManagerUsername, "user", c.ManagerUsername, "")
	flags.StringVar(&c.ManagerUsername, "u", c.ManagerUsername, "")

	flags.StringVar(&c.LogFile, "log", c.LogFile, "")
	flags.StringVar(&c.LogFile, "l", c.LogFile, "")

	flags.StringVar(&c.Blobs, "blobs", c.Blobs, "")
	flags.StringVar(&c.Blobs, "b", c.Blobs, "")

	flags.BoolVar(&c.RequireVerified, "require-verified", c.RequireVerified, "")
	flags.BoolVar(&c.RequireVerified, "v", c.RequireVerified, "")

	flags.Usage = func() {
		fmt.Fprint(out, `Usage: campusrent [flags]

Flags:
  -d, -db <path>            SQLite database path (default: campusrent.sqlite3)
  -a, -addr <host:port>     listen address (default: :8080)
  -u, -user <name>          manager username on first run (default: Manager)
  -l, -log <path>           log file path (default: no file, stdout/stderr only)
  -b, -blobs <db|s3>        image storage backend (default: db)
  -v, -require-verified     only verified accounts may use messaging
  -h, -help                 show this help and exit

Every setting can also come from a CAMPUSRENT_* environment variable or a
.env file in the working directory. Flags take precedence.
`)
	}

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		flags.Usage()
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	return nil
}
