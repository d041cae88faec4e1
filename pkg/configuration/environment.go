package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/projtrack/pkg/logging"
)

var DefaultEnvFiles = []string{".env", ".env.local"}

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	// URL selects the primary store. Empty means the local SQLite file.
	URL       string `env:"DATABASE_URL"`
	TargetURL string `env:"TARGET_DATABASE_URL"`
	LocalPath string `env:"LOCAL_DB_PATH" envDefault:"./data/projects.db"`
}

func (d *DatabaseOptions) IsLocal() bool {
	return strings.TrimSpace(d.URL) == ""
}

type ImportOptions struct {
	Source      string `env:"IMPORT_SOURCE"`
	BatchSize   int    `env:"IMPORT_BATCH_SIZE" envDefault:"500"`
	BusinessKey string `env:"IMPORT_BUSINESS_KEY" envDefault:"ovp_number"`
}

type ReplicationOptions struct {
	Tables      string        `env:"REPLICATION_TABLES" envDefault:"users,clients,suppliers,projects,attachments"`
	Rate        string        `env:"REPLICATION_RATE" envDefault:"50-S"`
	BatchSize   int           `env:"REPLICATION_BATCH_SIZE" envDefault:"100"`
	BatchDelay  time.Duration `env:"REPLICATION_BATCH_DELAY" envDefault:"0s"`
	MaxAttempts int           `env:"REPLICATION_MAX_ATTEMPTS" envDefault:"3"`
	MaxBackoff  time.Duration `env:"REPLICATION_MAX_BACKOFF" envDefault:"10s"`
}

// TableOrder splits the configured table list, dropping blanks.
func (r *ReplicationOptions) TableOrder() []string {
	parts := strings.FieldsFunc(r.Tables, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\n' || c == '\t'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *ReplicationOptions) Validate() error {
	if r.BatchSize < 0 {
		return fmt.Errorf("REPLICATION_BATCH_SIZE must be non-negative, got %d", r.BatchSize)
	}
	if r.MaxAttempts < 1 {
		return fmt.Errorf("REPLICATION_MAX_ATTEMPTS must be at least 1, got %d", r.MaxAttempts)
	}
	if strings.TrimSpace(r.Rate) != "" {
		if _, err := limiter.NewRateFromFormatted(r.Rate); err != nil {
			return fmt.Errorf("invalid REPLICATION_RATE=%q: %w", r.Rate, err)
		}
	}
	if len(r.TableOrder()) == 0 {
		return fmt.Errorf("REPLICATION_TABLES must name at least one table")
	}
	return nil
}

type ReconcileOptions struct {
	Tolerance float64 `env:"RECONCILE_TOLERANCE" envDefault:"0.01"`
}

type Configuration struct {
	Database    DatabaseOptions
	Import      ImportOptions
	Replication ReplicationOptions
	Reconcile   ReconcileOptions

	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`

	logger *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// New loads env files (when present) and parses the environment.
func New(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && os.Getenv("PROJTRACK_QUIET_ENV") == "" {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.validate(); err != nil {
		return err
	}

	c.logger = logging.ConsoleLogger(c.LogrusLogLevel(), c.LogFormat)
	return nil
}

func (c *Configuration) validate() error {
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.Import.BatchSize)
	}
	if strings.TrimSpace(c.Import.BusinessKey) == "" {
		return fmt.Errorf("IMPORT_BUSINESS_KEY must not be empty")
	}
	if c.Reconcile.Tolerance < 0 {
		return fmt.Errorf("RECONCILE_TOLERANCE must be non-negative, got %v", c.Reconcile.Tolerance)
	}
	if err := c.Replication.Validate(); err != nil {
		return fmt.Errorf("replication configuration error: %w", err)
	}

	level := strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch level {
	case "", "silent", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid LOG_LEVEL=%q (expected silent|error|warn|info|debug)", c.LogLevel)
	}
	c.LogLevel = level

	format := strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q (expected text|json)", c.LogFormat)
	}
	c.LogFormat = format
	return nil
}
