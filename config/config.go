package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alexflint/go-arg"
)

const (
	SqlServer DbDriver = "sqlserver"
	Postgres  DbDriver = "postgres"

	minHealthyWindow = 30 * time.Minute
)

type DbDriver string

var supportedSourceDrivers = map[DbDriver]bool{
	SqlServer: true,
	Postgres:  true,
}

type Config struct {
	SkipMigrations      bool     `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	SourceDBHost        string   `arg:"--source-db-host,env:SOURCE_DB_HOST,required"`
	SourceDBPort        uint32   `arg:"--source-db-port,env:SOURCE_DB_PORT,required"`
	SourceDBUser        string   `arg:"--source-db-user,env:SOURCE_DB_USER,required"`
	SourceDBPass        string   `arg:"--source-db-pass,env:SOURCE_DB_PASS,required"`
	SourceDBName        string   `arg:"--source-db-name,env:SOURCE_DB_NAME,required"`
	SourceDBDriver      DbDriver `arg:"--source-db-driver,env:SOURCE_DB_DRIVER"`
	OutboxTable         string   `arg:"--outbox-table,env:OUTBOX_TABLE"`
	MirrorDBHost        string   `arg:"--mirror-db-host,env:MIRROR_DB_HOST,required"`
	MirrorDBPort        uint32   `arg:"--mirror-db-port,env:MIRROR_DB_PORT,required"`
	MirrorDBUser        string   `arg:"--mirror-db-user,env:MIRROR_DB_USER,required"`
	MirrorDBPass        string   `arg:"--mirror-db-pass,env:MIRROR_DB_PASS,required"`
	MirrorDBName        string   `arg:"--mirror-db-name,env:MIRROR_DB_NAME,required"`
	MirrorDBSSLMode     string   `arg:"--mirror-db-sslmode,env:MIRROR_DB_SSLMODE"`
	WebhookSecret       string   `arg:"--webhook-secret,env:WEBHOOK_SECRET"`
	PollIntervalMinutes int      `arg:"--poll-interval-minutes,env:POLL_INTERVAL_MINUTES"`
	DrainFrequencyMs    int      `arg:"--drain-frequency-ms,env:DRAIN_FREQUENCY_MS"`
	BatchSize           int      `arg:"--batch-size,env:BATCH_SIZE"`
	MaxApplyAttempts    int      `arg:"--max-apply-attempts,env:MAX_APPLY_ATTEMPTS"`
	CheckpointPath      string   `arg:"--checkpoint-path,env:CHECKPOINT_PATH"`
	HTTPPort            uint32   `arg:"--http-port,env:HTTP_PORT"`
	KafkaHost           []string `arg:"--kafka-host,env:KAFKA_HOST"`
	KafkaEventTopic     string   `arg:"--kafka-event-topic,env:KAFKA_EVENT_TOPIC"`
	TLSEnable           bool     `arg:"--kafka-tls,env:TLS_ENABLE"`
	TLSSkipVerifyPeer   bool     `arg:"--kafka-tls-verify-peer,env:TLS_SKIP_VERIFY_PEER"`
	RunCleanup          bool     `arg:"--cleanup,env:RUN_CLEANUP"`
	SidecarProxyUrl     string   `arg:"--sidecar-proxy-url,env:SIDECAR_PROXY_URL"`
}

func NewConfig() (*Config, error) {
	c := &Config{
		SourceDBDriver:      SqlServer,
		OutboxTable:         "sync_outbox",
		MirrorDBSSLMode:     "disable",
		PollIntervalMinutes: 60,
		DrainFrequencyMs:    10000,
		BatchSize:           250,
		MaxApplyAttempts:    3,
		CheckpointPath:      "sync-checkpoint.json",
		HTTPPort:            8080,
		KafkaEventTopic:     "clinic.sync.events",
	}
	arg.MustParse(c)

	if !supportedSourceDrivers[c.SourceDBDriver] {
		return nil, fmt.Errorf("the SOURCE_DB_DRIVER provided (%s) is not supported", c.SourceDBDriver)
	}

	return c, nil
}

func (c *Config) GetDrainIntervalDuration() time.Duration {
	return time.Duration(c.DrainFrequencyMs) * time.Millisecond
}

func (c *Config) GetPollIntervalDuration() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// GetHealthyWindow is the staleness threshold for the reverse-sync checkpoint
// before the status endpoint reports the bridge as unhealthy. It allows a
// missed poll cycle before alerting.
func (c *Config) GetHealthyWindow() time.Duration {
	w := 2 * c.GetPollIntervalDuration()
	if w < minHealthyWindow {
		return minHealthyWindow
	}
	return w
}

func (c *Config) GetSourceDSN() string {
	switch c.SourceDBDriver {
	case SqlServer:
		q := url.Values{}
		q.Set("database", c.SourceDBName)
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.SourceDBUser, c.SourceDBPass),
			Host:     fmt.Sprintf("%s:%d", c.SourceDBHost, c.SourceDBPort),
			RawQuery: q.Encode(),
		}
		return u.String()
	case Postgres:
		return postgresDSN(c.SourceDBUser, c.SourceDBPass, c.SourceDBHost, c.SourceDBPort, c.SourceDBName, c.MirrorDBSSLMode)
	default:
		return ""
	}
}

func (c *Config) GetMirrorDSN() string {
	return postgresDSN(c.MirrorDBUser, c.MirrorDBPass, c.MirrorDBHost, c.MirrorDBPort, c.MirrorDBName, c.MirrorDBSSLMode)
}

func postgresDSN(user, pass, host string, port uint32, name, sslMode string) string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", url.UserPassword(user, pass), host, port, name, sslMode)
}

func (c *Config) GetDependencySystemAddresses() []string {
	return c.KafkaHost
}

func (c *Config) EventPublishingEnabled() bool {
	return len(c.KafkaHost) > 0
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"SkipMigrations":      c.SkipMigrations,
		"SourceDBHost":        c.SourceDBHost,
		"SourceDBPort":        c.SourceDBPort,
		"SourceDBUser":        c.SourceDBUser,
		"SourceDBPass":        "xxxxx",
		"SourceDBName":        c.SourceDBName,
		"SourceDBDriver":      c.SourceDBDriver,
		"OutboxTable":         c.OutboxTable,
		"MirrorDBHost":        c.MirrorDBHost,
		"MirrorDBPort":        c.MirrorDBPort,
		"MirrorDBUser":        c.MirrorDBUser,
		"MirrorDBPass":        "xxxxx",
		"MirrorDBName":        c.MirrorDBName,
		"MirrorDBSSLMode":     c.MirrorDBSSLMode,
		"WebhookSecret":       "xxxxx",
		"PollIntervalMinutes": c.PollIntervalMinutes,
		"DrainFrequencyMs":    c.DrainFrequencyMs,
		"BatchSize":           c.BatchSize,
		"MaxApplyAttempts":    c.MaxApplyAttempts,
		"CheckpointPath":      c.CheckpointPath,
		"HTTPPort":            c.HTTPPort,
		"KafkaHost":           c.KafkaHost,
		"KafkaEventTopic":     c.KafkaEventTopic,
		"TLSEnable":           c.TLSEnable,
		"TLSSkipVerifyPeer":   c.TLSSkipVerifyPeer,
		"RunCleanup":          c.RunCleanup,
		"SidecarProxyUrl":     c.SidecarProxyUrl,
	})
}

func (d DbDriver) SqlServer() bool {
	return d == SqlServer
}

func (d DbDriver) Postgres() bool {
	return d == Postgres
}

func (d DbDriver) String() string {
	return string(d)
}

// DriverName maps the configured driver onto the name it is registered with
// in database/sql.
func (d DbDriver) DriverName() string {
	if d.Postgres() {
		return "pgx"
	}
	return "sqlserver"
}
