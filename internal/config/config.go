// Package config loads the back-office configuration file.
//
// The file is YAML. BACKOFFICE_DSN and BACKOFFICE_LOG_LEVEL override the
// matching keys so secrets can stay out of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/filestore"
	"github.com/koustreak/backoffice/internal/logger"
	"go.yaml.in/yaml/v3"
)

const (
	EnvDSN      = "BACKOFFICE_DSN"
	EnvLogLevel = "BACKOFFICE_LOG_LEVEL"
)

var validate = validator.New()

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Tables   []TableConfig  `yaml:"tables" validate:"dive"`
	Views    []ViewConfig   `yaml:"views" validate:"dive"`
	Events   EventsConfig   `yaml:"events"`
	Export   *ExportConfig  `yaml:"export"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" validate:"oneof=postgres mysql"`
	DSN             string        `yaml:"dsn" validate:"required"`
	Schema          string        `yaml:"schema"`
	MaxConns        int32         `yaml:"max_conns" validate:"gte=1"`
	MinConns        int32         `yaml:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`

	// FallbackFile receives audit events that could not be stored.
	// Empty means stderr.
	FallbackFile string `yaml:"fallback_file"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxPageSize     int           `yaml:"max_page_size" validate:"gte=1"`
}

// TableConfig maps one table. Constraints attach named checks to columns,
// e.g. {price: [positive]}.
type TableConfig struct {
	Name          string              `yaml:"name" validate:"required"`
	OrderBy       string              `yaml:"order_by"`
	OrderDir      string              `yaml:"order_dir" validate:"omitempty,oneof=asc desc ASC DESC"`
	SelectColumns string              `yaml:"select_columns"`
	Constraints   map[string][]string `yaml:"constraints"`
}

type ViewConfig struct {
	Name     string             `yaml:"name" validate:"required"`
	Primary  string             `yaml:"primary" validate:"required"`
	From     string             `yaml:"from"`
	Columns  []ViewColumnConfig `yaml:"columns" validate:"required,min=1,dive"`
	OrderBy  string             `yaml:"order_by"`
	OrderDir string             `yaml:"order_dir" validate:"omitempty,oneof=asc desc ASC DESC"`
}

type ViewColumnConfig struct {
	Alias string `yaml:"alias" validate:"required"`
	Expr  string `yaml:"expr" validate:"required"`
}

type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table" validate:"required_if=Enabled true"`
}

type ExportConfig struct {
	Endpoint  string        `yaml:"endpoint" validate:"required,hostname_port"`
	AccessKey string        `yaml:"access_key" validate:"required"`
	SecretKey string        `yaml:"secret_key" validate:"required"`
	UseSSL    bool          `yaml:"use_ssl"`
	Region    string        `yaml:"region"`
	Bucket    string        `yaml:"bucket" validate:"required"`
	URLTTL    time.Duration `yaml:"url_ttl" validate:"gte=0"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	db := database.DefaultConfig("")
	return &Config{
		Database: DatabaseConfig{
			Driver:          string(db.Driver),
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
			ConnectTimeout:  db.ConnectTimeout,
			QueryTimeout:    db.QueryTimeout,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxPageSize:     500,
		},
		Events: EventsConfig{Table: "events"},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open config", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults, applies environment
// overrides and validates the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}

	cfg.applyEnv()
	if cfg.Export != nil && cfg.Export.URLTTL == 0 {
		cfg.Export.URLTTL = 15 * time.Minute
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid config", describe(err))
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv(EnvDSN); dsn != "" {
		c.Database.DSN = dsn
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = strings.ToLower(lvl)
	}
}

// describe flattens validator errors into one readable error.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ToDatabase converts to the driver configuration. An unset schema
// stays empty on MySQL so the connection's database is used.
func (c DatabaseConfig) ToDatabase() *database.Config {
	schema := c.Schema
	if schema == "" && c.Driver == string(database.DriverPostgres) {
		schema = "public"
	}
	return &database.Config{
		Driver:          database.Driver(c.Driver),
		DSN:             c.DSN,
		Schema:          schema,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
		ConnectTimeout:  c.ConnectTimeout,
		QueryTimeout:    c.QueryTimeout,
	}
}

// ToLogger converts to the logger configuration writing to out.
func (c LogConfig) ToLogger(out io.Writer) *logger.Config {
	return &logger.Config{Level: c.Level, Format: c.Format, TimeFormat: "rfc3339", Output: out}
}

// ToStore converts to the object storage configuration.
func (c ExportConfig) ToStore() *filestore.Config {
	return &filestore.Config{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Region:    c.Region,
		Bucket:    c.Bucket,
		URLTTL:    c.URLTTL,
	}
}
