package casper

import (
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

//go:embed config/migrations/postgres/*.sql
var embedMigrations embed.FS

// In order to connect to Postgresql you need to fill out all the fields.
//
// To connect to sqlite, you just need to specify "sqlite" driver. By default
// it will use an in-memory database. You can provide CASPER_DATABASE_NAME to
// use a file.
type DatabaseConfig struct {
	URL      string `env:"CASPER_DATABASE_URL" env-default:""`
	Name     string `env:"CASPER_DATABASE_NAME" env-default:""`
	Schema   string `env:"CASPER_DATABASE_SCHEMA" env-default:""`
	Driver   string `env:"CASPER_DATABASE_DRIVER" env-default:"sqlite"`
	Username string `env:"CASPER_DATABASE_USERNAME"  env-default:"postgres"`
	Password string `env:"CASPER_DATABASE_PASSWORD" env-default:"postgres"`
	Host     string `env:"CASPER_DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"CASPER_DATABASE_PORT" env-default:"5432"`
	Retries  int    `env:"CASPER_DATABASE_RETRIES" env-default:"5"`
}

// ParseConnectionString parses a database URI and returns a DatabaseConfig.
func ParseConnectionString(connStr string) (DatabaseConfig, error) {
	// SQLite detection: starts with "file:"
	if strings.HasPrefix(connStr, "file:") {
		parts := strings.SplitN(connStr[5:], "?", 2)
		dbName := parts[0]
		return DatabaseConfig{
			Name:    dbName,
			Driver:  "sqlite",
			Retries: 1,
		}, nil
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return DatabaseConfig{}, errors.Wrap(err, "invalid connection string")
	}

	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	user := parsedURL.User
	username := ""
	password := ""
	if user != nil {
		username = user.Username()
		password, _ = user.Password()
	}

	host := parsedURL.Hostname()
	port := parsedURL.Port()
	if port == "" {
		port = "5432" // default PostgreSQL port
	}

	dbName := strings.TrimPrefix(parsedURL.Path, "/")

	schemaName := ""
	retries := 5

	query := parsedURL.Query()
	if s := query.Get("search_path"); s != "" {
		schemaName = s
	}
	if r := query.Get("retries"); r != "" {
		if retryVal, err := strconv.Atoi(r); err == nil {
			retries = retryVal
		}
	}

	return DatabaseConfig{
		Name:     dbName,
		Schema:   schemaName,
		Driver:   "postgres",
		Username: username,
		Password: password,
		Host:     host,
		Port:     port,
		Retries:  retries,
	}, nil
}

// ConnectToDB opens the journal database for the configured driver,
// ensuring the schema exists and migrations are applied.
func ConnectToDB(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	lg = lg.WithName("database")
	switch cnf.Driver {
	case "postgres":
		return connectToPostgresql(cnf, lg)
	case "sqlite", "":
		return connectToSqlite(cnf, lg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func connectToPostgresql(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	lg.Info("Connecting to Postgresql", "host", cnf.Host, "name", cnf.Name)

	if err := ensurePostgresqlSchema(cnf, lg); err != nil {
		return nil, errors.Wrap(err, "failed to ensure Postgresql schema")
	}

	if err := migratePostgres(cnf, lg); err != nil {
		return nil, errors.Wrap(err, "failed to apply Postgresql migrations")
	}

	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return nil, err
	}
	dial := postgres.Open(dsn)

	db, err := gorm.Open(dial, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: cnf.Schema + ".", // schema name
		}})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func connectToSqlite(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	var dsn string
	if cnf.Name != "" {
		lg.Info("Connecting to sqlite", "name", cnf.Name)
		dsn = fmt.Sprintf("file:%s?cache=shared", cnf.Name)
	} else {
		lg.Info("Connecting to in-memory sqlite")
		dsn = "file::memory:?cache=shared"
	}
	dial := sqlite.Open(dsn)

	db, err := gorm.Open(dial, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: cnf.Schema + ".", // schema name
		}})
	if err != nil {
		return nil, err
	}

	if err := migrateSqlite(db); err != nil {
		return nil, errors.Wrap(err, "failed to auto-migrate sqlite")
	}
	lg.Debug("Auto-migrated sqlite schema")

	return db, nil
}

func postgresqlDbUrl(cnf DatabaseConfig) (string, error) {
	switch cnf.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			cnf.Username, cnf.Password, cnf.Host, cnf.Port, cnf.Name,
		)

		if cnf.Schema != "" {
			dsn = fmt.Sprintf("%s search_path=%s", dsn, cnf.Schema)
		}

		return dsn, nil

	default:
		return "", fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func ensurePostgresqlSchema(cnf DatabaseConfig, lg log.Logger) error {
	if cnf.Schema == "" {
		lg.Debug("No schema specified, skipping schema creation")
		return nil
	}

	dbConf := cnf
	dbConf.Schema = ""
	dsn, err := postgresqlDbUrl(dbConf)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect(dbConf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	queryDbCheck := fmt.Sprintf("SELECT 1 FROM information_schema.schemata WHERE schema_name='%s'", cnf.Schema)
	if res, err := db.Exec(queryDbCheck); err != nil {
		return errors.Wrap(err, "failed to check schema existence")
	} else if rows, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "failed to check schema existence")
	} else if rows > 0 {
		lg.Debug("Schema already exists", "schema", cnf.Schema)
		return nil
	}

	if _, err = db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cnf.Schema)); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	lg.Info("Schema created", "schema", cnf.Schema)
	return nil
}

func migratePostgres(cnf DatabaseConfig, lg log.Logger) error {
	dsn, err := postgresqlDbUrl(cnf)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver(cnf.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cnf.Schema != "" {
		switch cnf.Driver {
		case "postgres":
			if _, err := db.Exec(fmt.Sprintf("SET search_path TO %s", cnf.Schema)); err != nil {
				return errors.Wrap(err, "failed to set search path")
			}
		}
	}

	lg.Info("Applying database migrations")
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "config/migrations/"+cnf.Driver); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	lg.Info("Applied migrations")
	return nil
}

func migrateSqlite(db *gorm.DB) error {
	return db.AutoMigrate(&RPCRecord{}, &StateSnapshot{})
}
