package warehouse

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/snowflakedb/gosnowflake"
)

// Supported warehouse drivers.
const (
	DriverDuckDB    = "duckdb"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
)

// Placeholder is the bind-parameter syntax of a SQL dialect.
type Placeholder int

const (
	// PlaceholderQuestion renders every parameter as ?.
	PlaceholderQuestion Placeholder = iota
	// PlaceholderDollar renders parameters as $1, $2, ...
	PlaceholderDollar
)

// Format renders the n-th parameter (1-based).
func (p Placeholder) Format(n int) string {
	if p == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Config holds warehouse connection settings.
type Config struct {
	Driver string

	// DSN is used verbatim when set.
	DSN string

	// Snowflake settings.
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
}

// SQLDriverName returns the database/sql driver name registered for the
// configured driver.
func (c Config) SQLDriverName() (string, error) {
	switch c.Driver {
	case DriverDuckDB:
		return "duckdb", nil
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	case DriverSnowflake:
		return "snowflake", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// Placeholder returns the bind syntax of the configured driver.
func (c Config) Placeholder() Placeholder {
	if c.Driver == DriverPostgres {
		return PlaceholderDollar
	}
	return PlaceholderQuestion
}

// DataSourceName builds the connection string for the configured driver.
func (c Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Driver {
	case DriverDuckDB:
		// In-memory database.
		return "", nil
	case DriverSQLite:
		return ":memory:", nil
	case DriverPostgres:
		return "", fmt.Errorf("%w: postgres requires a dsn", ErrMissingSetting)
	case DriverSnowflake:
		return c.snowflakeDSN()
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

func (c Config) snowflakeDSN() (string, error) {
	if c.Account == "" || c.User == "" {
		return "", fmt.Errorf("%w: snowflake requires account and user", ErrMissingSetting)
	}
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Database:  c.Database,
		Schema:    c.Schema,
		Warehouse: c.Warehouse,
		Role:      c.Role,
		// Application tags sessions in the warehouse query history.
		Application: "dataops",
	})
	if err != nil {
		return "", fmt.Errorf("warehouse: snowflake dsn: %w", err)
	}
	return dsn, nil
}

// Open opens a database handle for c. The driver must be registered by
// the caller (usually a blank import in main).
func Open(c Config) (*sql.DB, error) {
	name, err := c.SQLDriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := c.DataSourceName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open %s: %w", c.Driver, err)
	}
	if c.Driver == DriverSQLite && dsn == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Redacted returns a loggable form of dsn with credentials removed.
func Redacted(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return "xxxxx" + dsn[i:]
	}
	return dsn
}
