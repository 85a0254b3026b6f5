// Package warehouse executes dataset queries against a SQL warehouse.
//
// The Warehouse contract is "run query, get rows": a parameter-bound Query
// goes in, a Result with ordered columns, per-column type labels and rows
// comes out. SQLWarehouse implements it over database/sql so any registered
// driver (duckdb, sqlite, pgx, snowflake) can serve as the warehouse.
package warehouse
