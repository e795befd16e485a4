package proxy

import (
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gravitational/trace"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/passman/vault/internal/vault"
)

// SQLQueryOutput is the result of a sql_query call.
type SQLQueryOutput struct {
	Columns      []string
	Rows         [][]interface{}
	RowsAffected int64
}

// ExecuteSQL opens a connection using the DatabaseConnectionSecret,
// runs query with positionally-bound params, and returns the result
// set (for SELECT-shaped queries) or the affected row count (for
// everything else). The pool is opened and closed per call — the
// vault expects occasional interactive use, not a connection-pooled
// service workload.
func ExecuteSQL(secret vault.Secret, query string, params []interface{}) (*SQLQueryOutput, error) {
	dbSecret, ok := secret.(vault.DatabaseConnectionSecret)
	if !ok {
		return nil, trace.BadParameter("credential type not supported for SQL")
	}

	driverName, dsn, err := buildDSN(dbSecret)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, trace.Wrap(err, "SQL connection failed")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return nil, trace.Wrap(err, "SQL connection failed")
	}

	secrets := secret.SecretStrings()

	if isSelectLike(query) {
		return runSelect(db, query, params, secrets)
	}
	return runExec(db, query, params)
}

func isSelectLike(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH")
}

func runSelect(db *sql.DB, query string, params []interface{}, secrets [][]byte) (*SQLQueryOutput, error) {
	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, trace.Wrap(err, "SQL query failed")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, trace.Wrap(err, "SQL query failed")
	}

	var result [][]interface{}
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		for i := range scanTargets {
			scanTargets[i] = new(interface{})
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, trace.Wrap(err, "SQL query failed")
		}

		row := make([]interface{}, len(cols))
		for i, target := range scanTargets {
			row[i] = sanitizeCell(*(target.(*interface{})), secrets)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.Wrap(err, "SQL query failed")
	}

	return &SQLQueryOutput{Columns: cols, Rows: result}, nil
}

func runExec(db *sql.DB, query string, params []interface{}) (*SQLQueryOutput, error) {
	res, err := db.Exec(query, params...)
	if err != nil {
		return nil, trace.Wrap(err, "SQL query failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &SQLQueryOutput{RowsAffected: affected}, nil
}

// sanitizeCell converts a driver-scanned value into its JSON-friendly
// form, sanitizing string-like cells (the driver may return []byte for
// TEXT/VARCHAR columns).
func sanitizeCell(v interface{}, secrets [][]byte) interface{} {
	switch val := v.(type) {
	case []byte:
		return sanitize(string(val), secrets)
	case string:
		return sanitize(val, secrets)
	default:
		return val
	}
}

// buildDSN builds a driver name and connection string for the
// credential's driver. Postgres percent-encodes the password into a
// URL-form DSN; MySQL uses the driver's user:password@tcp(host:port)/db
// form with the password inserted as-is; SQLite has no network endpoint
// and just needs the database file path.
func buildDSN(s vault.DatabaseConnectionSecret) (driverName, dsn string, err error) {
	switch s.Driver {
	case vault.DriverSQLite:
		return "sqlite3", s.Database, nil

	case vault.DriverPostgres:
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s", s.Username, percentEncode(s.Password), s.Host, s.Port, s.Database)
		return "pgx", appendParams(dsn, s.Params), nil

	case vault.DriverMySQL:
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", s.Username, s.Password, s.Host, s.Port, s.Database)
		return "mysql", appendParams(dsn, s.Params), nil

	default:
		return "", "", trace.BadParameter("unknown database driver %q", s.Driver)
	}
}

func appendParams(dsn string, params map[string]string) string {
	if len(params) == 0 {
		return dsn
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := make([]string, 0, len(keys))
	for _, k := range keys {
		q = append(q, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(params[k])))
	}
	return dsn + "?" + strings.Join(q, "&")
}
