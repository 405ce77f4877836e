package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/sqlguard"
)

// Relational drivers. The driver is part of connector config, not a
// separate kind; dispatch over kinds stays closed.
const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

// RelationalAdapter executes SQL against PostgreSQL (pgx) or SQL Server
// (go-mssqldb). Connections are opened per dispatch and closed before
// returning, so no credential-derived state outlives the call.
type RelationalAdapter struct {
	limits Limits
}

// NewRelationalAdapter creates a relational adapter with the given limits.
func NewRelationalAdapter(limits Limits) *RelationalAdapter {
	return &RelationalAdapter{limits: limits.withDefaults()}
}

var _ Adapter = (*RelationalAdapter)(nil)

// ValidateConfig checks the connection definition. Credentials are not
// part of config and are not seen here.
func (a *RelationalAdapter) ValidateConfig(config map[string]any) error {
	driver := optStringField(config, "driver")
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLServer {
		return configErr("unsupported relational driver %q", driver)
	}
	if _, err := stringField(config, "host"); err != nil {
		return err
	}
	if _, err := stringField(config, "database"); err != nil {
		return err
	}
	if port := intField(config, "port", 0); port < 0 || port > 65535 {
		return configErr("port out of range")
	}
	return nil
}

func (a *RelationalAdapter) Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*Result, error) {
	res := sqlguard.Validate(op.Query, op.Class)
	if res.Error != nil {
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected, res.Error)
	}
	query := res.NormalizedSQL

	ctx, cancel := context.WithTimeout(ctx, a.limits.Timeout)
	defer cancel()

	driver := optStringField(config, "driver")
	if driver == DriverSQLServer {
		return a.executeSQLServer(ctx, config, credentials, query, op)
	}
	return a.executePostgres(ctx, config, credentials, query, op)
}

func (a *RelationalAdapter) executePostgres(ctx context.Context, config, credentials map[string]any, query string, op models.Operation) (*Result, error) {
	connStr := postgresConnString(config, credentials)

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer conn.Close(context.Background())

	if op.Class == models.OpWrite {
		tag, err := conn.Exec(ctx, query, op.Params...)
		if err != nil {
			return nil, classifyErr(ctx, err)
		}
		return &Result{RowsAffected: tag.RowsAffected()}, nil
	}

	// SELECT reads are wrapped with a limit guard one past the cap so
	// truncation is detected rather than silent. Other read forms
	// (SHOW, EXPLAIN, WITH, ...) are not valid inside a derived table
	// and run as-is; the cap is still enforced while scanning.
	wrapped := query
	if selectStatement(query) {
		wrapped = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", query, a.limits.MaxRows+1)
	}

	rows, err := conn.Query(ctx, wrapped, op.Params...)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var resultRows []map[string]any
	for rows.Next() {
		if len(resultRows) >= a.limits.MaxRows {
			return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
				fmt.Errorf("result exceeds %d rows", a.limits.MaxRows))
		}
		values, err := rows.Values()
		if err != nil {
			return nil, classifyErr(ctx, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(ctx, err)
	}

	return &Result{Columns: columns, Rows: resultRows}, nil
}

func (a *RelationalAdapter) executeSQLServer(ctx context.Context, config, credentials map[string]any, query string, op models.Operation) (*Result, error) {
	db, err := sql.Open("sqlserver", sqlserverConnString(config, credentials))
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer db.Close()

	if op.Class == models.OpWrite {
		result, err := db.ExecContext(ctx, query, op.Params...)
		if err != nil {
			return nil, classifyErr(ctx, err)
		}
		affected, _ := result.RowsAffected()
		return &Result{RowsAffected: affected}, nil
	}

	wrapped := query
	if selectStatement(query) {
		wrapped = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _q", a.limits.MaxRows+1, query)
	}

	rows, err := db.QueryContext(ctx, wrapped, op.Params...)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	var resultRows []map[string]any
	for rows.Next() {
		if len(resultRows) >= a.limits.MaxRows {
			return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
				fmt.Errorf("result exceeds %d rows", a.limits.MaxRows))
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifyErr(ctx, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(ctx, err)
	}

	return &Result{Columns: columns, Rows: resultRows}, nil
}

// selectStatement reports whether a read statement can be embedded as a
// derived table for the row guard. Only plain SELECT qualifies on both
// drivers.
func selectStatement(query string) bool {
	fields := strings.Fields(query)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}

func postgresConnString(config, credentials map[string]any) string {
	host := optStringField(config, "host")
	port := intField(config, "port", 5432)
	dbName := optStringField(config, "database")
	sslMode := optStringField(config, "ssl_mode")
	if sslMode == "" {
		sslMode = "prefer"
	}
	user := optStringField(credentials, "user")
	password := optStringField(credentials, "password")

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, dbName, sslMode)
}

func sqlserverConnString(config, credentials map[string]any) string {
	host := optStringField(config, "host")
	port := intField(config, "port", 1433)
	dbName := optStringField(config, "database")
	user := optStringField(credentials, "user")
	password := optStringField(credentials, "password")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: url.Values{"database": []string{dbName}}.Encode(),
	}
	return u.String()
}
