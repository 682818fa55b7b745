// Package mssql implements the SQL warehouse backend over the
// SQL Server TDS protocol, authenticated with AAD access tokens.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/auth"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/retry"
)

// Adapter provides warehouse connectivity for generated T-SQL.
type Adapter struct {
	identity models.ConnectionIdentity
	db       *sql.DB
	logger   *zap.Logger
}

var _ backend.Backend = (*Adapter)(nil)

// New creates a warehouse adapter. The token provider supplies AAD
// access tokens per connection; the pool re-invokes it as connections
// are established.
func New(ctx context.Context, identity models.ConnectionIdentity, tokens auth.TokenProvider, logger *zap.Logger) (*Adapter, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection identity: %w", err)
	}

	dsn := fmt.Sprintf("server=%s;database=%s;encrypt=true", identity.Endpoint, identity.Database)
	connector, err := mssql.NewAccessTokenConnector(dsn, func() (string, error) {
		return tokens.GetAccessToken(context.Background(), auth.ScopeSQL)
	})
	if err != nil {
		return nil, fmt.Errorf("create connector for %s: %w", logging.SanitizeConnectionString(dsn), err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Warehouses shed idle capacity; the first dial can be slow and
	// transiently refused.
	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}

	return &Adapter{
		identity: identity,
		db:       db,
		logger:   logger.Named("mssql"),
	}, nil
}

// Kind implements backend.Backend.
func (a *Adapter) Kind() models.BackendKind {
	return models.BackendSQL
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// ensureRowBound injects a TOP clause into an unbounded SELECT so a
// runaway query cannot pull the whole warehouse across the wire.
func ensureRowBound(query string, limit int) string {
	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return trimmed
	}
	if topClausePattern.MatchString(trimmed) {
		return trimmed
	}
	return topInjectPattern.ReplaceAllString(trimmed, fmt.Sprintf("SELECT ${1}TOP %d ", limit))
}

var (
	topClausePattern = regexp.MustCompile(`(?i)^SELECT\s+(DISTINCT\s+)?TOP\b`)
	topInjectPattern = regexp.MustCompile(`(?i)^SELECT\s+(DISTINCT\s+)?`)
)

// Execute implements backend.Backend. Failures are classified into the
// execution error taxonomy.
func (a *Adapter) Execute(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
	bounded := ensureRowBound(query, rowLimit)

	a.logger.Debug("executing query",
		zap.String("query", logging.SanitizeQuery(bounded)))

	rows, err := a.db.QueryContext(ctx, bounded)
	if err != nil {
		a.logger.Warn("query failed", zap.String("error", logging.SanitizeError(err)))
		return nil, backend.Classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, backend.Classify(err)
	}

	result := &backend.QueryResult{Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		result.TotalRows++
		if len(result.Rows) >= rowLimit {
			result.Truncated = true
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, backend.Classify(err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, backend.Classify(err)
	}

	return result, nil
}

// normalizeValue converts driver types into JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

// DiscoverSchema implements backend.Backend: tables, columns with type
// and key information, and foreign keys, from the sys catalog.
func (a *Adapter) DiscoverSchema(ctx context.Context) (*models.Schema, error) {
	schema := &models.Schema{Language: models.LanguageTSQL}

	tables, err := a.discoverTables(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		attrs, err := a.discoverColumns(ctx, t.Schema, t.Name)
		if err != nil {
			return nil, err
		}
		t.Attributes = attrs
		schema.Entities = append(schema.Entities, t)
	}

	relations, err := a.discoverForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	schema.Relations = relations

	a.logger.Info("schema discovered",
		zap.Int("tables", len(schema.Entities)),
		zap.Int("relations", len(schema.Relations)))

	return schema, nil
}

func (a *Adapter) discoverTables(ctx context.Context) ([]models.SchemaEntity, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    SUM(p.rows) AS row_count
	FROM sys.tables t
	INNER JOIN sys.partitions p ON t.object_id = p.object_id
	WHERE p.index_id IN (0, 1)
	  AND t.is_ms_shipped = 0
	GROUP BY t.schema_id, t.name
	ORDER BY table_schema, table_name
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.SchemaEntity
	for rows.Next() {
		var t models.SchemaEntity
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (a *Adapter) discoverColumns(ctx context.Context, schemaName, tableName string) ([]models.SchemaAttribute, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    c.is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := a.db.QueryContext(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var attrs []models.SchemaAttribute
	for rows.Next() {
		var attr models.SchemaAttribute
		var isPK int
		if err := rows.Scan(&attr.Name, &attr.DataType, &attr.IsNullable, &isPK); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		attr.IsPrimary = isPK == 1
		attrs = append(attrs, attr)
	}
	return attrs, rows.Err()
}

func (a *Adapter) discoverForeignKeys(ctx context.Context) ([]models.SchemaRelation, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(pt.schema_id) + '.' + pt.name AS from_table,
	    pc.name AS from_column,
	    SCHEMA_NAME(rt.schema_id) + '.' + rt.name AS to_table,
	    rc.name AS to_column
	FROM sys.foreign_key_columns fkc
	INNER JOIN sys.tables pt ON fkc.parent_object_id = pt.object_id
	INNER JOIN sys.columns pc ON fkc.parent_object_id = pc.object_id AND fkc.parent_column_id = pc.column_id
	INNER JOIN sys.tables rt ON fkc.referenced_object_id = rt.object_id
	INNER JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
	ORDER BY from_table, from_column
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var relations []models.SchemaRelation
	for rows.Next() {
		r := models.SchemaRelation{Cardinality: "many-to-one"}
		if err := rows.Scan(&r.FromEntity, &r.FromColumn, &r.ToEntity, &r.ToColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
