package powerbi

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// Tabular model explicit data type codes, per the TOM ExplicitDataType
// enumeration.
var dataTypeNames = map[int64]string{
	2:  "string",
	6:  "int64",
	8:  "double",
	9:  "datetime",
	10: "decimal",
	11: "boolean",
	17: "binary",
}

// DiscoverSchema implements backend.Backend using the model INFO
// functions, the REST-reachable equivalent of the TMSCHEMA DMVs.
func (a *Adapter) DiscoverSchema(ctx context.Context) (*models.Schema, error) {
	tables, err := a.queryInfo(ctx, "EVALUATE INFO.TABLES()")
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	columns, err := a.queryInfo(ctx, "EVALUATE INFO.COLUMNS()")
	if err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}
	measures, err := a.queryInfo(ctx, "EVALUATE INFO.MEASURES()")
	if err != nil {
		return nil, fmt.Errorf("discover measures: %w", err)
	}

	entities := map[int64]*models.SchemaEntity{}
	var tableIDs []int64
	tables.ForEach(func(_, row gjson.Result) bool {
		id := row.Get(`\[ID\]`).Int()
		name := row.Get(`\[Name\]`).String()
		if row.Get(`\[IsHidden\]`).Bool() || name == "" {
			return true
		}
		entities[id] = &models.SchemaEntity{Name: name}
		tableIDs = append(tableIDs, id)
		return true
	})

	columns.ForEach(func(_, row gjson.Result) bool {
		entity, ok := entities[row.Get(`\[TableID\]`).Int()]
		if !ok {
			return true
		}
		name := row.Get(`\[ExplicitName\]`).String()
		if row.Get(`\[IsHidden\]`).Bool() || name == "" || name == "RowNumber" {
			return true
		}
		dataType := dataTypeNames[row.Get(`\[ExplicitDataType\]`).Int()]
		if dataType == "" {
			dataType = "unknown"
		}
		entity.Attributes = append(entity.Attributes, models.SchemaAttribute{
			Name:       name,
			DataType:   dataType,
			IsNullable: true,
		})
		return true
	})

	measures.ForEach(func(_, row gjson.Result) bool {
		entity, ok := entities[row.Get(`\[TableID\]`).Int()]
		if !ok {
			return true
		}
		name := row.Get(`\[Name\]`).String()
		if name == "" {
			return true
		}
		entity.Attributes = append(entity.Attributes, models.SchemaAttribute{
			Name:       name,
			IsMeasure:  true,
			Expression: row.Get(`\[Expression\]`).String(),
		})
		return true
	})

	sort.Slice(tableIDs, func(i, j int) bool { return tableIDs[i] < tableIDs[j] })

	schema := &models.Schema{Language: models.LanguageDAX}
	for _, id := range tableIDs {
		schema.Entities = append(schema.Entities, *entities[id])
	}

	a.logger.Info("schema discovered",
		zap.String("dataset", a.datasetID),
		zap.Int("tables", len(schema.Entities)))

	return schema, nil
}

// queryInfo runs an INFO function query and returns its rows.
func (a *Adapter) queryInfo(ctx context.Context, query string) (gjson.Result, error) {
	body, err := a.executeQueries(ctx, query)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(body, "results.0.tables.0.rows"), nil
}
