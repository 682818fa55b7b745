package services

import (
	"context"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

type mockBackend struct {
	kind models.BackendKind

	executeFunc  func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error)
	discoverFunc func(ctx context.Context) (*models.Schema, error)

	executeCalls    int
	executedQueries []string
	discoverCalls   int
	closed          bool
}

func (m *mockBackend) Kind() models.BackendKind {
	if m.kind == "" {
		return models.BackendSQL
	}
	return m.kind
}

func (m *mockBackend) Execute(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
	m.executeCalls++
	m.executedQueries = append(m.executedQueries, query)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, query, rowLimit)
	}
	return &backend.QueryResult{Columns: []string{"n"}, Rows: []map[string]any{{"n": 1}}, TotalRows: 1}, nil
}

func (m *mockBackend) DiscoverSchema(ctx context.Context) (*models.Schema, error) {
	m.discoverCalls++
	if m.discoverFunc != nil {
		return m.discoverFunc(ctx)
	}
	return &models.Schema{
		Language: models.LanguageTSQL,
		Entities: []models.SchemaEntity{{
			Name:   "Sales",
			Schema: "dbo",
			Attributes: []models.SchemaAttribute{
				{Name: "Region", DataType: "nvarchar"},
				{Name: "Amount", DataType: "decimal"},
			},
		}},
	}, nil
}

func (m *mockBackend) Close() error {
	m.closed = true
	return nil
}

type mockFactory struct {
	backend     backend.Backend
	createFunc  func(ctx context.Context, identity models.ConnectionIdentity) (backend.Backend, error)
	createCalls int
}

func (f *mockFactory) Create(ctx context.Context, identity models.ConnectionIdentity) (backend.Backend, error) {
	f.createCalls++
	if f.createFunc != nil {
		return f.createFunc(ctx, identity)
	}
	return f.backend, nil
}

type mockHistoryRecorder struct {
	entries []*models.QueryHistoryEntry
	err     error
}

func (r *mockHistoryRecorder) Record(ctx context.Context, entry *models.QueryHistoryEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}
