// Package powerbi implements the semantic model backend over the
// Power BI REST executeQueries endpoint, which accepts DAX.
package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/auth"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// Adapter executes DAX against a Power BI dataset.
type Adapter struct {
	identity   models.ConnectionIdentity
	apiBase    string
	datasetID  string
	tokens     auth.TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

var _ backend.Backend = (*Adapter)(nil)

// New creates a semantic model adapter. identity.Endpoint is the REST
// API base, identity.Database is the dataset ID.
func New(identity models.ConnectionIdentity, tokens auth.TokenProvider, httpClient *http.Client, logger *zap.Logger) (*Adapter, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection identity: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Adapter{
		identity:   identity,
		apiBase:    strings.TrimSuffix(identity.Endpoint, "/"),
		datasetID:  identity.Database,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.Named("powerbi"),
	}, nil
}

// Kind implements backend.Backend.
func (a *Adapter) Kind() models.BackendKind {
	return models.BackendSemanticModel
}

// Close implements backend.Backend. The REST transport holds no
// persistent connection.
func (a *Adapter) Close() error {
	return nil
}

type executeQueriesRequest struct {
	Queries            []daxQuery         `json:"queries"`
	SerializerSettings serializerSettings `json:"serializerSettings"`
}

type daxQuery struct {
	Query string `json:"query"`
}

type serializerSettings struct {
	IncludeNulls bool `json:"includeNulls"`
}

// Execute implements backend.Backend.
func (a *Adapter) Execute(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
	body, err := a.executeQueries(ctx, query)
	if err != nil {
		return nil, err
	}
	return parseRows(body, rowLimit), nil
}

// executeQueries posts one DAX query and returns the raw response body,
// with REST-level and per-query errors already surfaced.
func (a *Adapter) executeQueries(ctx context.Context, query string) ([]byte, error) {
	token, err := a.tokens.GetAccessToken(ctx, auth.ScopePowerBI)
	if err != nil {
		return nil, backend.NewExecutionError(backend.ErrorConnection,
			fmt.Sprintf("acquire token: %v", err), err)
	}

	payload, err := json.Marshal(executeQueriesRequest{
		Queries:            []daxQuery{{Query: query}},
		SerializerSettings: serializerSettings{IncludeNulls: true},
	})
	if err != nil {
		return nil, backend.Classify(err)
	}

	url := fmt.Sprintf("%s/datasets/%s/executeQueries", a.apiBase, a.datasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, backend.Classify(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	a.logger.Debug("executing DAX query",
		zap.String("dataset", a.datasetID),
		zap.String("query", logging.SanitizeQuery(query)))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, backend.Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, backend.Classify(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, restError(resp.StatusCode, body)
	}

	// A 200 can still carry a per-query error.
	if errVal := gjson.GetBytes(body, "results.0.error"); errVal.Exists() {
		msg := errVal.Get("message").String()
		if msg == "" {
			msg = errVal.Raw
		}
		return nil, backend.Classify(fmt.Errorf("%s", msg))
	}

	return body, nil
}

// restError maps a non-200 executeQueries response onto the taxonomy.
func restError(status int, body []byte) *backend.ExecutionError {
	msg := gjson.GetBytes(body, "error.message").String()
	if details := gjson.GetBytes(body, "error.pbi\\.error.details.0.detail.value").String(); details != "" {
		msg = msg + ": " + details
	}
	if msg == "" {
		msg = fmt.Sprintf("executeQueries returned HTTP %d", status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backend.NewExecutionError(backend.ErrorPermission, msg, nil)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
		return backend.NewExecutionError(backend.ErrorConnection, msg, nil)
	default:
		// 400s carry DAX evaluation errors; let the message decide.
		return backend.Classify(fmt.Errorf("%s", msg))
	}
}

// parseRows normalizes the first result table. Row objects key cells as
// Table[Column]; the bracketed column name is kept as the column label.
func parseRows(body []byte, rowLimit int) *backend.QueryResult {
	result := &backend.QueryResult{}
	rows := gjson.GetBytes(body, "results.0.tables.0.rows")

	rows.ForEach(func(_, row gjson.Result) bool {
		result.TotalRows++
		if len(result.Rows) >= rowLimit {
			result.Truncated = true
			return true
		}
		parsed := make(map[string]any)
		row.ForEach(func(key, value gjson.Result) bool {
			col := columnLabel(key.String())
			if len(result.Rows) == 0 && !contains(result.Columns, col) {
				result.Columns = append(result.Columns, col)
			}
			parsed[col] = value.Value()
			return true
		})
		result.Rows = append(result.Rows, parsed)
		return true
	})

	return result
}

// columnLabel strips the Table[Column] wrapper down to Column.
func columnLabel(key string) string {
	if open := strings.IndexByte(key, '['); open >= 0 && strings.HasSuffix(key, "]") {
		return key[open+1 : len(key)-1]
	}
	return key
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
