package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/apperrors"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

func TestDetectStatementType(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want StatementType
	}{
		{"select", "SELECT * FROM t", StatementSelect},
		{"select lowercase", "  select top 10 * from t", StatementSelect},
		{"pure cte", "WITH x AS (SELECT 1 AS n) SELECT * FROM x", StatementSelect},
		{"modifying cte", "WITH gone AS (DELETE FROM t) SELECT * FROM gone", StatementModify},
		{"insert", "INSERT INTO t VALUES (1)", StatementModify},
		{"update", "UPDATE t SET a = 1", StatementModify},
		{"delete", "DELETE FROM t", StatementModify},
		{"merge", "MERGE INTO t USING s ON t.id = s.id", StatementModify},
		{"exec", "EXEC sp_do_things", StatementModify},
		{"drop", "DROP TABLE t", StatementDDL},
		{"truncate", "TRUNCATE TABLE t", StatementDDL},
		{"alter", "ALTER TABLE t ADD b INT", StatementDDL},
		{"gibberish", "GRANT ALL TO public", StatementUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectStatementType(tc.sql))
		})
	}
}

func TestValidateQuerySafetySQL(t *testing.T) {
	assert.NoError(t, ValidateQuerySafety("SELECT TOP 10 * FROM dbo.Sales", models.LanguageTSQL))

	err := ValidateQuerySafety("DROP TABLE dbo.Sales", models.LanguageTSQL)
	require.Error(t, err)
	var unsafe *UnsafeQueryError
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, StatementDDL, unsafe.Type)
	assert.ErrorIs(t, err, apperrors.ErrUnsafeQuery)

	assert.Error(t, ValidateQuerySafety("DELETE FROM dbo.Sales", models.LanguageTSQL))
	assert.Error(t, ValidateQuerySafety("WITH gone AS (UPDATE t SET a=1) SELECT 1", models.LanguageTSQL))
}

func TestValidateQuerySafetyDAX(t *testing.T) {
	assert.NoError(t, ValidateQuerySafety("EVALUATE TOPN(10, Sales)", models.LanguageDAX))
	assert.NoError(t, ValidateQuerySafety("  evaluate SUMMARIZE(Sales, Sales[Region])", models.LanguageDAX))
	assert.Error(t, ValidateQuerySafety("SUMMARIZE(Sales, Sales[Region])", models.LanguageDAX))
}
