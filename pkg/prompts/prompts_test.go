package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

func fixtureSchema() *models.Schema {
	return &models.Schema{
		Language: models.LanguageTSQL,
		Entities: []models.SchemaEntity{
			{
				Schema: "dbo",
				Name:   "Customers",
				Attributes: []models.SchemaAttribute{
					{Name: "CustomerID", DataType: "int", IsPrimary: true},
					{Name: "Revenue", DataType: "decimal", IsNullable: true},
				},
			},
		},
	}
}

func TestGenerationPromptCarriesAllSections(t *testing.T) {
	ctxEntries := []models.ContextEntry{
		{Question: "total revenue", Query: "SELECT TOP 1 SUM(Revenue) FROM dbo.Customers"},
	}

	prompt := Generation("what about last month?", fixtureSchema(), ctxEntries, models.LanguageTSQL)

	assert.Contains(t, prompt, "dbo.Customers")
	assert.Contains(t, prompt, "Revenue")
	assert.Contains(t, prompt, "total revenue")
	assert.Contains(t, prompt, "what about last month?")
	assert.Contains(t, prompt, "TOP")
	assert.NotContains(t, prompt, "EVALUATE")
}

func TestGenerationPromptDAXRules(t *testing.T) {
	schema := fixtureSchema()
	schema.Language = models.LanguageDAX

	prompt := Generation("sales by region", schema, nil, models.LanguageDAX)

	assert.Contains(t, prompt, "EVALUATE")
	assert.Contains(t, prompt, "TOPN")
	assert.NotContains(t, prompt, "Recent conversation")
}

func TestCorrectionPromptEmbedsFailure(t *testing.T) {
	prompt := Correction(
		"SELECT TOP 5 Rev FROM dbo.Customers",
		"Invalid column name 'Rev'.",
		backend.ErrorSyntax,
		fixtureSchema(),
		models.LanguageTSQL,
	)

	assert.Contains(t, prompt, "SELECT TOP 5 Rev FROM dbo.Customers")
	assert.Contains(t, prompt, "Invalid column name 'Rev'.")
	assert.Contains(t, prompt, "dbo.Customers")
	assert.Contains(t, prompt, "spelling")
}

func TestAnswerPromptBoundsSample(t *testing.T) {
	rows := make([]map[string]any, 50)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}

	prompt := Answer("how many orders?", "SELECT ...", models.LanguageTSQL, rows, 500, 10)

	assert.Contains(t, prompt, "returned 500 rows")
	assert.Contains(t, prompt, "showing the first 10")
	assert.Contains(t, prompt, `{"n":9}`)
	assert.NotContains(t, prompt, `{"n":10}`)
}

func TestFallbackAnswer(t *testing.T) {
	assert.Equal(t, "The query succeeded and returned 1 row.", FallbackAnswer(1))
	assert.Contains(t, FallbackAnswer(42), "42 rows")
}
