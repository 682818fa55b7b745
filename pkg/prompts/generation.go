// Package prompts builds the completion requests for query generation,
// query correction, and answer synthesis. Each builder embeds only the
// information the step needs; callers own truncation of what they pass.
package prompts

import (
	"fmt"
	"strings"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// GenerationSystem is the system message for query generation.
const GenerationSystem = "You are an expert data analyst who writes precise, efficient queries. " +
	"Respond with a single query and nothing else: no explanation, no markdown fences."

// sqlRules are the T-SQL syntax constraints the warehouse enforces.
const sqlRules = `Rules:
1. Write a single T-SQL SELECT statement. Never write INSERT, UPDATE, DELETE, or DDL.
2. Always include a TOP clause; use TOP, never LIMIT.
3. Bracket identifiers that contain spaces: [Order Date].
4. Use only tables and columns listed in the schema.
5. Use SUM, COUNT, AVG, MAX, MIN for aggregations; GROUP BY every non-aggregated column.
6. Prefer explicit JOINs along the listed relationships.`

// daxRules are the DAX constraints the semantic model enforces.
const daxRules = `Rules:
1. Write a single DAX query. It must start with EVALUATE.
2. Return a table expression: SUMMARIZECOLUMNS, TOPN, FILTER, ADDCOLUMNS.
3. Quote table names that contain spaces: 'Sales Data'.
4. Reference columns as Table[Column] and use existing measures where they fit.
5. Bound large results with TOPN.`

// Generation builds the query-generation prompt from the schema, the
// most recent context entries, and the question.
func Generation(question string, schema *models.Schema, contextEntries []models.ContextEntry, language models.QueryLanguage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s query that answers the user's question.\n\n", language)
	fmt.Fprintf(&b, "Schema:\n%s\n", schema.Describe())

	if len(contextEntries) > 0 {
		b.WriteString("Recent conversation (use it to resolve follow-up references):\n")
		for _, e := range contextEntries {
			fmt.Fprintf(&b, "Q: %s\nQuery: %s\n", e.Question, e.Query)
		}
		b.WriteString("\n")
	}

	if language == models.LanguageDAX {
		b.WriteString(daxRules)
	} else {
		b.WriteString(sqlRules)
	}

	fmt.Fprintf(&b, "\n\nQuestion: %s\n\n%s query:", question, language)
	return b.String()
}
