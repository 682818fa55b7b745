package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// AnswerSystem is the system message for answer synthesis.
const AnswerSystem = "You are a helpful data analyst. Answer concisely in plain language, " +
	"citing the concrete numbers from the data. Do not mention the query or its syntax."

// Answer builds the answer-synthesis prompt over a bounded sample of
// the result rows. sampleLimit bounds prompt growth on wide results.
func Answer(question, query string, language models.QueryLanguage, rows []map[string]any, totalRows, sampleLimit int) string {
	sample := rows
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}

	// Rows render as JSON lines; the model reads them more reliably
	// than an ASCII table.
	var rendered strings.Builder
	for _, row := range sample {
		if data, err := json.Marshal(row); err == nil {
			rendered.Write(data)
			rendered.WriteByte('\n')
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %s\n\n", question)
	fmt.Fprintf(&b, "A %s query returned %d rows", language, totalRows)
	if len(sample) < totalRows {
		fmt.Fprintf(&b, " (showing the first %d)", len(sample))
	}
	fmt.Fprintf(&b, ":\n%s\n", rendered.String())
	b.WriteString("Answer the user's question from this data.")
	return b.String()
}

// FallbackAnswer is the templated answer used when synthesis fails; a
// successful query result is never discarded over a completion error.
func FallbackAnswer(totalRows int) string {
	if totalRows == 1 {
		return "The query succeeded and returned 1 row."
	}
	return fmt.Sprintf("The query succeeded and returned %d rows.", totalRows)
}
