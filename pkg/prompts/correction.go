package prompts

import (
	"fmt"
	"strings"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// CorrectionSystem is the system message for query repair.
const CorrectionSystem = "You are an expert at debugging failed queries. " +
	"Respond with the corrected query and nothing else: no explanation, no markdown fences."

// kindGuidance gives the model a targeted strategy per error kind,
// mirroring how a human debugs each class of failure.
var kindGuidance = map[backend.ErrorKind]string{
	backend.ErrorSyntax: "Check identifier spelling against the schema and fix the statement syntax. " +
		"If a column or table in the query is not in the schema, substitute the closest one that is.",
	backend.ErrorTimeout: "The query was too expensive. Reduce the scanned data: tighten filters, " +
		"lower the row bound, or aggregate earlier.",
	backend.ErrorPermission: "Rewrite the query to touch only the objects listed in the schema; " +
		"the failing object may be outside the granted scope.",
	backend.ErrorConnection: "Re-express the query in its simplest correct form.",
}

// Correction builds the repair prompt from the failed query, the exact
// error text, and the schema.
func Correction(failedQuery, errorText string, kind backend.ErrorKind, schema *models.Schema, language models.QueryLanguage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The following %s query failed. Produce a corrected %s query.\n\n", language, language)
	fmt.Fprintf(&b, "Failed query:\n%s\n\n", failedQuery)
	fmt.Fprintf(&b, "Error:\n%s\n\n", errorText)
	fmt.Fprintf(&b, "Schema:\n%s\n", schema.Describe())

	if guidance, ok := kindGuidance[kind]; ok {
		fmt.Fprintf(&b, "Strategy: %s\n\n", guidance)
	}

	if language == models.LanguageDAX {
		b.WriteString(daxRules)
	} else {
		b.WriteString(sqlRules)
	}

	fmt.Fprintf(&b, "\n\nCorrected %s query:", language)
	return b.String()
}
