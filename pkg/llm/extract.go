package llm

import (
	"errors"
	"regexp"
	"strings"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// ErrNoQuery is returned when no plausible query can be extracted from
// a completion response. Callers treat this as a generation failure and
// must not feed it into the correction loop.
var ErrNoQuery = errors.New("no executable query found in completion response")

var (
	thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

	fencedPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?is)```(?:sql|dax|tsql)\\s*(.*?)\\s*```"),
		regexp.MustCompile("(?s)```\\s*(.*?)\\s*```"),
	}

	languagePrefixPattern = regexp.MustCompile(`(?i)^(sql|dax|t-sql|tsql)\s*:\s*`)

	limitClausePattern  = regexp.MustCompile(`(?i)\s+LIMIT\s+(\d+)`)
	selectStartPattern  = regexp.MustCompile(`(?i)^SELECT\s+`)
	oversizedTopPattern = regexp.MustCompile(`(?i)TOP\s+(\d{4,})`)
	ilikePattern        = regexp.MustCompile(`(?i)\bILIKE\b`)
)

// daxTableFunctions are DAX functions whose presence marks a bare table
// expression that can be promoted to a query with EVALUATE.
var daxTableFunctions = []string{
	"SUMMARIZE", "SUMMARIZECOLUMNS", "FILTER", "CALCULATETABLE",
	"TOPN", "ADDCOLUMNS", "SELECTCOLUMNS", "VALUES", "ROW", "UNION",
}

// ExtractQuery pulls a single executable query out of a completion
// response, stripping code fences, language prefixes, and any prose the
// model wrapped around it, then normalizes it for the target language.
// It fails closed with ErrNoQuery rather than returning a best-effort
// string, so downstream states get an unambiguous signal.
func ExtractQuery(response string, language models.QueryLanguage) (string, error) {
	cleaned := strings.TrimSpace(thinkTagPattern.ReplaceAllString(response, ""))
	if cleaned == "" {
		return "", ErrNoQuery
	}

	if strings.Contains(cleaned, "```") {
		matched := false
		for _, p := range fencedPatterns {
			if m := p.FindStringSubmatch(cleaned); m != nil {
				cleaned = strings.TrimSpace(m[1])
				matched = true
				break
			}
		}
		if !matched {
			cleaned = strings.ReplaceAll(cleaned, "```", "")
		}
	}
	cleaned = strings.ReplaceAll(cleaned, "`", "")
	cleaned = languagePrefixPattern.ReplaceAllString(strings.TrimSpace(cleaned), "")

	// Collapse blank lines and per-line whitespace.
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	cleaned = strings.Join(lines, "\n")
	if cleaned == "" {
		return "", ErrNoQuery
	}

	if language == models.LanguageDAX {
		return normalizeDAX(cleaned)
	}
	return normalizeSQL(cleaned)
}

// normalizeSQL enforces T-SQL conventions: the query must be a SELECT
// (or CTE), carries a TOP clause, and uses no PostgreSQL-isms.
func normalizeSQL(query string) (string, error) {
	upper := strings.ToUpper(query)

	// The model sometimes answers in prose with the query buried a few
	// lines down; recover from the first SELECT/WITH line.
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		idx := strings.Index(upper, "SELECT")
		widx := strings.Index(upper, "WITH")
		if widx >= 0 && (idx < 0 || widx < idx) {
			idx = widx
		}
		if idx < 0 {
			return "", ErrNoQuery
		}
		query = query[idx:]
		upper = strings.ToUpper(query)
	}

	// Replace LIMIT with TOP before checking for a row bound.
	query = limitClausePattern.ReplaceAllString(query, " TOP $1")
	upper = strings.ToUpper(query)

	if strings.HasPrefix(upper, "SELECT") && !strings.Contains(upper, "TOP") {
		query = selectStartPattern.ReplaceAllString(query, "SELECT TOP 100 ")
	}

	// Rein in absurd TOP values the model occasionally picks.
	query = oversizedTopPattern.ReplaceAllString(query, "TOP 1000")

	query = ilikePattern.ReplaceAllString(query, "LIKE")

	return strings.TrimSpace(query), nil
}

// normalizeDAX enforces that the query is an EVALUATE statement,
// promoting bare table expressions where possible.
func normalizeDAX(query string) (string, error) {
	upper := strings.ToUpper(query)

	if !strings.HasPrefix(upper, "EVALUATE") {
		idx := strings.Index(upper, "EVALUATE")
		if idx >= 0 {
			query = query[idx:]
			return strings.TrimSpace(query), nil
		}

		for _, fn := range daxTableFunctions {
			if strings.Contains(upper, fn+"(") || strings.Contains(upper, fn+" (") {
				return "EVALUATE\n" + strings.TrimSpace(query), nil
			}
		}

		// A short quoted or single-token name is a table reference.
		if !strings.Contains(query, "\n") && len(strings.Fields(query)) <= 2 {
			return "EVALUATE " + strings.TrimSpace(query), nil
		}

		return "", ErrNoQuery
	}

	return strings.TrimSpace(query), nil
}
