package services

import (
	"regexp"
	"strings"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/apperrors"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// StatementType classifies a generated statement by its leading keyword.
type StatementType string

const (
	StatementSelect  StatementType = "SELECT"
	StatementDDL     StatementType = "DDL" // CREATE, ALTER, DROP, TRUNCATE
	StatementModify  StatementType = "MODIFY"
	StatementUnknown StatementType = "UNKNOWN"
)

// modifyingCTEPattern matches CTEs that smuggle data-modifying operations
// past the leading-keyword check, e.g.
// WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted.
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

// DetectStatementType classifies a T-SQL statement by its first keyword.
func DetectStatementType(sql string) StatementType {
	normalized := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return StatementSelect

	case strings.HasPrefix(normalized, "WITH"):
		if modifyingCTEPattern.MatchString(sql) {
			return StatementModify
		}
		return StatementSelect

	case strings.HasPrefix(normalized, "INSERT"),
		strings.HasPrefix(normalized, "UPDATE"),
		strings.HasPrefix(normalized, "DELETE"),
		strings.HasPrefix(normalized, "MERGE"),
		strings.HasPrefix(normalized, "EXEC"),
		strings.HasPrefix(normalized, "EXECUTE"):
		return StatementModify

	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"):
		return StatementDDL

	default:
		return StatementUnknown
	}
}

// UnsafeQueryError reports a generated statement that the engine refuses
// to run against the backend.
type UnsafeQueryError struct {
	Type    StatementType
	Message string
}

func (e *UnsafeQueryError) Error() string {
	return e.Message
}

func (e *UnsafeQueryError) Unwrap() error {
	return apperrors.ErrUnsafeQuery
}

// ValidateQuerySafety enforces the read-only contract before execution.
// T-SQL must be a SELECT (or a pure-SELECT CTE); DAX must start with
// EVALUATE. Everything else is rejected, never sent to the backend, and
// never handed to the correction loop as a backend failure.
func ValidateQuerySafety(query string, language models.QueryLanguage) error {
	if language == models.LanguageDAX {
		if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "EVALUATE") {
			return &UnsafeQueryError{
				Type:    StatementUnknown,
				Message: "DAX queries must start with EVALUATE",
			}
		}
		return nil
	}

	switch t := DetectStatementType(query); t {
	case StatementSelect:
		return nil
	case StatementDDL:
		return &UnsafeQueryError{
			Type:    t,
			Message: "DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed",
		}
	case StatementModify:
		return &UnsafeQueryError{
			Type:    t,
			Message: "data-modifying statements are not allowed; only SELECT queries can run",
		}
	default:
		return &UnsafeQueryError{
			Type:    t,
			Message: "unrecognized statement type; only SELECT queries can run",
		}
	}
}
