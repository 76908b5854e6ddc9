package graph

// Diagnostic represents a validation error or warning produced while
// building or validating a graph.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "BG-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic codes
const (
	CodeUnknownType       = "BG-001"
	CodeUnknownSocket     = "BG-002"
	CodeDanglingLink      = "BG-003"
	CodeTypeMismatch      = "BG-004"
	CodeMultipleDownlinks = "BG-005"
	CodeMultipleUplinks   = "BG-006"
	CodeNodeShape         = "BG-007"
	CodeFunctionCycle     = "BG-008"
	CodeDuplicateNode     = "BG-009"
	CodeVersion           = "BG-010"
	CodeUnreachable       = "BG-011"
	CodeInvalidConfig     = "BG-012"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

func errorf(code, path, msg string) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityError, Message: msg, Path: path}
}
