package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// view is the flattened form shared by the JSON and log renderings.
type view struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

func flatten(err error) view {
	re := Wrap(ErrCodeInternal, err)
	v := view{
		Code:       re.Code,
		Message:    re.Message,
		Category:   string(re.Category),
		Severity:   string(re.Severity),
		Details:    re.Details,
		Suggestion: re.Suggestion,
		Retryable:  re.Retryable,
	}
	if re.Cause != nil {
		v.Cause = re.Cause.Error()
	}
	return v
}

// FormatForCLI renders err as a short multi-line block for stderr.
// Plain errors are shown as ERR_501_INTERNAL.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	v := flatten(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", v.Message)
	if v.Cause != "" && v.Cause != v.Message {
		fmt.Fprintf(&b, "  Cause: %s\n", v.Cause)
	}
	if v.Suggestion != "" {
		fmt.Fprintf(&b, "  Hint: %s\n", v.Suggestion)
	}
	fmt.Fprintf(&b, "  Code: %s\n", v.Code)
	return b.String()
}

// FormatJSON encodes err for machine consumers. A nil error encodes as null.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return []byte("null"), nil
	}
	return json.Marshal(flatten(err))
}

// FormatForLog flattens err into a map for slog.Any. Details become
// detail_<key> entries.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}
	v := flatten(err)
	fields := make(map[string]any, 5+len(v.Details))
	fields["error_code"] = v.Code
	fields["message"] = v.Message
	fields["category"] = v.Category
	fields["severity"] = v.Severity
	if v.Cause != "" {
		fields["cause"] = v.Cause
	}
	for k, val := range v.Details {
		fields["detail_"+k] = val
	}
	return fields
}

var statusByCategory = map[Category]int{
	CategoryValidation: http.StatusBadRequest,
	CategoryNetwork:    http.StatusBadGateway,
	CategoryConfig:     http.StatusServiceUnavailable,
}

// HTTPStatus is the status code the HTTP API answers with for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCategory[GetCategory(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
