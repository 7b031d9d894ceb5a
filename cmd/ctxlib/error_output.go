package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/ctxlib/core/advisor"
	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
)

const (
	exitOK              = advisor.ExitResume
	exitRefresh         = advisor.ExitRefresh
	exitRestart         = advisor.ExitRestart
	exitInternalFailure = 3
	exitInvalidInput    = 6
)

// errorFields is embedded in every command output so JSON callers get the
// same error envelope regardless of command.
type errorFields struct {
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Retryable     *bool  `json:"retryable,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

func classifyError(err error) errorFields {
	if err == nil {
		return errorFields{}
	}
	fields := errorFields{
		Error:         err.Error(),
		ErrorCode:     ctxerrors.CodeOf(err),
		ErrorCategory: string(ctxerrors.CategoryOf(err)),
		Hint:          ctxerrors.HintOf(err),
	}
	if fields.ErrorCategory != "" {
		retryable := ctxerrors.RetryableOf(err)
		fields.Retryable = &retryable
	}
	return fields
}

func messageError(message string) errorFields {
	return errorFields{Error: message}
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

// writeHumanError reports a failure on stderr. Stdout stays empty so a
// failed run never looks like a report.
func writeHumanError(fields errorFields, exitCode int) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", fields.Error)
	hint := strings.TrimSpace(fields.Hint)
	if hint == "" {
		hint = defaultHint(exitCode)
	}
	fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	return exitCode
}

func writeWarning(message string) {
	fmt.Fprintf(os.Stderr, "ctxlib warning: %s\n", message)
}

func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(asString(result["correlation_id"])) == "" {
		if correlationID := currentCorrelationID(); correlationID != "" {
			result["correlation_id"] = correlationID
		}
	}
	if strings.TrimSpace(asString(result["error"])) == "" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_code"])) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if strings.TrimSpace(asString(result["error_category"])) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if _, exists := result["retryable"]; !exists {
		result["retryable"] = defaultRetryable(ctxerrors.Category(asString(result["error_category"])))
	}
	if strings.TrimSpace(asString(result["hint"])) == "" {
		result["hint"] = defaultHint(exitCode)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch ctxerrors.CategoryOf(err) {
	case ctxerrors.CategoryInvalidInput, ctxerrors.CategoryPrecondition:
		return exitInvalidInput
	case ctxerrors.CategoryIOFailure, ctxerrors.CategoryDependencyMissing, ctxerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) ctxerrors.Category {
	if exitCode == exitInvalidInput {
		return ctxerrors.CategoryInvalidInput
	}
	return ctxerrors.CategoryInternalFailure
}

func defaultErrorCode(exitCode int) string {
	if exitCode == exitInvalidInput {
		return "invalid_input"
	}
	return "internal_failure"
}

func defaultHint(exitCode int) string {
	if exitCode == exitInvalidInput {
		return "check command usage and the workflow directory"
	}
	return "retry after checking file permissions and disk space"
}

func defaultRetryable(category ctxerrors.Category) bool {
	return category == ctxerrors.CategoryIOFailure
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
