// Package oplog appends start/end operational events for CLI invocations to
// a JSONL file.
package oplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/fsx"
	schemaoplog "github.com/davidahmann/ctxlib/core/schema/v1/oplog"
)

const (
	EnvPath = "CTXLIB_OPERATIONAL_LOG"

	operationalEventSchemaID = "ctxlib.operational_event"
	operationalEventSchemaV1 = "1.0.0"
	maxOperationalLineBytes  = 1024 * 1024
	categoryNone             = "none"
)

func NewStartEvent(command string, correlationID string, producerVersion string, now time.Time) schemaoplog.OperationalEvent {
	return newOperationalEvent(command, correlationID, producerVersion, "start", 0, categoryNone, false, 0, now)
}

func NewEndEvent(
	command string,
	correlationID string,
	producerVersion string,
	exitCode int,
	errorCategory string,
	retryable bool,
	elapsed time.Duration,
	now time.Time,
) schemaoplog.OperationalEvent {
	elapsedMS := elapsed.Milliseconds()
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	return newOperationalEvent(command, correlationID, producerVersion, "end", exitCode, errorCategory, retryable, elapsedMS, now)
}

func Append(path string, event schemaoplog.OperationalEvent) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("operational log path is required")
	}
	normalized, err := normalizeOperationalEvent(event)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal operational event: %w", err)
	}
	if err := fsx.AppendLineLocked(trimmedPath, encoded, 0o600); err != nil {
		return fmt.Errorf("append operational event: %w", err)
	}
	return nil
}

func Load(path string) ([]schemaoplog.OperationalEvent, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("operational log path is required")
	}
	// #nosec G304 -- operational log path is explicit local user input.
	file, err := os.Open(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("open operational log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	events := make([]schemaoplog.OperationalEvent, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOperationalLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var event schemaoplog.OperationalEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("parse operational log line %d: %w", line, err)
		}
		normalized, err := normalizeOperationalEvent(event)
		if err != nil {
			return nil, fmt.Errorf("validate operational log line %d: %w", line, err)
		}
		events = append(events, normalized)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan operational log: %w", err)
	}
	return events, nil
}

func normalizeOperationalEvent(event schemaoplog.OperationalEvent) (schemaoplog.OperationalEvent, error) {
	if strings.TrimSpace(event.SchemaID) != operationalEventSchemaID {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("invalid schema_id %q", event.SchemaID)
	}
	if strings.TrimSpace(event.SchemaVersion) != operationalEventSchemaV1 {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("invalid schema_version %q", event.SchemaVersion)
	}
	if event.CreatedAt.IsZero() {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("created_at is required")
	}
	if strings.TrimSpace(event.ProducerVersion) == "" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("producer_version is required")
	}
	if strings.TrimSpace(event.CorrelationID) == "" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("correlation_id is required")
	}
	if strings.TrimSpace(event.Command) == "" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("command is required")
	}
	phase := strings.ToLower(strings.TrimSpace(event.Phase))
	if phase != "start" && phase != "end" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("phase must be start or end")
	}
	if event.ExitCode < 0 || event.ExitCode > 255 {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("exit_code out of range")
	}
	if event.ElapsedMS < 0 {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("elapsed_ms out of range")
	}
	category := strings.ToLower(strings.TrimSpace(event.ErrorCategory))
	if category == "" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("error_category is required")
	}
	if category != categoryNone && !knownCategory(category) {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("unsupported error_category %q", event.ErrorCategory)
	}
	if strings.TrimSpace(event.Environment.OS) == "" || strings.TrimSpace(event.Environment.Arch) == "" {
		return schemaoplog.OperationalEvent{}, fmt.Errorf("environment os/arch are required")
	}

	return schemaoplog.OperationalEvent{
		SchemaID:        operationalEventSchemaID,
		SchemaVersion:   operationalEventSchemaV1,
		CreatedAt:       event.CreatedAt.UTC(),
		ProducerVersion: strings.TrimSpace(event.ProducerVersion),
		CorrelationID:   strings.TrimSpace(event.CorrelationID),
		Command:         strings.TrimSpace(event.Command),
		Phase:           phase,
		ExitCode:        event.ExitCode,
		ErrorCategory:   category,
		Retryable:       event.Retryable,
		ElapsedMS:       event.ElapsedMS,
		Environment: schemaoplog.EnvContext{
			OS:   strings.TrimSpace(event.Environment.OS),
			Arch: strings.TrimSpace(event.Environment.Arch),
		},
	}, nil
}

func knownCategory(category string) bool {
	for _, known := range ctxerrors.Categories() {
		if string(known) == category {
			return true
		}
	}
	return false
}

func newOperationalEvent(
	command string,
	correlationID string,
	producerVersion string,
	phase string,
	exitCode int,
	errorCategory string,
	retryable bool,
	elapsedMS int64,
	now time.Time,
) schemaoplog.OperationalEvent {
	createdAt := now.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return schemaoplog.OperationalEvent{
		SchemaID:        operationalEventSchemaID,
		SchemaVersion:   operationalEventSchemaV1,
		CreatedAt:       createdAt,
		ProducerVersion: orDefault(producerVersion, "0.0.0-dev"),
		CorrelationID:   orDefault(correlationID, "unknown"),
		Command:         orDefault(command, "unknown"),
		Phase:           strings.ToLower(orDefault(phase, "end")),
		ExitCode:        exitCode,
		ErrorCategory:   strings.ToLower(orDefault(errorCategory, categoryNone)),
		Retryable:       retryable,
		ElapsedMS:       elapsedMS,
		Environment: schemaoplog.EnvContext{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
	}
}

func orDefault(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
