package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/davidahmann/ctxlib/core/fsx"
)

const (
	ConfigFileName      = "config.yaml"
	DocumentFileName    = "WORKFLOW.md"
	maxWorkflowFileSize = 1 << 20
)

var (
	requiredReadingMarker = []byte("required_reading:")
	documentPathPattern   = regexp.MustCompile(`path:\s*["']?([^"'}\n]+)["']?`)
)

// Entry is one declared required-reading file. Purpose is empty when the
// declaration did not supply one.
type Entry struct {
	Path    string
	Purpose string
}

type configFile struct {
	Context struct {
		RequiredReading []readingItem `yaml:"required_reading"`
	} `yaml:"context"`
}

// readingItem accepts either a bare path string or a {path, purpose} mapping.
type readingItem struct {
	Path    string
	Purpose string
}

func (item *readingItem) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case string:
		item.Path = value
	case map[string]any:
		item.Path = stringField(value, "path")
		item.Purpose = stringField(value, "purpose")
	case nil:
	default:
		return fmt.Errorf("required_reading entry must be a path or a {path, purpose} mapping, got %T", raw)
	}
	return nil
}

func stringField(mapping map[string]any, key string) string {
	value, ok := mapping[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}

// ID derives the workflow identifier from the directory name:
// "WF-0006-context-management" yields "WF-0006". Names with fewer than two
// dash-separated segments are returned unchanged.
func ID(workflowDir string) string {
	name := filepath.Base(filepath.Clean(workflowDir))
	parts := strings.Split(name, "-")
	if len(parts) < 2 {
		return name
	}
	return parts[0] + "-" + parts[1]
}

// Reader loads required reading declared by a workflow directory.
// Warnings receives non-fatal parse problems; nil discards them.
type Reader struct {
	Warnings func(string)
}

// RequiredReading returns the declared entries in declaration order.
// context.required_reading in config.yaml takes precedence over path:
// entries scraped from WORKFLOW.md. Missing or unparsable files yield no entries.
func (reader Reader) RequiredReading(workflowDir string) ([]Entry, error) {
	entries, declared := reader.fromConfig(filepath.Join(workflowDir, ConfigFileName))
	if declared {
		return entries, nil
	}
	return reader.fromDocument(filepath.Join(workflowDir, DocumentFileName)), nil
}

func (reader Reader) fromConfig(path string) ([]Entry, bool) {
	content, err := fsx.ReadFileLimit(path, maxWorkflowFileSize)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			reader.warn(fmt.Sprintf("could not read %s: %v", path, err))
		}
		return nil, false
	}
	var parsed configFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		reader.warn(fmt.Sprintf("could not parse %s: %v", path, err))
		return nil, false
	}
	if parsed.Context.RequiredReading == nil {
		return nil, false
	}
	entries := make([]Entry, 0, len(parsed.Context.RequiredReading))
	for _, item := range parsed.Context.RequiredReading {
		trimmed := strings.TrimSpace(item.Path)
		if trimmed == "" {
			continue
		}
		entries = append(entries, Entry{Path: trimmed, Purpose: strings.TrimSpace(item.Purpose)})
	}
	return entries, true
}

func (reader Reader) fromDocument(path string) []Entry {
	content, err := fsx.ReadFileLimit(path, maxWorkflowFileSize)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			reader.warn(fmt.Sprintf("could not read %s: %v", path, err))
		}
		return nil
	}
	if !bytes.Contains(bytes.ToLower(content), requiredReadingMarker) {
		return nil
	}
	matches := documentPathPattern.FindAllSubmatch(content, -1)
	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		trimmed := strings.TrimSpace(string(match[1]))
		if trimmed == "" {
			continue
		}
		entries = append(entries, Entry{Path: trimmed})
	}
	return entries
}

func (reader Reader) warn(message string) {
	if reader.Warnings != nil {
		reader.Warnings(message)
	}
}
