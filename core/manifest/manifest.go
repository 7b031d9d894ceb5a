// Package manifest persists context manifests as CONTEXT-LIBRARY.yaml and
// applies verification results to them.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/fsx"
	"github.com/davidahmann/ctxlib/core/integrity"
	"github.com/davidahmann/ctxlib/core/jcs"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/davidahmann/ctxlib/core/schema/validate"
)

const (
	FileName = "CONTEXT-LIBRARY.yaml"

	maxManifestBytes = 8 << 20
	manifestFileMode = 0o600
)

var ErrManifestNotFound = errors.New("context manifest not found")

var compiledSchema = sync.OnceValues(func() (*validate.Validator, error) {
	return validate.Compile(schemacontextlib.ManifestSchemaJSON)
})

// Path returns the fixed manifest location inside a workflow directory.
func Path(workflowDir string) string {
	return filepath.Join(workflowDir, FileName)
}

func Save(path string, manifest schemacontextlib.Manifest) error {
	encoded, err := yaml.Marshal(manifest)
	if err != nil {
		return ctxerrors.Wrap(fmt.Errorf("encode manifest: %w", err), ctxerrors.CategoryInternalFailure, "manifest_encode_failed", "", false)
	}
	if err := fsx.WriteFileAtomic(path, encoded, manifestFileMode); err != nil {
		return ctxerrors.Wrap(fmt.Errorf("write manifest: %w", err), ctxerrors.CategoryIOFailure, "manifest_write_failed", "check permissions on the workflow directory", true)
	}
	return nil
}

// Load reads, upgrades, validates and decodes a manifest. Missing and
// structurally invalid manifests are precondition failures.
func Load(path string) (schemacontextlib.Manifest, error) {
	content, err := fsx.ReadFileLimit(path, maxManifestBytes)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return schemacontextlib.Manifest{}, ctxerrors.Wrap(
				fmt.Errorf("%w: %s", ErrManifestNotFound, path),
				ctxerrors.CategoryPrecondition, "manifest_not_found",
				"run `ctxlib gather <workflow_dir>` first to generate the context manifest", false,
			)
		}
		if errors.Is(err, fsx.ErrTooLarge) {
			return schemacontextlib.Manifest{}, invalidManifest(path, err)
		}
		return schemacontextlib.Manifest{}, ctxerrors.Wrap(fmt.Errorf("read manifest: %w", err), ctxerrors.CategoryIOFailure, "manifest_read_failed", "", true)
	}
	return Decode(path, content)
}

// Decode parses manifest YAML. path is used only for diagnostics.
func Decode(path string, content []byte) (schemacontextlib.Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return schemacontextlib.Manifest{}, invalidManifest(path, fmt.Errorf("parse yaml: %w", err))
	}
	document, ok := normalizeValue(raw).(map[string]any)
	if !ok {
		return schemacontextlib.Manifest{}, invalidManifest(path, fmt.Errorf("manifest must be a mapping"))
	}
	upgradeLegacy(document)

	encoded, err := json.Marshal(document)
	if err != nil {
		return schemacontextlib.Manifest{}, invalidManifest(path, fmt.Errorf("convert to json: %w", err))
	}
	validator, err := compiledSchema()
	if err != nil {
		return schemacontextlib.Manifest{}, ctxerrors.Wrap(err, ctxerrors.CategoryInternalFailure, "manifest_schema_invalid", "", false)
	}
	if err := validator.ValidateJSON(encoded); err != nil {
		return schemacontextlib.Manifest{}, invalidManifest(path, err)
	}
	var manifest schemacontextlib.Manifest
	if err := json.Unmarshal(encoded, &manifest); err != nil {
		return schemacontextlib.Manifest{}, invalidManifest(path, fmt.Errorf("decode manifest: %w", err))
	}
	return manifest, nil
}

// ApplyIntegrity records a verification pass. context_mode moves to resume
// only when files changed or were deleted; sources and deferred are untouched.
func ApplyIntegrity(manifest schemacontextlib.Manifest, result integrity.Result) schemacontextlib.Manifest {
	manifest.Integrity = &schemacontextlib.Integrity{
		LastVerified: result.VerifiedAt,
		FilesChanged: len(result.Changed),
		FilesDeleted: len(result.Deleted),
		DriftDetails: result.DriftEntries(),
	}
	if result.HasDrift() {
		manifest.ContextMode = schemacontextlib.ModeResume
	}
	return manifest
}

// Update is the only mutation path for a written manifest: load, apply, save.
func Update(path string, result integrity.Result) (schemacontextlib.Manifest, error) {
	manifest, err := Load(path)
	if err != nil {
		return schemacontextlib.Manifest{}, err
	}
	updated := ApplyIntegrity(manifest, result)
	if err := Save(path, updated); err != nil {
		return schemacontextlib.Manifest{}, err
	}
	return updated, nil
}

// Digest is the sha256 of the RFC 8785 canonical JSON form of manifest.
func Digest(manifest schemacontextlib.Manifest) (string, error) {
	return jcs.DigestValue(manifest)
}

func invalidManifest(path string, cause error) error {
	return ctxerrors.Wrap(
		fmt.Errorf("invalid context manifest %s: %w", path, cause),
		ctxerrors.CategoryPrecondition, "manifest_invalid",
		"re-run `ctxlib gather <workflow_dir>` to regenerate the manifest", false,
	)
}

// normalizeValue converts decoded YAML into JSON-compatible values.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		for key, item := range typed {
			typed[key] = normalizeValue(item)
		}
		return typed
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for key, item := range typed {
			converted[fmt.Sprint(key)] = normalizeValue(item)
		}
		return converted
	case []any:
		for index, item := range typed {
			typed[index] = normalizeValue(item)
		}
		return typed
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return value
	}
}
