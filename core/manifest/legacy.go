package manifest

import (
	"strings"
	"time"
)

// Layouts accepted for manifest timestamps. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// upgradeLegacy rewrites keys written by the earlier script-based tooling
// (hash, git_checkpoint, original_hash, current_hash) and normalizes
// timestamps to RFC 3339 in place. Stored hashes are kept as-is: that tooling
// hashed text with invalid UTF-8 dropped, while Fingerprint hashes raw bytes,
// so a legacy record for a file holding invalid UTF-8 verifies as changed.
func upgradeLegacy(document map[string]any) {
	renameKey(document, "git_checkpoint", "vcs_checkpoint")
	normalizeTimestamp(document, "created_at")

	if sources, ok := document["sources"].(map[string]any); ok {
		for _, records := range sources {
			for _, record := range asMaps(records) {
				renameKey(record, "hash", "fingerprint")
				normalizeTimestamp(record, "loaded_at")
			}
		}
	}

	integrityBlock, ok := document["integrity"].(map[string]any)
	if !ok {
		return
	}
	normalizeTimestamp(integrityBlock, "last_verified")
	for _, entry := range asMaps(integrityBlock["drift_details"]) {
		renameKey(entry, "original_hash", "original_fingerprint")
		renameKey(entry, "current_hash", "current_fingerprint")
	}
}

func renameKey(mapping map[string]any, from string, to string) {
	value, ok := mapping[from]
	if !ok {
		return
	}
	delete(mapping, from)
	if _, exists := mapping[to]; !exists {
		mapping[to] = value
	}
}

func normalizeTimestamp(mapping map[string]any, key string) {
	value, ok := mapping[key]
	if !ok {
		return
	}
	text, ok := value.(string)
	if !ok {
		if value == nil {
			delete(mapping, key)
		}
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		delete(mapping, key)
		return
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			mapping[key] = parsed.UTC().Format(time.RFC3339Nano)
			return
		}
	}
}

func asMaps(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	maps := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if mapping, ok := item.(map[string]any); ok {
			maps = append(maps, mapping)
		}
	}
	return maps
}
