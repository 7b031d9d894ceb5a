package main

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
)

const emptyCorrelationID = "000000000000000000000000"

var activeCorrelationID atomic.Value

func init() {
	activeCorrelationID.Store("")
}

// newCorrelationID derives a stable id from argv so repeated invocations with
// the same arguments can be joined in the operational log.
func newCorrelationID(arguments []string) string {
	if len(arguments) == 0 {
		return emptyCorrelationID
	}
	trimmed := make([]string, len(arguments))
	for index, argument := range arguments {
		trimmed[index] = strings.TrimSpace(argument)
	}
	sum := sha256.Sum256([]byte(strings.Join(trimmed, "\x1f")))
	return hex.EncodeToString(sum[:12])
}

func setCurrentCorrelationID(correlationID string) {
	activeCorrelationID.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := activeCorrelationID.Load().(string)
	return value
}
