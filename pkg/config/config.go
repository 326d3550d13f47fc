// Package config loads node configuration from environment variables and
// simulation scenarios from YAML files.
package config

import (
	"os"
	"strconv"
)

// Config holds node configuration.
type Config struct {
	StorageRoot    string
	ReceiptDBPath  string
	LogLevel       string
	OTLPEndpoint   string
	TelemetryOn    bool
	SendsPerSecond float64
	SendBurst      int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	storageRoot := os.Getenv("AURA_STORAGE_ROOT")
	if storageRoot == "" {
		storageRoot = "aura-data"
	}

	receiptDB := os.Getenv("AURA_RECEIPT_DB")
	if receiptDB == "" {
		receiptDB = storageRoot + "/receipts.db"
	}

	logLevel := os.Getenv("AURA_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	otlp := os.Getenv("AURA_OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	sendsPerSecond := 64.0
	if v := os.Getenv("AURA_SENDS_PER_SECOND"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			sendsPerSecond = parsed
		}
	}

	burst := 128
	if v := os.Getenv("AURA_SEND_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			burst = parsed
		}
	}

	return &Config{
		StorageRoot:    storageRoot,
		ReceiptDBPath:  receiptDB,
		LogLevel:       logLevel,
		OTLPEndpoint:   otlp,
		TelemetryOn:    os.Getenv("AURA_TELEMETRY") == "true",
		SendsPerSecond: sendsPerSecond,
		SendBurst:      burst,
	}
}
