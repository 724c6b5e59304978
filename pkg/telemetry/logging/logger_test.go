package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	logger.Info("gateway started", "address", ":8080")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "gateway started" || record["address"] != ":8080" {
		t.Errorf("record = %v", record)
	}
}

func TestSetupLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "emitted") {
		t.Error("warn record missing")
	}
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	if _, err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := Setup(Config{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}
