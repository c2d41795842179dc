package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactBodySignatures(t *testing.T) {
	body := []byte(`{"sell":{"intent":{"owner":"0x01"},"signature":"0xdead"},"buy":{"signature":"0xbeef"},"api_key":"k"}`)
	out := redactBody(body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	sell := data["sell"].(map[string]interface{})
	if sell["signature"] == "0xdead" {
		t.Fatalf("sell signature not redacted")
	}
	if data["buy"].(map[string]interface{})["signature"] == "0xbeef" {
		t.Fatalf("buy signature not redacted")
	}
	if data["api_key"] == "k" {
		t.Fatalf("api key not redacted")
	}
	if sell["intent"].(map[string]interface{})["owner"] != "0x01" {
		t.Fatalf("non-sensitive field was changed")
	}
}

func TestRedactBodyInvalidJSON(t *testing.T) {
	if out := redactBody([]byte("not-json")); out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json, got %q", out)
	}
}

func TestRedactBodyEmpty(t *testing.T) {
	if out := redactBody(nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
