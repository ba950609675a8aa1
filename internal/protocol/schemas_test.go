package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestPlayerStateSchema_ValidatesSamples(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "player_state.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var starter any
	_ = json.Unmarshal([]byte(`{
	  "currency": 10,
	  "holdings": {"add1": 1},
	  "program": []
	}`), &starter)
	if err := s.Validate(starter); err != nil {
		t.Fatalf("starter state rejected: %v", err)
	}

	var evolved any
	_ = json.Unmarshal([]byte(`{
	  "currency": 123.5,
	  "holdings": {"add1": 2, "auto2": 1},
	  "program": ["add1", "add1", "mult2"],
	  "last_tick_at": "2025-06-01T12:00:00Z"
	}`), &evolved)
	if err := s.Validate(evolved); err != nil {
		t.Fatalf("evolved state rejected: %v", err)
	}
}

func TestPlayerStateSchema_RejectsBadShapes(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "player_state.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	bad := []string{
		`{"currency": -5, "holdings": {}, "program": []}`,
		`{"currency": 10, "holdings": {"add1": -1}, "program": []}`,
		`{"currency": 10, "holdings": {}, "program": [42]}`,
		`{"currency": 10, "holdings": {}, "program": [], "extra": true}`,
		`{"holdings": {}, "program": []}`,
		`[]`,
	}
	for _, body := range bad {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		if err := s.Validate(v); err == nil {
			t.Fatalf("schema accepted %s", body)
		}
	}
}
