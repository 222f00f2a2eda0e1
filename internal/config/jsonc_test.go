package config

import (
	"encoding/json"
	"testing"
)

func TestStripJSONComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line comment", "{\"a\": 1 // note\n}", "{\"a\": 1 \n}"},
		{"block comment", `{"a": /* note */ 1}`, `{"a":  1}`},
		{"slashes inside string", `{"url": "http://example.com"}`, `{"url": "http://example.com"}`},
		{"escaped quote", `{"a": "say \"hi\" // not a comment"}`, `{"a": "say \"hi\" // not a comment"}`},
		{"unterminated block", `{"a": 1} /* trailing`, `{"a": 1} `},
		{"lone slash", `{"a": "x", "b": 1}/`, `{"a": "x", "b": 1}/`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(StripJSONComments([]byte(tt.in))); got != tt.want {
				t.Errorf("StripJSONComments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripJSONCommentsYieldsValidJSON(t *testing.T) {
	in := []byte(`{
	// server section
	"server": {"address": ":8080"}, /* inline */
	"paths": ["/a//b"]
}`)

	var v map[string]any
	if err := json.Unmarshal(StripJSONComments(in), &v); err != nil {
		t.Fatalf("stripped output does not parse: %v", err)
	}
	if v["server"].(map[string]any)["address"] != ":8080" {
		t.Error("server.address lost while stripping comments")
	}
}
