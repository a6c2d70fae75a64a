package mcp

import (
	"testing"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in       string
		wantExe  string
		wantArgs []string
	}{
		{"/usr/bin/mcp-files --root /home", "/usr/bin/mcp-files", []string{"--root", "/home"}},
		{"npx   -y  server-everything", "npx", []string{"-y", "server-everything"}},
		{"solo", "solo", []string{}},
		{"", "", nil},
	}
	for _, tc := range cases {
		exe, args := splitCommand(tc.in)
		if exe != tc.wantExe {
			t.Errorf("splitCommand(%q) exe = %q, want %q", tc.in, exe, tc.wantExe)
		}
		if len(args) != len(tc.wantArgs) {
			t.Errorf("splitCommand(%q) args = %v, want %v", tc.in, args, tc.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Errorf("splitCommand(%q) args[%d] = %q, want %q", tc.in, i, args[i], tc.wantArgs[i])
			}
		}
	}
}

func TestSchemaToMap(t *testing.T) {
	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("nil schema = %v, want bare object", m)
	}

	passthrough := map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}}
	if m := schemaToMap(passthrough); m["type"] != "object" || m["properties"] == nil {
		t.Errorf("map schema mangled: %v", m)
	}

	type schema struct {
		Type string `json:"type"`
	}
	if m := schemaToMap(schema{Type: "object"}); m["type"] != "object" {
		t.Errorf("struct schema = %v", m)
	}
}

func TestTransportIsValid(t *testing.T) {
	if !TransportStdio.IsValid() || !TransportStreamableHTTP.IsValid() {
		t.Error("built-in transports must be valid")
	}
	if Transport("carrier-pigeon").IsValid() {
		t.Error("unknown transport reported valid")
	}
}

func TestHostHasToolOnEmptyHost(t *testing.T) {
	h := New()
	if h.HasTool("anything") {
		t.Error("empty host claims to have a tool")
	}
	if tools := h.Tools(); len(tools) != 0 {
		t.Errorf("empty host lists tools: %v", tools)
	}
}
