package patchir

import "testing"

func TestEncodeParseHandleRoundTrip(t *testing.T) {
	cases := []struct {
		nodeID string
		dir    Direction
		name   string
		types  []string
	}{
		{"node-1", DirectionOutput, "output", []string{"string"}},
		{"node-2", DirectionInput, "tools", []string{"Tool", "CustomTool"}},
		{"node-3", DirectionOutput, "options", nil},
	}
	for _, c := range cases {
		handle := EncodeHandle(c.nodeID, c.dir, c.name, c.types)
		parsed, err := ParseHandle(handle)
		if err != nil {
			t.Fatalf("ParseHandle(%q): %v", handle, err)
		}
		if parsed.NodeID != c.nodeID || parsed.Direction != c.dir || parsed.Name != c.name {
			t.Fatalf("round-trip mismatch: got %+v, want node=%s dir=%s name=%s", parsed, c.nodeID, c.dir, c.name)
		}
		if len(c.types) == 0 {
			if len(parsed.Types) != 0 {
				t.Fatalf("expected no types, got %v", parsed.Types)
			}
			continue
		}
		if len(parsed.Types) != len(c.types) {
			t.Fatalf("types mismatch: got %v, want %v", parsed.Types, c.types)
		}
	}
}

func TestParseHandleRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "only-two", "node-sideways-name-string"} {
		if _, err := ParseHandle(bad); err == nil {
			t.Fatalf("ParseHandle(%q): expected error, got nil", bad)
		}
	}
}
