package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"disabled", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := NewLogger(tc.in).GetLevel(); got != tc.want {
			t.Fatalf("NewLogger(%q) level = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestComponentTagsChildLogger(t *testing.T) {
	var buf bytes.Buffer
	parent := zerolog.New(&buf)

	child := Component(parent, "feed")
	child.Info().Msg("hello")
	line := buf.String()
	if !strings.Contains(line, `"component":"feed"`) {
		t.Fatalf("expected component tag in output, got %s", line)
	}

	// the parent logger stays untagged
	buf.Reset()
	parent.Info().Msg("hello")
	if strings.Contains(buf.String(), "component") {
		t.Fatalf("parent logger must not carry the tag, got %s", buf.String())
	}
}
