package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type testPayload struct {
	Kind string `json:"kind"`
	Port int    `json:"port"`
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(testPayload{Kind: "kafka", Port: 9092})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"kind":"kafka","port":9092}` {
		t.Fatalf("unexpected output %s", data)
	}

	indented, err := MarshalIndent(testPayload{Kind: "kafka"}, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"kind\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestString(t *testing.T) {
	got := String([]testPayload{{Kind: "zookeeper", Port: 2181}})
	if got != `[{"kind":"zookeeper","port":2181}]` {
		t.Fatalf("unexpected string %s", got)
	}

	fallback := String(make(chan int))
	if fallback == "" {
		t.Fatal("expected fallback rendering for unsupported value")
	}
}

func TestEncodeIndent(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := EncodeIndent(buf, map[string]string{"bootstrap": "127.0.0.1:9092"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") || !strings.Contains(buf.String(), "  \"bootstrap\"") {
		t.Fatalf("unexpected encoding %q", buf.String())
	}
}
