package telemetry

import "testing"

func TestNewInfluxSink_UnreachableAddr(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-dependent test in short mode")
	}

	_, err := NewInfluxSink(InfluxConfig{URL: "http://127.0.0.1:1", Token: "x", Org: "o", Bucket: "b"}, testLogger())
	if err == nil {
		t.Fatal("expected an error connecting to a closed port")
	}
}
