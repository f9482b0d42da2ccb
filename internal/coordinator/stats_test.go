package coordinator

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantSols   int64
		wantShares int64
		wantOK     bool
	}{
		{name: "valid", text: "120 3", wantSols: 120, wantShares: 3, wantOK: true},
		{name: "extra whitespace", text: "  120   3  ", wantSols: 120, wantShares: 3, wantOK: true},
		{name: "missing field", text: "120", wantOK: false},
		{name: "too many fields", text: "120 3 4", wantOK: false},
		{name: "non-numeric", text: "abc 3", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sols, shares, ok := ParseStatus(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if sols != tt.wantSols || shares != tt.wantShares {
				t.Errorf("got sols=%d shares=%d, want sols=%d shares=%d", sols, shares, tt.wantSols, tt.wantShares)
			}
		})
	}
}

func TestStatsWindow_SuppressedUntilJobDispatched(t *testing.T) {
	s := NewStatsWindow()
	s.RecordStatus(0, 100, 0)
	if _, ok := s.Sample(); ok {
		t.Error("expected no stats line before a job has ever been dispatched")
	}
}

// S6: devid 0 reporting a cumulative-sols series of [0,100,200,300] over
// four 5-second samples. After 15s the rate is (300-0)/15 = 20.0 sol/s,
// equal for both the single GPU bucket and the global total since there is
// only one GPU.
func TestStatsWindow_RateIsDeltaOverCumulativeCounters(t *testing.T) {
	s := NewStatsWindow()
	s.RecordJobDispatched()

	series := []int64{0, 100, 200, 300}
	var line string
	var ok bool
	for _, total := range series {
		s.RecordStatus(0, total, 0)
		line, ok = s.Sample()
	}
	if !ok {
		t.Fatal("expected a stats line once counters are present")
	}
	want := "Total 20.0 sol/s [dev0 20.0] 0 share(s)"
	if line != want {
		t.Errorf("got %q, want %q", line, want)
	}
}

func TestStatsWindow_SharesAreSummedCumulativeCountersNotAcceptedShares(t *testing.T) {
	s := NewStatsWindow()
	s.RecordJobDispatched()

	s.RecordStatus(0, 10, 4)
	s.RecordStatus(1, 20, 7)
	line, ok := s.Sample()
	if !ok {
		t.Fatal("expected a stats line")
	}
	if line != "Total 0.0 sol/s [dev0 0.0, dev1 0.0] 11 share(s)" {
		t.Errorf("got %q", line)
	}
}

func TestStatsWindow_GlobalWindowCapped(t *testing.T) {
	s := NewStatsWindow()
	s.RecordJobDispatched()

	for i := 0; i < globalWindow+10; i++ {
		s.RecordStatus(0, int64(i)*10, 0)
		s.Sample()
	}
	if len(s.global.buf) > globalWindow {
		t.Errorf("global window holds %d samples, want <= %d", len(s.global.buf), globalWindow)
	}
}
