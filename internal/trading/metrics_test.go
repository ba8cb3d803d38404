package trading

import "testing"

func TestMetrics_StatsTracksSuccessAndFailure(t *testing.T) {
	m := NewMetrics()
	m.RecordTrade(true, 1, 2, 3, 4, 5)
	m.RecordTrade(false, 1, 1, 1, 1, 1)

	total, success, failed, rate := m.Stats()
	if total != 2 || success != 1 || failed != 1 {
		t.Fatalf("unexpected stats: total=%d success=%d failed=%d", total, success, failed)
	}
	if rate != 50 {
		t.Errorf("expected a 50%% success rate, got %v", rate)
	}
}

func TestMetrics_PercentilesReflectRecordedSamples(t *testing.T) {
	m := NewMetrics()
	for _, ms := range []int64{10, 20, 30, 40, 50} {
		m.RecordLatency(ms)
	}
	if got := m.P50(); got != 30 {
		t.Errorf("expected P50 of 30, got %v", got)
	}
	if got := m.Avg(); got != 30 {
		t.Errorf("expected average of 30, got %v", got)
	}
}

func TestMetrics_LastBreakdownReflectsMostRecentTrade(t *testing.T) {
	m := NewMetrics()
	m.RecordTrade(true, 1, 2, 3, 4, 5)
	parse, resolve, quote, sign, send, total := m.LastBreakdown()
	if parse != 1 || resolve != 2 || quote != 3 || sign != 4 || send != 5 || total != 15 {
		t.Errorf("unexpected breakdown: %d %d %d %d %d %d", parse, resolve, quote, sign, send, total)
	}
}

func TestTradeTimer_GetBreakdownLeavesUnmarkedPhasesZero(t *testing.T) {
	timer := NewTradeTimer()
	timer.MarkResolveDone()
	timer.MarkQuoteDone()

	parse, resolve, quote, sign, send := timer.GetBreakdown()
	if parse != 0 {
		t.Errorf("expected parse to stay zero when never marked, got %v", parse)
	}
	if sign != 0 || send != 0 {
		t.Errorf("expected unmarked later phases to stay zero, got sign=%v send=%v", sign, send)
	}
	_ = resolve
	_ = quote
}
