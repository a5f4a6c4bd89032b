package metrics

import (
	"testing"
	"time"
)

func TestSnapshotEmptyCollector(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	if snap.Extraction != nil || snap.DBQuery != nil || snap.Finalize != nil {
		t.Errorf("expected nil op snapshots, got %+v", snap)
	}
}

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.DBQuery == nil {
		t.Fatal("expected db query snapshot")
	}
	if snap.DBQuery.Count != 2 {
		t.Errorf("Count = %d", snap.DBQuery.Count)
	}
	if snap.DBQuery.MinTimeMs != 10 || snap.DBQuery.MaxTimeMs != 30 {
		t.Errorf("Min/Max = %d/%d", snap.DBQuery.MinTimeMs, snap.DBQuery.MaxTimeMs)
	}
	if snap.DBQuery.TotalInputTokens != nil {
		t.Error("timing-only op should not carry token stats")
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpExtraction, 20*time.Millisecond, 100, 10)
	c.RecordLLMUsage(OpExtraction, 40*time.Millisecond, 200, 30)

	snap := c.Snapshot()
	if snap.Extraction == nil {
		t.Fatal("expected extraction snapshot")
	}
	if snap.Extraction.Count != 2 {
		t.Errorf("Count = %d", snap.Extraction.Count)
	}
	if snap.Extraction.TotalInputTokens == nil || *snap.Extraction.TotalInputTokens != 300 {
		t.Errorf("TotalInputTokens = %v", snap.Extraction.TotalInputTokens)
	}
	if snap.Extraction.TotalOutputTokens == nil || *snap.Extraction.TotalOutputTokens != 40 {
		t.Errorf("TotalOutputTokens = %v", snap.Extraction.TotalOutputTokens)
	}
	if snap.Extraction.MinInputTokens == nil || *snap.Extraction.MinInputTokens != 100 {
		t.Errorf("MinInputTokens = %v", snap.Extraction.MinInputTokens)
	}
	if snap.Extraction.MaxOutputTokens == nil || *snap.Extraction.MaxOutputTokens != 30 {
		t.Errorf("MaxOutputTokens = %v", snap.Extraction.MaxOutputTokens)
	}
}

func TestZeroTokenCallsOmitTokenStats(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpExtraction, 20*time.Millisecond, 0, 0)

	snap := c.Snapshot()
	if snap.Extraction == nil {
		t.Fatal("expected extraction snapshot")
	}
	if snap.Extraction.TotalInputTokens != nil {
		t.Error("zero-token calls should omit token stats")
	}
}
