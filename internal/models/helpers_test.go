package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	id := surrealmodels.RecordID{Table: "connection", ID: "abc123"}

	s, err := RecordIDString(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "abc123" {
		t.Errorf("got %q, want %q", s, "abc123")
	}
}

func TestRecordIDStringNonString(t *testing.T) {
	id := surrealmodels.RecordID{Table: "connection", ID: 42}

	if _, err := RecordIDString(id); err == nil {
		t.Error("expected error for non-string ID")
	}
}

func TestMustRecordIDStringPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-string ID")
		}
	}()
	MustRecordIDString(surrealmodels.RecordID{Table: "connection", ID: 42})
}

func TestConfidenceRank(t *testing.T) {
	if ConfidenceLow.Rank() >= ConfidenceMedium.Rank() {
		t.Error("low should rank below medium")
	}
	if ConfidenceMedium.Rank() >= ConfidenceHigh.Rank() {
		t.Error("medium should rank below high")
	}
	if Confidence("bogus").Rank() >= ConfidenceLow.Rank() {
		t.Error("unknown tier should rank below low")
	}
}
