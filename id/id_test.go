package id_test

import (
	"encoding/json"
	"testing"

	"github.com/veldtlabs/exportq/id"
)

func TestNew_PrefixAndUniqueness(t *testing.T) {
	a := id.NewJobID()
	b := id.NewJobID()

	if a.Prefix() != id.PrefixJob {
		t.Errorf("prefix = %q, want %q", a.Prefix(), id.PrefixJob)
	}
	if a.String() == b.String() {
		t.Errorf("two generated IDs collided: %q", a.String())
	}
	if a.IsNil() {
		t.Error("generated ID reported nil")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewJobID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	jobID := id.NewJobID()

	if _, err := id.ParseDLQID(jobID.String()); err == nil {
		t.Error("expected prefix mismatch error")
	}
	if _, err := id.ParseJobID(jobID.String()); err != nil {
		t.Errorf("unexpected error for matching prefix: %v", err)
	}
}

func TestID_JSON(t *testing.T) {
	orig := id.NewDeliveryID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var got id.ID
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("json round trip = %q, want %q", got.String(), orig.String())
	}
}

func TestNil_Behaviour(t *testing.T) {
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false")
	}

	v, err := id.Nil.Value()
	if err != nil {
		t.Fatalf("value error: %v", err)
	}
	if v != nil {
		t.Errorf("Nil.Value() = %v, want nil", v)
	}
}
