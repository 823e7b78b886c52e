package archive

import (
	"errors"
	"testing"
	"time"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1",
		StartedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		FinalScore:      0.37,
		FinalRegime:     "stability",
	}

	payload, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != run.ID || decoded.FinalScore != run.FinalScore || decoded.FinalRegime != run.FinalRegime {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	run := RunRecord{ID: "run-1"}
	run.SchemaVersion = CurrentSchemaVersion + 1
	run.CodecVersion = CurrentCodecVersion

	payload, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeRunRejectsGarbage(t *testing.T) {
	if _, err := DecodeRun([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
