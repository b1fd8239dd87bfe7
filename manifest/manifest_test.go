package manifest

import (
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{
		Name:                  "hdd",
		RequiresPositionIndex: true,
		IndexGranularity:      64,
		CreatedAt:             "2024-01-01T00:00:00Z",
	}
	if err := Save(dir, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(dir) {
		t.Fatalf("Exists = false after Save")
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != m {
		t.Fatalf("Load() = %+v, want %+v", got, m)
	}
}

func TestExistsFalseForFreshRoot(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Fatalf("Exists = true for a fresh directory")
	}
}

func TestCheckCompatible(t *testing.T) {
	m := Manifest{IndexGranularity: 64, RequiresPositionIndex: true}

	if err := CheckCompatible(m, 64, true); err != nil {
		t.Fatalf("CheckCompatible matching config: %v", err)
	}

	err := CheckCompatible(m, 128, true)
	if err == nil {
		t.Fatalf("CheckCompatible mismatched granularity: want error, got nil")
	}
	if e, ok := err.(*Error); !ok || e.Kind != IncompatibleGranularity {
		t.Fatalf("err = %v, want IncompatibleGranularity", err)
	}

	err = CheckCompatible(m, 64, false)
	if err == nil {
		t.Fatalf("CheckCompatible without index: want error, got nil")
	}
	if e, ok := err.(*Error); !ok || e.Kind != MissingPositionIndex {
		t.Fatalf("err = %v, want MissingPositionIndex", err)
	}
}
