package manifest

import (
	"os"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := Manifest{
		Format:           Format,
		Seed:             1337,
		Generator:        "sine_hills",
		CreatedAt:        "2024-06-01T12:00:00Z",
		CreatedBySession: "s-1",
	}
	if err := Save(dir, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v want %+v", out, in)
	}
}

func TestLoadOrCreatePersistsFallback(t *testing.T) {
	dir := t.TempDir()
	fallback := Manifest{Format: Format, Seed: 7, CreatedAt: "2024-06-01T00:00:00Z"}

	first, err := LoadOrCreate(dir, fallback)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first != fallback {
		t.Fatalf("first = %+v, want fallback", first)
	}

	// A second open reads the persisted file, not the new fallback.
	second, err := LoadOrCreate(dir, Manifest{Format: Format, Seed: 999, CreatedAt: "x"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Seed != 7 {
		t.Fatalf("fallback overwrote existing manifest: %+v", second)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	// Unknown format version and a stray field.
	bad := []byte(`{"format": 2, "seed": 1, "created_at": "now", "bogus": true}`)
	if err := os.WriteFile(Path(dir), bad, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("invalid manifest accepted")
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, Manifest{Format: 3, Seed: 1, CreatedAt: "now"}); err == nil {
		t.Fatal("invalid manifest written")
	}
}

func TestLoadRejectsBadGenerator(t *testing.T) {
	dir := t.TempDir()
	bad := []byte(`{"format": 1, "seed": 1, "created_at": "now", "generator": "lava_world"}`)
	if err := os.WriteFile(Path(dir), bad, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("unknown generator accepted")
	}
}
