package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParseTracks(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantIDs   []string
		wantError bool
	}{
		{
			name:    "bare yaml list",
			input:   "- id: t1\n  mood: happy\n- id: t2\n  mood: sad\n",
			wantIDs: []string{"t1", "t2"},
		},
		{
			name:    "tracks key",
			input:   "tracks:\n  - id: t1\n    energy: 0.8\n    palette: ['#ff0000']\n",
			wantIDs: []string{"t1"},
		},
		{
			name:    "json list",
			input:   `[{"id": "a", "title": "Sunrise", "tempo": 128}, {"id": "b"}]`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "json object",
			input:   `{"tracks": [{"id": "a", "theme": "beach"}]}`,
			wantIDs: []string{"a"},
		},
		{"empty", "   \n", nil, true},
		{"scalar", "just a string", nil, true},
		{"no tracks", "tracks: []\n", nil, true},
		{"malformed", "- id: [unclosed\n", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracks, err := ParseTracks([]byte(tc.input))
			if tc.wantError {
				if err == nil {
					t.Errorf("expected error, got %+v", tracks)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTracks failed: %v", err)
			}
			if len(tracks) != len(tc.wantIDs) {
				t.Fatalf("expected %d tracks, got %d", len(tc.wantIDs), len(tracks))
			}
			for i, id := range tc.wantIDs {
				if tracks[i].ID != id {
					t.Errorf("tracks[%d].ID = %s; want %s", i, tracks[i].ID, id)
				}
			}
		})
	}
}

func TestParseTracks_Fields(t *testing.T) {
	input := `
- id: t1
  title: Night Drive
  artist: Neon
  mood: Melancholic
  tempo: 92
  energy: 0.35
  palette: ["#1a1a40", "#e94560"]
  theme: city lights
`
	tracks, err := ParseTracks([]byte(input))
	if err != nil {
		t.Fatalf("ParseTracks failed: %v", err)
	}
	tr := tracks[0]
	if tr.Title != "Night Drive" || tr.Artist != "Neon" || tr.Mood != "Melancholic" {
		t.Errorf("unexpected descriptor %+v", tr)
	}
	if tr.Tempo != 92 || tr.Energy != 0.35 {
		t.Errorf("unexpected tempo/energy %f/%f", tr.Tempo, tr.Energy)
	}
	if len(tr.Palette) != 2 || tr.Palette[1] != "#e94560" {
		t.Errorf("unexpected palette %v", tr.Palette)
	}
	if tr.Theme != "city lights" {
		t.Errorf("unexpected theme %q", tr.Theme)
	}
}

func TestLoadTracks_MissingFile(t *testing.T) {
	if _, err := LoadTracks(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadPhotos(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.PNG", "png-bytes")
	writeFile(t, dir, "a.jpg", "jpeg-bytes")
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	photos, err := LoadPhotos(dir)
	if err != nil {
		t.Fatalf("LoadPhotos failed: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
	if photos[0].ID != "a.jpg" || photos[1].ID != "b.PNG" {
		t.Errorf("expected photos sorted by name, got %s, %s", photos[0].ID, photos[1].ID)
	}
	if string(photos[0].Data) != "jpeg-bytes" {
		t.Errorf("unexpected data %q", photos[0].Data)
	}
}

func TestLoadPhotos_MissingDir(t *testing.T) {
	if _, err := LoadPhotos(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoadPhotoArgs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cover.webp", "webp-bytes")

	photos, err := LoadPhotoArgs([]string{path, "https://example.com/p.jpg", path})
	if err != nil {
		t.Fatalf("LoadPhotoArgs failed: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("duplicates should collapse, got %d photos", len(photos))
	}
	if photos[0].ID != path || string(photos[0].Data) != "webp-bytes" {
		t.Errorf("unexpected file photo %+v", photos[0])
	}
	if photos[1].URL != "https://example.com/p.jpg" || photos[1].Data != nil {
		t.Errorf("expected URL photo, got %+v", photos[1])
	}

	if _, err := LoadPhotoArgs([]string{filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"a.jpg":     true,
		"a.JPEG":    true,
		"a.webp":    true,
		"a.bmp":     true,
		"a.tiff":    false,
		"README":    false,
		"photo.png": true,
	}
	for name, expected := range tests {
		if got := IsImageFile(name); got != expected {
			t.Errorf("IsImageFile(%q) = %v; want %v", name, got, expected)
		}
	}
}
