// Package catalog loads track lists and photo pools from disk.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/cover-matcher/internal/features"
	"github.com/kozaktomas/cover-matcher/internal/matcher"
)

// imageExtensions lists the file types the extractor can decode.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

type trackFile struct {
	Tracks []matcher.TrackDescriptor `yaml:"tracks"`
}

// LoadTracks reads a YAML or JSON track list from path.
func LoadTracks(path string) ([]matcher.TrackDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading track list: %w", err)
	}
	tracks, err := ParseTracks(data)
	if err != nil {
		return nil, fmt.Errorf("parsing track list %s: %w", path, err)
	}
	return tracks, nil
}

// ParseTracks decodes either a bare list of tracks or a document with a
// top-level "tracks" key. JSON input is accepted as YAML.
func ParseTracks(data []byte) ([]matcher.TrackDescriptor, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("track list is empty")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("track list is empty")
	}

	var tracks []matcher.TrackDescriptor
	switch doc := root.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&tracks); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var f trackFile
		if err := doc.Decode(&f); err != nil {
			return nil, err
		}
		tracks = f.Tracks
	default:
		return nil, fmt.Errorf("expected a list of tracks, got %s", nodeKind(doc.Kind))
	}

	if len(tracks) == 0 {
		return nil, errors.New("track list contains no tracks")
	}
	return tracks, nil
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return fmt.Sprintf("node kind %d", k)
	}
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadPhotos reads every image file directly inside dir. Photo IDs are file
// names, so they are unique within the pool. Files come back sorted by name.
func LoadPhotos(dir string) ([]features.Photo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading photo directory: %w", err)
	}

	var photos []features.Photo
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading photo %s: %w", e.Name(), err)
		}
		photos = append(photos, features.Photo{ID: e.Name(), Data: data})
	}
	return photos, nil
}

// LoadPhotoArgs turns command-line arguments into photos. http(s) arguments
// become URL photos fetched on analysis, anything else is read from disk.
// The argument itself is the photo ID.
func LoadPhotoArgs(args []string) ([]features.Photo, error) {
	photos := make([]features.Photo, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		if seen[arg] {
			continue
		}
		seen[arg] = true

		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			photos = append(photos, features.Photo{ID: arg, URL: arg})
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("reading photo: %w", err)
		}
		photos = append(photos, features.Photo{ID: arg, Data: data})
	}
	return photos, nil
}
