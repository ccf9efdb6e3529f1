package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFile is the top-level structure of a mission seed YAML file.
//
// Example:
//
//	missions:
//	  - id: "moon-cheese"
//	    topic: "The moon is made of cheese"
//	    summary: "The hosts insist a lunar dairy lobby hides the truth."
//	    initial_listeners: 1200
//	    speakers:
//	      - name: "Arthur Sterling"
//	        gender: male
//	        color: "#f6c177"
//	        description: "A smooth-voiced veteran anchor."
type SeedFile struct {
	Missions []Mission `yaml:"missions"`
}

// LoadSeedFile reads and parses a seed YAML file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mission: open seed file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadSeedFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("mission: parse seed file %q: %w", path, err)
	}
	return sf, nil
}

// LoadSeedFromReader parses seed YAML from r and validates every mission.
// Missions without a status are marked ready.
func LoadSeedFromReader(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("mission: decode seed yaml: %w", err)
	}

	var errs []error
	ids := make(map[string]bool, len(sf.Missions))
	for i := range sf.Missions {
		m := &sf.Missions[i]
		if m.Status == "" {
			m.Status = StatusReady
		}
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
		}
		if ids[m.ID] {
			errs = append(errs, fmt.Errorf("mission %q: duplicate id", m.ID))
		}
		ids[m.ID] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &sf, nil
}

// Seed writes every mission of sf into store and returns how many were
// written. A store error aborts seeding.
func Seed(ctx context.Context, store Store, sf *SeedFile) (int, error) {
	if sf == nil {
		return 0, fmt.Errorf("mission: seed file must not be nil")
	}
	for i := range sf.Missions {
		m := sf.Missions[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if err := store.Put(ctx, &m); err != nil {
			return i, fmt.Errorf("mission: seed %q: %w", m.ID, err)
		}
	}
	return len(sf.Missions), nil
}
