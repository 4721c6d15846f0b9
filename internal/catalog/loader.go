// Package catalog loads the zone catalog from YAML or TOML and watches the
// file for changes.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/zonecast/internal/domain"
)

// File is the on-disk catalog layout.
type File struct {
	Zones []ZoneEntry `yaml:"zones" toml:"zones"`
}

// ZoneEntry is one zone as written in a catalog file.
type ZoneEntry struct {
	ID           string   `yaml:"id" toml:"id"`
	Name         string   `yaml:"name" toml:"name"`
	Latitude     float64  `yaml:"latitude" toml:"latitude"`
	Longitude    float64  `yaml:"longitude" toml:"longitude"`
	RadiusMeters float64  `yaml:"radius_meters" toml:"radius_meters"`
	Message      string   `yaml:"message" toml:"message"`
	Candidates   []string `yaml:"candidates" toml:"candidates"`
}

// Format is a catalog encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported catalog extension %q", domain.ErrInvalidCatalog, filepath.Ext(path))
	}
}

// Load reads and validates the catalog at path.
func Load(path string) (*domain.Catalog, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	catalog, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes and validates catalog data.
func Parse(data []byte, format Format) (*domain.Catalog, error) {
	var f File
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	case FormatTOML:
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidCatalog, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	if len(f.Zones) == 0 {
		return nil, fmt.Errorf("%w: no zones defined", domain.ErrInvalidCatalog)
	}

	zones := make([]domain.Zone, 0, len(f.Zones))
	for _, e := range f.Zones {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		zones = append(zones, domain.Zone{
			ID:           e.ID,
			Name:         name,
			Center:       domain.Coordinate{Lat: e.Latitude, Lon: e.Longitude},
			RadiusMeters: e.RadiusMeters,
			Payload:      domain.Payload{Message: e.Message, Candidates: e.Candidates},
		})
	}
	return domain.NewCatalog(zones)
}
