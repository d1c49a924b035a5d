package geo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type placesFile struct {
	Places []struct {
		Address string  `yaml:"address"`
		Lat     float64 `yaml:"lat"`
		Lng     float64 `yaml:"lng"`
	} `yaml:"places"`
}

// Parse reads a YAML lookup table of the form
//
//	places:
//	  - address: "1 Ocean Ave, Santa Cruz"
//	    lat: 36.96
//	    lng: -122.02
func Parse(data []byte, max int) (*Table, error) {
	var file placesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse geo table: %w", err)
	}
	t := NewTable(max)
	for _, p := range file.Places {
		if err := t.Add(p.Address, Point{Lat: p.Lat, Lng: p.Lng}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadFile reads a YAML lookup table from path.
func LoadFile(path string, max int) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geo table: %w", err)
	}
	return Parse(data, max)
}
