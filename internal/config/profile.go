package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ryabkov82/um-label-server/internal/job"
)

// Profile bundles everything needed to turn one kind of table into labels
type Profile struct {
	Table   job.TableConfig   `toml:"table"`
	Mapping job.MappingConfig `toml:"mapping"`
	Label   job.LabelConfig   `toml:"label"`
}

// LoadProfile reads a TOML label profile. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer file.Close()

	var p Profile
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}
