// Package config loads on-disk configuration for the encode-manager
// daemon.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/edirooss/encode-manager/internal/encodemgr"
)

// File is the on-disk shape of the configuration file, decoded with
// BurntSushi/toml. It maps onto encodemgr.Config plus the daemon's own
// wiring (Redis address, parent directory names, HTTP listen address).
type File struct {
	Server struct {
		Addr string `toml:"addr"`
		Dev  bool   `toml:"dev"`
	} `toml:"server"`

	Redis struct {
		Addr string `toml:"addr"`
		DB   int    `toml:"db"`
	} `toml:"redis"`

	Encode struct {
		ConcurrentEncodeNum int                 `toml:"concurrent_encode_num"`
		FFmpeg              string              `toml:"ffmpeg"`
		Profiles            []encodeProfileFile `toml:"profiles"`
		ParentDirs          map[string]string   `toml:"parent_dirs"`
	} `toml:"encode"`
}

type encodeProfileFile struct {
	Name   string  `toml:"name"`
	Cmd    string  `toml:"cmd"`
	Suffix string  `toml:"suffix"`
	Rate   float64 `toml:"rate"`
}

// Load decodes path as TOML into a File.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &f, nil
}

// EncodeConfig projects the encode-specific section of File into an
// encodemgr.Config.
func (f *File) EncodeConfig() *encodemgr.Config {
	profiles := make([]encodemgr.EncodeProfile, 0, len(f.Encode.Profiles))
	for _, p := range f.Encode.Profiles {
		profiles = append(profiles, encodemgr.EncodeProfile{
			Name:   p.Name,
			Cmd:    p.Cmd,
			Suffix: p.Suffix,
			Rate:   p.Rate,
		})
	}
	return &encodemgr.Config{
		ConcurrentEncodeNum: f.Encode.ConcurrentEncodeNum,
		FFmpeg:              f.Encode.FFmpeg,
		Encode:              profiles,
	}
}
