// Package config reads the oslbatch settings file.
//
// The file is TOML:
//
//	[codegen]
//	width = 8
//	range-checking = true
//	test-any-lanes = true
//	no-noise = false
//	profile = false
//	debug-names = false
//
//	[runtime]
//	lanes-active = 8
//
//	[output]
//	color = true
//
// Keys left out keep the value of Default.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/batched"
)

type Config struct {
	Codegen Codegen
	Runtime Runtime
	Output  Output
}

// Codegen holds the code generation switches.
type Codegen struct {
	Width         int
	RangeChecking bool
	TestAnyLanes  bool
	NoNoise       bool
	Profile       bool
	DebugNames    bool
}

// Runtime configures the reference executor.
type Runtime struct {
	// LanesActive is how many of the low lanes of a batch are shaded by
	// a single run.
	LanesActive int
}

type Output struct {
	Color bool
}

// tomlFile is the file as encoded in TOML. Pointers tell missing keys
// apart from zero values.
type tomlFile struct {
	Codegen *tomlCodegen `toml:"codegen"`
	Runtime *tomlRuntime `toml:"runtime"`
	Output  *tomlOutput  `toml:"output"`
}

type tomlCodegen struct {
	Width         *int  `toml:"width"`
	RangeChecking *bool `toml:"range-checking"`
	TestAnyLanes  *bool `toml:"test-any-lanes"`
	NoNoise       *bool `toml:"no-noise"`
	Profile       *bool `toml:"profile"`
	DebugNames    *bool `toml:"debug-names"`
}

type tomlRuntime struct {
	LanesActive *int `toml:"lanes-active"`
}

type tomlOutput struct {
	Color *bool `toml:"color"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	opts := batched.DefaultOptions()
	return Config{
		Codegen: Codegen{
			Width:         opts.Width,
			RangeChecking: opts.RangeChecking,
			TestAnyLanes:  opts.TestAnyLanes,
		},
		Runtime: Runtime{LanesActive: opts.Width},
		Output:  Output{Color: true},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(buf []byte) (Config, error) {
	var f tomlFile
	if err := toml.Unmarshal(buf, &f); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if c := f.Codegen; c != nil {
		setInt(&cfg.Codegen.Width, c.Width)
		setBool(&cfg.Codegen.RangeChecking, c.RangeChecking)
		setBool(&cfg.Codegen.TestAnyLanes, c.TestAnyLanes)
		setBool(&cfg.Codegen.NoNoise, c.NoNoise)
		setBool(&cfg.Codegen.Profile, c.Profile)
		setBool(&cfg.Codegen.DebugNames, c.DebugNames)
		// the active lanes follow the width unless given
		if c.Width != nil && (f.Runtime == nil || f.Runtime.LanesActive == nil) {
			cfg.Runtime.LanesActive = cfg.Codegen.Width
		}
	}
	if r := f.Runtime; r != nil {
		setInt(&cfg.Runtime.LanesActive, r.LanesActive)
	}
	if o := f.Output; o != nil {
		setBool(&cfg.Output.Color, o.Color)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values a file or the flags may have set.
func (c Config) Validate() error {
	switch c.Codegen.Width {
	case 4, 8, 16:
	default:
		return fmt.Errorf("codegen.width must be 4, 8 or 16, not %d", c.Codegen.Width)
	}
	if c.Runtime.LanesActive < 0 || c.Runtime.LanesActive > c.Codegen.Width {
		return fmt.Errorf("runtime.lanes-active must be between 0 and %d, not %d",
			c.Codegen.Width, c.Runtime.LanesActive)
	}
	return nil
}

// Options converts the codegen section. Catalog and Renderer are left
// for the caller.
func (c Config) Options() batched.Options {
	return batched.Options{
		Width:         c.Codegen.Width,
		RangeChecking: c.Codegen.RangeChecking,
		TestAnyLanes:  c.Codegen.TestAnyLanes,
		NoNoise:       c.Codegen.NoNoise,
		Profile:       c.Codegen.Profile,
		DebugNames:    c.Codegen.DebugNames,
	}
}

// LaneMask is the run mask with the first LanesActive lanes on.
func (c Config) LaneMask() uint32 {
	return uint32(1)<<uint(c.Runtime.LanesActive) - 1
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
