package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/healpix"
)

// DefaultConfigPath is the path to the canonical map-generation defaults file.
const DefaultConfigPath = "config/map.defaults.json"

// Default values used when a field is absent from the JSON.
const (
	DefaultNside           = 4096
	DefaultRenderMax       = 1000.0
	DefaultFileSearchLimit = 500000
	DefaultHDUSearchLimit  = 5000000
)

// MapConfig holds the exposure-map generation parameters. Pointer fields
// distinguish "absent" from zero; the Get* methods supply defaults.
type MapConfig struct {
	// Pixelisation
	Nside *int `json:"nside,omitempty"`

	// Tau derivation
	PixelScale      *float64 `json:"pixel_scale,omitempty"`      // arcsec per pixel
	SeeingReference *float64 `json:"seeing_reference,omitempty"` // arcsec
	SkyReference    *float64 `json:"sky_reference,omitempty"`    // counts per second

	// Accumulation
	Workers    *int  `json:"workers,omitempty"`
	ChunkSize  *int  `json:"chunk_size,omitempty"`
	LogSkipped *bool `json:"log_skipped,omitempty"`

	// Rendering
	RenderMax *float64 `json:"render_max,omitempty"` // seconds, colour-scale cap

	// Archive queries
	FileSearchLimit *int `json:"file_search_limit,omitempty"`
	HDUSearchLimit  *int `json:"hdu_search_limit,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyMapConfig returns a MapConfig with every field unset.
func EmptyMapConfig() *MapConfig {
	return &MapConfig{}
}

// DefaultMapConfig returns a MapConfig with every field set to its default.
func DefaultMapConfig() *MapConfig {
	return &MapConfig{
		Nside:           ptrInt(DefaultNside),
		PixelScale:      ptrFloat64(exposure.DefaultPixelScale),
		SeeingReference: ptrFloat64(exposure.DefaultSeeingRef),
		SkyReference:    ptrFloat64(exposure.DefaultSkyRef),
		Workers:         ptrInt(0),
		ChunkSize:       ptrInt(exposure.DefaultChunkSize),
		LogSkipped:      ptrBool(true),
		RenderMax:       ptrFloat64(DefaultRenderMax),
		FileSearchLimit: ptrInt(DefaultFileSearchLimit),
		HDUSearchLimit:  ptrInt(DefaultHDUSearchLimit),
	}
}

// LoadMapConfig loads a MapConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Omitted fields fall back to defaults
// through the Get* methods.
func LoadMapConfig(path string) (*MapConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMapConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *MapConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadMapConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set values are usable.
func (c *MapConfig) Validate() error {
	if c.Nside != nil {
		if err := healpix.ValidNside(*c.Nside); err != nil {
			return fmt.Errorf("nside: %w", err)
		}
	}

	for name, v := range map[string]*float64{
		"pixel_scale":      c.PixelScale,
		"seeing_reference": c.SeeingReference,
		"sky_reference":    c.SkyReference,
		"render_max":       c.RenderMax,
	} {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %v", name, *v)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", *c.ChunkSize)
	}
	if c.FileSearchLimit != nil && *c.FileSearchLimit <= 0 {
		return fmt.Errorf("file_search_limit must be positive, got %d", *c.FileSearchLimit)
	}
	if c.HDUSearchLimit != nil && *c.HDUSearchLimit <= 0 {
		return fmt.Errorf("hdu_search_limit must be positive, got %d", *c.HDUSearchLimit)
	}

	return nil
}

// GetNside returns the nside value or the default.
func (c *MapConfig) GetNside() int {
	if c.Nside == nil {
		return DefaultNside
	}
	return *c.Nside
}

// GetTauParams returns the tau constants, defaulting each missing one.
func (c *MapConfig) GetTauParams() exposure.TauParams {
	p := exposure.DefaultTauParams()
	if c.PixelScale != nil {
		p.PixelScale = *c.PixelScale
	}
	if c.SeeingReference != nil {
		p.SeeingRef = *c.SeeingReference
	}
	if c.SkyReference != nil {
		p.SkyRef = *c.SkyReference
	}
	return p
}

// GetWorkers returns the worker count; zero or unset means one per CPU.
func (c *MapConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetChunkSize returns the chunk_size value or the default.
func (c *MapConfig) GetChunkSize() int {
	if c.ChunkSize == nil || *c.ChunkSize == 0 {
		return exposure.DefaultChunkSize
	}
	return *c.ChunkSize
}

// GetLogSkipped returns the log_skipped value or the default.
func (c *MapConfig) GetLogSkipped() bool {
	if c.LogSkipped == nil {
		return true
	}
	return *c.LogSkipped
}

// GetRenderMax returns the render_max value or the default.
func (c *MapConfig) GetRenderMax() float64 {
	if c.RenderMax == nil {
		return DefaultRenderMax
	}
	return *c.RenderMax
}

// GetFileSearchLimit returns the file_search_limit value or the default.
func (c *MapConfig) GetFileSearchLimit() int {
	if c.FileSearchLimit == nil {
		return DefaultFileSearchLimit
	}
	return *c.FileSearchLimit
}

// GetHDUSearchLimit returns the hdu_search_limit value or the default.
func (c *MapConfig) GetHDUSearchLimit() int {
	if c.HDUSearchLimit == nil {
		return DefaultHDUSearchLimit
	}
	return *c.HDUSearchLimit
}

// Accumulator builds an exposure accumulator from the configuration.
func (c *MapConfig) Accumulator() *exposure.Accumulator {
	return &exposure.Accumulator{
		Workers:    c.GetWorkers(),
		ChunkSize:  c.GetChunkSize(),
		LogSkipped: c.GetLogSkipped(),
	}
}
