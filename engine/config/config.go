// Package config loads the engine settings file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/program"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/timeline"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const DefaultFilename = "oxy-graph.yaml"

// Backend names.
const (
	BackendWebGPU = "webgpu"
	BackendNative = "native"
)

// Config is the settings file.
type Config struct {
	Version int `yaml:"version"`

	Backend string       `yaml:"backend"`
	Window  WindowConfig `yaml:"window"`
	Engine  EngineConfig `yaml:"engine"`
	Render  RenderConfig `yaml:"render"`
}

type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	VSync  bool   `yaml:"vsync,omitempty"`
}

type EngineConfig struct {
	TickRate   float64 `yaml:"tickRate"`
	FrameLimit float64 `yaml:"frameLimit,omitempty"`
	Profiling  bool    `yaml:"profiling,omitempty"`
	Workers    int     `yaml:"workers,omitempty"`
}

type RenderConfig struct {
	FrameQueueLength int           `yaml:"frameQueueLength"`
	FenceTimeout     time.Duration `yaml:"fenceTimeout"`

	UniformRingSize uint64 `yaml:"uniformRingSize,omitempty"`
	VertexRingSize  uint64 `yaml:"vertexRingSize,omitempty"`
	IndexRingSize   uint64 `yaml:"indexRingSize,omitempty"`

	ResolutionScale     float32 `yaml:"resolutionScale"`
	EnableTAA           bool    `yaml:"enableTAA"`
	EnablePathTracing   bool    `yaml:"enablePathTracing,omitempty"`
	FreezeCameraCulling bool    `yaml:"freezeCameraCulling,omitempty"`
	Exposure            float32 `yaml:"exposure"`
	TAABlend            float32 `yaml:"taaBlend"`

	// ShaderDir loads shaders from disk instead of the embedded copies, for reloading.
	ShaderDir string `yaml:"shaderDir,omitempty"`
}

// Default returns the settings used when no file exists.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	c := Config{Render: RenderConfig{EnableTAA: true}}
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Backend == "" {
		c.Backend = BackendWebGPU
	}
	if c.Window.Title == "" {
		c.Window.Title = "oxy-graph"
	}
	c.Window.Width = common.Coalesce(c.Window.Width, 1280)
	c.Window.Height = common.Coalesce(c.Window.Height, 720)
	if c.Engine.TickRate <= 0 {
		c.Engine.TickRate = 60
	}
	if c.Engine.FrameLimit < 0 {
		c.Engine.FrameLimit = 0
	}
	if c.Render.FrameQueueLength < 1 {
		c.Render.FrameQueueLength = timeline.FrameQueueLength
	}
	if c.Render.FenceTimeout <= 0 {
		c.Render.FenceTimeout = timeline.DefaultFenceTimeout
	}
	d := renderer.DefaultSettings()
	if c.Render.ResolutionScale <= 0 {
		c.Render.ResolutionScale = d.ResolutionScale
	}
	if c.Render.Exposure <= 0 {
		c.Render.Exposure = d.Exposure
	}
	if c.Render.TAABlend <= 0 {
		c.Render.TAABlend = d.TAABlend
	}
}

// Validate reports settings no component can run with.
//
// Returns:
//   - error: the first invalid setting, or nil
func (c Config) Validate() error {
	switch c.Backend {
	case BackendWebGPU, BackendNative:
	default:
		return errors.Newf("unknown backend %q", c.Backend)
	}
	if c.Render.ResolutionScale > 4 {
		return errors.Newf("resolution scale %.2f is above 4", c.Render.ResolutionScale)
	}
	if c.Render.TAABlend > 1 {
		return errors.Newf("TAA blend %.2f is above 1", c.Render.TAABlend)
	}
	if c.Render.ShaderDir != "" {
		if _, err := os.Stat(c.Render.ShaderDir); err != nil {
			return errors.Wrap(err, "shader directory")
		}
	}
	return nil
}

// Extent returns the window size as an extent.
func (c Config) Extent() common.Extent2D {
	return common.Extent2D{Width: c.Window.Width, Height: c.Window.Height}
}

// Settings returns the runtime render settings of the file.
func (c Config) Settings() renderer.Settings {
	return renderer.Settings{
		ResolutionScale:     c.Render.ResolutionScale,
		EnableTAA:           c.Render.EnableTAA,
		EnablePathTracing:   c.Render.EnablePathTracing,
		FreezeCameraCulling: c.Render.FreezeCameraCulling,
		Exposure:            c.Render.Exposure,
		TAABlend:            c.Render.TAABlend,
	}
}

// RendererOptions turns the render section into renderer builder options.
//
// Returns:
//   - []renderer.RendererBuilderOption: options for renderer.NewRenderer
func (c Config) RendererOptions() []renderer.RendererBuilderOption {
	options := []renderer.RendererBuilderOption{
		renderer.WithSettings(c.Settings()),
		renderer.WithQueueLength(c.Render.FrameQueueLength),
		renderer.WithFenceTimeout(c.Render.FenceTimeout),
		renderer.WithRingSizes(c.Render.UniformRingSize, c.Render.VertexRingSize, c.Render.IndexRingSize),
		renderer.WithOutputExtent(c.Extent()),
	}
	if c.Render.ShaderDir != "" {
		options = append(options, renderer.WithProgramSource(program.FSSource(os.DirFS(c.Render.ShaderDir), ".")))
	}
	return options
}

// Load reads and normalizes a settings file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the settings
//   - error: the file could not be read, parsed or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read %s", path)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "parse %s", path)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "validate %s", path)
	}
	return c, nil
}

// LoadOrDefault loads path, returning the defaults when the file does not exist.
func LoadOrDefault(path string) (Config, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Write encodes c to path, creating its directory.
//
// Parameters:
//   - path: the file path
//   - c: the settings
//
// Returns:
//   - error: the file could not be written
func Write(path string, c Config) error {
	c.normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(enc.Close(), "close %s", path)
}
