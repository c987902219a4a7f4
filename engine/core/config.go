package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	MinFrameCount uint32 = 1
	MaxFrameCount uint32 = 4
)

// Supported values for RendererSettings.API.
const (
	APINull   = "null"
	APIVulkan = "vulkan"
	APIWGPU   = "wgpu"
)

type ApplicationSettings struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererSettings struct {
	API              string `toml:"api"`
	FrameCount       uint32 `toml:"frame_count"`
	VSync            bool   `toml:"vsync"`
	RequiredGPUIndex uint32 `toml:"required_gpu_index"`
	Validation       bool   `toml:"validation"`
}

type DescriptorSettings struct {
	// Capacity of the first heap allocated for each descriptor category.
	InitialHeapSize uint32 `toml:"initial_heap_size"`
	// Upper bound on descriptors per category, across all heaps.
	MaxDescriptors uint32 `toml:"max_descriptors"`
	// Capacity of the first bindless heap allocated for each view type.
	BindlessHeapSize uint32 `toml:"bindless_heap_size"`
}

type LogSettings struct {
	Level string `toml:"level"`
}

// Settings is the explicit configuration handed to the renderer and to the
// host. It is passed by pointer; nothing in the engine keeps a global copy.
type Settings struct {
	Application ApplicationSettings `toml:"application"`
	Renderer    RendererSettings    `toml:"renderer"`
	Descriptors DescriptorSettings  `toml:"descriptors"`
	Log         LogSettings         `toml:"log"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Application: ApplicationSettings{
			Name:   "anima-hal",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererSettings{
			API:        APINull,
			FrameCount: 3,
			VSync:      true,
		},
		Descriptors: DescriptorSettings{
			InitialHeapSize:  1024,
			MaxDescriptors:   65536,
			BindlessHeapSize: 4096,
		},
		Log: LogSettings{
			Level: "debug",
		},
	}
}

// LoadSettings reads a TOML file on top of DefaultSettings and validates the result.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	return ParseSettings(data)
}

func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings back as TOML.
func (s *Settings) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Settings) Validate() error {
	switch s.Renderer.API {
	case APINull, APIVulkan, APIWGPU:
	default:
		return fmt.Errorf("%w: renderer.api %q", ErrUnsupportedBackend, s.Renderer.API)
	}
	if s.Renderer.FrameCount < MinFrameCount || s.Renderer.FrameCount > MaxFrameCount {
		return fmt.Errorf("%w: renderer.frame_count must be in [%d, %d], got %d",
			ErrInvalidSettings, MinFrameCount, MaxFrameCount, s.Renderer.FrameCount)
	}
	if s.Application.Width == 0 || s.Application.Height == 0 {
		return fmt.Errorf("%w: application size must be non-zero", ErrInvalidSettings)
	}
	if s.Descriptors.InitialHeapSize == 0 || s.Descriptors.BindlessHeapSize == 0 {
		return fmt.Errorf("%w: descriptor heap sizes must be non-zero", ErrInvalidSettings)
	}
	if s.Descriptors.MaxDescriptors < s.Descriptors.InitialHeapSize {
		return fmt.Errorf("%w: descriptors.max_descriptors (%d) is below initial_heap_size (%d)",
			ErrInvalidSettings, s.Descriptors.MaxDescriptors, s.Descriptors.InitialHeapSize)
	}
	return nil
}

// Clone returns a deep copy; Settings holds no references so a value copy suffices.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}
