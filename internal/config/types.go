// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ContainerEngineDocker uses Docker as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses Podman as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineAuto picks whichever engine is available.
	ContainerEngineAuto ContainerEngine = "auto"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidRegistryURL is returned when a registry URL is whitespace-only.
	ErrInvalidRegistryURL = errors.New("invalid registry url")
	// ErrInvalidConfig is the sentinel wrapped by aggregate config errors.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// UIConfig holds terminal presentation settings.
	UIConfig struct {
		ColorScheme ColorScheme `mapstructure:"color_scheme"`
		Verbose     bool        `mapstructure:"verbose"`
	}

	// Config is kiln's tool configuration.
	Config struct {
		// ContainerEngine selects the engine used for builds.
		ContainerEngine ContainerEngine `mapstructure:"container_engine"`

		// RegistryURL overrides the model registry base URL. Empty means
		// the public registry.
		RegistryURL string `mapstructure:"registry_url"`

		// CacheDir overrides the host-side cache root. Empty means
		// ~/.cache/kiln.
		CacheDir string `mapstructure:"cache_dir"`

		UI UIConfig `mapstructure:"ui"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineAuto,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}

// Validate reports whether the engine value is recognized.
func (e ContainerEngine) Validate() error {
	switch e {
	case ContainerEngineDocker, ContainerEnginePodman, ContainerEngineAuto:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: docker, podman, auto)", ErrInvalidContainerEngine, e)
	}
}

// Validate reports whether the color scheme value is recognized.
func (s ColorScheme) Validate() error {
	switch s {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: auto, dark, light)", ErrInvalidColorScheme, s)
	}
}

// Validate checks the whole config and reports every problem together.
func (c *Config) Validate() error {
	var errs []error

	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RegistryURL != "" && strings.TrimSpace(c.RegistryURL) == "" {
		errs = append(errs, fmt.Errorf("%w: must not be whitespace-only", ErrInvalidRegistryURL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// Kiln configuration file\n\n")
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	if cfg.RegistryURL != "" {
		fmt.Fprintf(&sb, "registry_url: %q\n", cfg.RegistryURL)
	}
	if cfg.CacheDir != "" {
		fmt.Fprintf(&sb, "cache_dir: %q\n", cfg.CacheDir)
	}

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
