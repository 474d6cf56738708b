package assets

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind is the type of an asset.
type Kind string

// Asset kinds.
const (
	KindStatic   Kind = "static"
	KindFunction Kind = "function"
)

// Manifest is the decoded asset manifest.
type Manifest struct {
	Assets map[string]*Asset `yaml:"assets"`
}

// Asset is one entry of the build output.
type Asset struct {
	// Path is the manifest key; filled in on load.
	Path string `yaml:"-"`

	Type        Kind   `yaml:"type"`
	ContentType string `yaml:"contentType,omitempty"`
	Digest      string `yaml:"digest,omitempty"`

	Function  string           `yaml:"function,omitempty"`
	Prerender *PrerenderConfig `yaml:"prerender,omitempty"`
}

// IsFunction reports whether the asset is executed rather than read.
func (a *Asset) IsFunction() bool {
	return a.Type == KindFunction
}

// PrerenderConfig controls incremental regeneration of a function asset.
type PrerenderConfig struct {
	Expiration  Expiration `yaml:"expiration"`
	Group       string     `yaml:"group,omitempty"`
	BypassToken string     `yaml:"bypassToken,omitempty"`
	// Fallback is the path of a static asset served on a cache miss.
	Fallback string `yaml:"fallback,omitempty"`
	// AllowQuery restricts and orders the query keys in the cache key. Nil
	// means every key, sorted; empty means none.
	AllowQuery []string `yaml:"allowQuery"`
}

// Expiration is a number of seconds or "never".
type Expiration struct {
	Seconds int
	Never   bool
}

// NeverExpires is the expiration decoded from `false`.
var NeverExpires = Expiration{Never: true}

// UnmarshalYAML accepts a non-negative integer or false.
func (e *Expiration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expiration must be a number or false", node.Line)
	}
	if node.Tag == "!!bool" {
		v, err := strconv.ParseBool(node.Value)
		if err != nil || v {
			return fmt.Errorf("line %d: expiration may only be false", node.Line)
		}
		*e = NeverExpires
		return nil
	}
	n, err := strconv.Atoi(node.Value)
	if err != nil || n < 0 {
		return fmt.Errorf("line %d: invalid expiration %q", node.Line, node.Value)
	}
	*e = Expiration{Seconds: n}
	return nil
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Assets == nil {
		m.Assets = make(map[string]*Asset)
	}
	for path, a := range m.Assets {
		if a == nil {
			return nil, fmt.Errorf("manifest entry %q is empty", path)
		}
		a.Path = path
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks entry types and cross references.
func (m *Manifest) Validate() error {
	var errs []error
	for path, a := range m.Assets {
		switch a.Type {
		case KindStatic:
			if a.Digest == "" {
				errs = append(errs, fmt.Errorf("%s: static asset requires a digest", path))
			}
			if a.Prerender != nil {
				errs = append(errs, fmt.Errorf("%s: only functions can be prerendered", path))
			}
		case KindFunction:
			if a.Function == "" {
				errs = append(errs, fmt.Errorf("%s: function asset requires a function name", path))
			}
			if p := a.Prerender; p != nil && p.Fallback != "" {
				fb, ok := m.Assets[p.Fallback]
				if !ok || fb.Type != KindStatic {
					errs = append(errs, fmt.Errorf("%s: fallback %q is not a static asset", path, p.Fallback))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown asset type %q", path, a.Type))
		}
	}
	return errors.Join(errs...)
}
