// Package catalog models the set of fingerprinting surfaces to trap, as data.
//
// A [Catalog] is an ordered list of [Descriptor] values, plus the screen
// geometry properties to randomize. The default catalog is embedded, see
// [Default], and alternatives may be loaded from YAML, see [Load].
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultGeometryLimit is the exclusive upper bound of screen offsets, used
// when a catalog doesn't specify one.
const DefaultGeometryLimit = 64

var (
	// ErrUnknownCategory indicates a category outside Canvas, WebGL,
	// AudioContext, and WebRTC.
	ErrUnknownCategory = errors.New(`catalog: unknown category`)
	// ErrInvalidPath indicates an empty path, or an empty path segment.
	ErrInvalidPath = errors.New(`catalog: invalid binding path`)
	// ErrDuplicatePath indicates a path listed more than once, including
	// across descriptors and geometry.
	ErrDuplicatePath = errors.New(`catalog: duplicate binding path`)
)

//go:embed catalog.yaml
var defaultYAML []byte

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(bytes.NewReader(defaultYAML))
})

type (
	// Catalog is an immutable, validated set of descriptors and geometry
	// overrides.
	Catalog struct {
		descriptors []Descriptor
		geometry    Geometry
	}

	// Geometry configures the randomized screen properties.
	Geometry struct {
		// Properties are the targets, which must have distinct paths.
		Properties []GeometryProperty `yaml:"properties"`
		// Limit is the exclusive upper bound of each drawn offset.
		Limit int `yaml:"limit"`
	}

	// GeometryProperty pairs an override target with the path its true value
	// is read from.
	GeometryProperty struct {
		// Path is the accessor to override, e.g. Screen.prototype.width.
		Path string `yaml:"path"`
		// Source is read before overriding, e.g. screen.width.
		Source string `yaml:"source"`
	}

	fileFormat struct {
		Members   []memberGroup  `yaml:"members,omitempty"`
		Functions []functionItem `yaml:"functions,omitempty"`
		Geometry  *Geometry      `yaml:"geometry,omitempty"`
	}

	memberGroup struct {
		Category   Category `yaml:"category"`
		Objects    []string `yaml:"objects,flow"`
		Properties []string `yaml:"properties"`
	}

	functionItem struct {
		Category Category `yaml:"category"`
		Path     string   `yaml:"path"`
	}
)

// Default returns the embedded default catalog.
func Default() *Catalog {
	c, err := loadDefault()
	if err != nil {
		panic(fmt.Errorf(`catalog: invalid embedded default: %w`, err))
	}
	return c
}

// DefaultGeometry returns the geometry of the default catalog.
func DefaultGeometry() Geometry {
	return Default().Geometry()
}

// Load decodes and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var file fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf(`catalog: decode: %w`, err)
	}

	var descriptors []Descriptor
	for _, group := range file.Members {
		for _, object := range group.Objects {
			for _, property := range group.Properties {
				descriptors = append(descriptors, Member(group.Category, object, property))
			}
		}
	}
	for _, fn := range file.Functions {
		descriptors = append(descriptors, Function(fn.Category, fn.Path))
	}

	var geometry Geometry
	if file.Geometry != nil {
		geometry = *file.Geometry
	}

	return New(descriptors, geometry)
}

// LoadFile is a convenience wrapper around [Load].
func LoadFile(name string) (*Catalog, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// New validates and copies the given descriptors and geometry. Binding paths
// must be unique, as must geometry paths. A zero geometry limit is replaced
// with [DefaultGeometryLimit].
func New(descriptors []Descriptor, geometry Geometry) (*Catalog, error) {
	var errs []error
	seen := make(map[string]struct{}, len(descriptors)+len(geometry.Properties))

	for _, d := range descriptors {
		if !d.Category().Valid() {
			errs = append(errs, fmt.Errorf(`%w: %d (%s)`, ErrUnknownCategory, d.category, d.BindingPath()))
			continue
		}
		if !validPath(d.BindingPath()) {
			errs = append(errs, fmt.Errorf(`%w: %q`, ErrInvalidPath, d.BindingPath()))
			continue
		}
		if _, ok := seen[d.BindingPath()]; ok {
			errs = append(errs, fmt.Errorf(`%w: %s`, ErrDuplicatePath, d.BindingPath()))
			continue
		}
		seen[d.BindingPath()] = struct{}{}
	}

	if geometry.Limit < 0 {
		errs = append(errs, fmt.Errorf(`catalog: negative geometry limit: %d`, geometry.Limit))
	} else if geometry.Limit == 0 {
		geometry.Limit = DefaultGeometryLimit
	}
	for _, p := range geometry.Properties {
		if !validPath(p.Path) || !validPath(p.Source) {
			errs = append(errs, fmt.Errorf(`%w: geometry %q <- %q`, ErrInvalidPath, p.Path, p.Source))
			continue
		}
		if _, ok := seen[p.Path]; ok {
			errs = append(errs, fmt.Errorf(`%w: %s`, ErrDuplicatePath, p.Path))
			continue
		}
		seen[p.Path] = struct{}{}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Catalog{
		descriptors: append([]Descriptor(nil), descriptors...),
		geometry: Geometry{
			Properties: append([]GeometryProperty(nil), geometry.Properties...),
			Limit:      geometry.Limit,
		},
	}, nil
}

// Descriptors returns a copy of the descriptors, in catalog order.
func (x *Catalog) Descriptors() []Descriptor {
	return append([]Descriptor(nil), x.descriptors...)
}

// Geometry returns a copy of the geometry configuration.
func (x *Catalog) Geometry() Geometry {
	return Geometry{
		Properties: append([]GeometryProperty(nil), x.geometry.Properties...),
		Limit:      x.geometry.Limit,
	}
}

// MarshalYAML implements [yaml.Marshaler], producing the same format
// accepted by [Load]. Member descriptors are emitted one group per object.
func (x *Catalog) MarshalYAML() (any, error) {
	var file fileFormat
	for _, d := range x.descriptors {
		if d.IsTopLevelFunction() {
			file.Functions = append(file.Functions, functionItem{Category: d.category, Path: d.path})
			continue
		}
		if n := len(file.Members); n != 0 &&
			file.Members[n-1].Category == d.category &&
			len(file.Members[n-1].Objects) == 1 &&
			file.Members[n-1].Objects[0] == d.object {
			file.Members[n-1].Properties = append(file.Members[n-1].Properties, d.property)
			continue
		}
		file.Members = append(file.Members, memberGroup{
			Category:   d.category,
			Objects:    []string{d.object},
			Properties: []string{d.property},
		})
	}
	g := x.Geometry()
	file.Geometry = &g
	return file, nil
}

func validPath(path string) bool {
	if path == `` {
		return false
	}
	for _, segment := range strings.Split(path, `.`) {
		if segment == `` || strings.TrimSpace(segment) != segment {
			return false
		}
	}
	return true
}
