package catalog

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category classifies a fingerprinting surface. Its string form is the type
// carried by block reports.
type Category int

const (
	categoryUnknown Category = iota
	Canvas
	WebGL
	Audio
	WebRTC
)

// Descriptor names a single interceptable surface. It is immutable, see
// [Member] and [Function].
type Descriptor struct {
	object   string
	property string
	path     string
	category Category
}

// Member describes object.prototype.property, e.g. the getImageData method
// of CanvasRenderingContext2D.
func Member(category Category, object, property string) Descriptor {
	return Descriptor{
		category: category,
		object:   object,
		property: property,
		path:     object + `.prototype.` + property,
	}
}

// Function describes a bare path to a function, which is rebound without
// touching any prototype, e.g. navigator.mediaDevices.enumerateDevices.
func Function(category Category, path string) Descriptor {
	return Descriptor{
		category: category,
		path:     path,
	}
}

// Category is the reported type of calls to this descriptor.
func (d Descriptor) Category() Category { return d.category }

// BindingPath is the dotted path of the rebound member.
func (d Descriptor) BindingPath() string { return d.path }

// IsTopLevelFunction is true for descriptors created by [Function].
func (d Descriptor) IsTopLevelFunction() bool { return d.object == `` && d.property == `` }

// Object returns the object name of a member descriptor.
func (d Descriptor) Object() string { return d.object }

// Property returns the property name of a member descriptor.
func (d Descriptor) Property() string { return d.property }

// String renders the category and binding path.
func (d Descriptor) String() string {
	return d.category.String() + `:` + d.path
}

// ParseCategory parses the (case-insensitive) name of a category. Both
// "Audio" and the reported form "AudioContext" are accepted.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case `canvas`:
		return Canvas, nil
	case `webgl`:
		return WebGL, nil
	case `audio`, `audiocontext`:
		return Audio, nil
	case `webrtc`:
		return WebRTC, nil
	default:
		return categoryUnknown, fmt.Errorf(`%w: %q`, ErrUnknownCategory, s)
	}
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return c >= Canvas && c <= WebRTC
}

// String is the type reported for blocked calls, e.g. AudioContext.
func (c Category) String() string {
	switch c {
	case Canvas:
		return `Canvas`
	case WebGL:
		return `WebGL`
	case Audio:
		return `AudioContext`
	case WebRTC:
		return `WebRTC`
	default:
		return fmt.Sprintf(`Category(%d)`, int(c))
	}
}

// MarshalYAML implements [yaml.Marshaler].
func (c Category) MarshalYAML() (any, error) {
	if !c.Valid() {
		return nil, fmt.Errorf(`%w: %d`, ErrUnknownCategory, int(c))
	}
	return c.String(), nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseCategory(s)
	if err != nil {
		return fmt.Errorf(`line %d: %w`, value.Line, err)
	}
	*c = v
	return nil
}
