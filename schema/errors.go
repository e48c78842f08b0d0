package schema

import "errors"

// ErrInvalidRegistry is returned by Build when a declaration cannot be
// resolved. It is a configuration error and should stop startup.
var ErrInvalidRegistry = errors.New("hyperbatch/schema: invalid registry")

// ErrUnknownAttribute is returned at render time when an entity view does not
// expose an attribute a template or value reads.
var ErrUnknownAttribute = errors.New("hyperbatch/schema: unknown attribute")

// ErrAttributeType is returned when an attribute has a type the reading
// combinator cannot handle, e.g. AttrTrue over a string.
var ErrAttributeType = errors.New("hyperbatch/schema: unexpected attribute type")

// IsInvalidRegistryErr returns true if err is or wraps ErrInvalidRegistry.
func IsInvalidRegistryErr(err error) bool {
	return errors.Is(err, ErrInvalidRegistry)
}

// IsUnknownAttributeErr returns true if err is or wraps ErrUnknownAttribute.
func IsUnknownAttributeErr(err error) bool {
	return errors.Is(err, ErrUnknownAttribute)
}

// IsAttributeTypeErr returns true if err is or wraps ErrAttributeType.
func IsAttributeTypeErr(err error) bool {
	return errors.Is(err, ErrAttributeType)
}
