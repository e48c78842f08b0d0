package hyperbatch

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pthm/hyperbatch/schema"
)

// Document is a JSON object that keeps keys in insertion order, so rendered
// output follows registry declaration order and is stable across calls.
type Document struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewDocument returns an empty document. An empty document is also what
// missing and invisible entities render as.
func NewDocument() *Document {
	return &Document{fields: orderedmap.New[string, any]()}
}

// Set stores v under key. Setting an existing key keeps its position.
func (d *Document) Set(key string, v any) {
	d.fields.Set(key, v)
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	return d.fields.Get(key)
}

// Delete removes key.
func (d *Document) Delete(key string) {
	d.fields.Delete(key)
}

// Len returns the number of keys.
func (d *Document) Len() int {
	return d.fields.Len()
}

// Keys returns the keys in order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Links returns the _links sub-document, creating it at the current end of
// the document if absent.
func (d *Document) Links() *Document {
	if v, ok := d.fields.Get("_links"); ok {
		if links, ok := v.(*Document); ok {
			return links
		}
	}
	links := NewDocument()
	d.fields.Set("_links", links)
	return links
}

// Clone returns a deep copy. Nested documents are copied; other values are
// treated as immutable.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if nested, ok := pair.Value.(*Document); ok {
			out.fields.Set(pair.Key, nested.Clone())
			continue
		}
		out.fields.Set(pair.Key, pair.Value)
	}
	return out
}

// stripNulls removes keys whose value is nil.
func (d *Document) stripNulls() {
	var drop []string
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value == nil {
			drop = append(drop, pair.Key)
		}
	}
	for _, k := range drop {
		d.fields.Delete(k)
	}
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.fields.MarshalJSON()
}

// Link is a rendered action link. Empty optional fields are omitted.
type Link struct {
	Href      string        `json:"href"`
	Title     string        `json:"title,omitempty"`
	Method    schema.Method `json:"method,omitempty"`
	Type      string        `json:"type,omitempty"`
	Templated bool          `json:"templated,omitempty"`
	Payload   *Document     `json:"payload,omitempty"`
}

// Ref is a reference to another entity in a hierarchy list.
type Ref struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

// NullableRef is a single-entity link that renders {"href": null, "title":
// null} when the target is unset or invisible, so the key is never missing.
type NullableRef struct {
	Href  *string `json:"href"`
	Title *string `json:"title"`
}

// refOf converts an optional Ref to its single-link form.
func refOf(r *Ref) NullableRef {
	if r == nil {
		return NullableRef{}
	}
	href, title := r.Href, r.Title
	return NullableRef{Href: &href, Title: &title}
}
