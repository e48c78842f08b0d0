package hyperbatch_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hyperbatch"
)

func TestDocument_Order(t *testing.T) {
	doc := hyperbatch.NewDocument()
	doc.Set("_type", "WorkPackage")
	doc.Set("zeta", 1)
	doc.Set("alpha", 2)
	doc.Links().Set("self", hyperbatch.Link{Href: "/x"})
	doc.Set("zeta", 3)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"_type":"WorkPackage","zeta":3,"alpha":2,"_links":{"self":{"href":"/x"}}}`, string(b))
}

func TestDocument_Clone(t *testing.T) {
	doc := hyperbatch.NewDocument()
	doc.Set("a", 1)
	doc.Links().Set("self", hyperbatch.Link{Href: "/x"})

	clone := doc.Clone()
	clone.Set("a", 2)
	clone.Links().Delete("self")

	v, _ := doc.Get("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"self"}, doc.Links().Keys(), "nested documents are copied")
}

func TestNullableRef_JSON(t *testing.T) {
	b, err := json.Marshal(hyperbatch.NullableRef{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"href": null, "title": null}`, string(b))
}

func TestLink_OmitsEmpty(t *testing.T) {
	payload := hyperbatch.NewDocument()
	payload.Set("lockVersion", 3)
	b, err := json.Marshal(hyperbatch.Link{Href: "/x", Method: "post", Payload: payload})
	require.NoError(t, err)
	assert.JSONEq(t, `{"href": "/x", "method": "post", "payload": {"lockVersion": 3}}`, string(b))
}
