package hyperbatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/schema"
)

func TestCacheKey(t *testing.T) {
	e := &hyperbatch.Entity{ID: 42, Checksum: "9f86d08"}
	base := hyperbatch.KeyContext{
		Kind:         "WorkPackage",
		Locale:       "de",
		Granted:      []string{"edit_work_packages", "view_work_packages"},
		Settings:     schema.Settings{"feeds_enabled": "1", "work_package_done_ratio": "field"},
		SettingNames: []string{"feeds_enabled", "work_package_done_ratio"},
	}

	t.Run("parts", func(t *testing.T) {
		assert.Equal(t, []string{
			"WorkPackage", "json", "de", "42-9f86d08",
			"perms=edit_work_packages,view_work_packages",
			"feeds_enabled=1", "work_package_done_ratio=field",
		}, hyperbatch.CacheKey(e, base).Parts())
	})

	t.Run("admin flag only when sensitive", func(t *testing.T) {
		kc := base
		kc.Admin = true
		assert.Equal(t, hyperbatch.CacheKey(e, base).String(), hyperbatch.CacheKey(e, kc).String())

		kc.AdminSensitive = true
		assert.Contains(t, hyperbatch.CacheKey(e, kc).Parts(), "admin=true")
	})

	tests := []struct {
		name   string
		mutate func(*hyperbatch.Entity, *hyperbatch.KeyContext)
	}{
		{"locale", func(_ *hyperbatch.Entity, kc *hyperbatch.KeyContext) { kc.Locale = "en" }},
		{"checksum", func(e *hyperbatch.Entity, _ *hyperbatch.KeyContext) { e.Checksum = "other" }},
		{"grants", func(_ *hyperbatch.Entity, kc *hyperbatch.KeyContext) { kc.Granted = kc.Granted[1:] }},
		{"setting", func(_ *hyperbatch.Entity, kc *hyperbatch.KeyContext) {
			kc.Settings = schema.Settings{"feeds_enabled": "0", "work_package_done_ratio": "field"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name+" changes key", func(t *testing.T) {
			e2 := *e
			kc := base
			tt.mutate(&e2, &kc)
			assert.NotEqual(t, hyperbatch.CacheKey(e, base).String(), hyperbatch.CacheKey(&e2, kc).String())
			assert.NotEqual(t, hyperbatch.CacheKey(e, base).Digest(), hyperbatch.CacheKey(&e2, kc).Digest())
		})
	}

	t.Run("unread settings do not matter", func(t *testing.T) {
		kc := base
		kc.Settings = schema.Settings{"feeds_enabled": "1", "work_package_done_ratio": "field", "unrelated": "x"}
		assert.Equal(t, hyperbatch.CacheKey(e, base).String(), hyperbatch.CacheKey(e, kc).String())
	})

	t.Run("digest is stable hex", func(t *testing.T) {
		d := hyperbatch.CacheKey(e, base).Digest()
		assert.Len(t, d, 64)
		assert.Equal(t, d, hyperbatch.CacheKey(e, base).Digest())
	})
}
