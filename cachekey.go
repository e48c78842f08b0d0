package hyperbatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pthm/hyperbatch/schema"
)

// KeyContext is everything besides the entity that determines the cacheable
// part of a document.
type KeyContext struct {
	Kind   string
	Locale string
	// Granted lists the permissions the viewer holds on the entity's
	// container. Two viewers with the same grants share cache entries.
	Granted []string
	// Admin is included only when AdminSensitive is set, i.e. when the
	// registry has admin-only links.
	Admin          bool
	AdminSensitive bool
	// Settings are the values of the global settings the registry reads.
	Settings     schema.Settings
	SettingNames []string
}

// Key identifies the cacheable part of one rendered document.
type Key struct {
	parts []string
}

// CacheKey derives the cache key for e. Granted and SettingNames are used
// in the order given; callers pass them sorted.
func CacheKey(e *Entity, kc KeyContext) Key {
	parts := make([]string, 0, 6+len(kc.SettingNames))
	parts = append(parts,
		kc.Kind,
		"json",
		kc.Locale,
		e.ID.String()+"-"+e.Checksum,
		"perms="+strings.Join(kc.Granted, ","),
	)
	if kc.AdminSensitive {
		parts = append(parts, "admin="+strconv.FormatBool(kc.Admin))
	}
	for _, name := range kc.SettingNames {
		parts = append(parts, name+"="+kc.Settings[name])
	}
	return Key{parts: parts}
}

// Parts returns a copy of the key components.
func (k Key) Parts() []string {
	return append([]string(nil), k.parts...)
}

// String returns the canonical form of the key.
func (k Key) String() string {
	return strings.Join(k.parts, "/")
}

// Digest returns a fixed-length hex digest of the key for external stores.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}
