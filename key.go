package buildcache

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// tokenSeparator joins key tokens. Values are not escaped: a value that
// itself contains "|name=" can produce the same joined string as two
// separate fields. Keys stay comparable with existing caches this way.
const tokenSeparator = "|"

// Key is the hex-encoded SHA-256 digest identifying one cache entry.
type Key string

// String returns the key as a hex string.
func (k Key) String() string {
	return string(k)
}

// Digest returns the key as an algorithm-prefixed digest ("sha256:<hex>").
func (k Key) Digest() digest.Digest {
	return digest.NewDigestFromEncoded(digest.SHA256, string(k))
}

// KeyBuilder collects name=value tokens in insertion order.
// Empty values are dropped so an unset field and a missing field hash the same.
type KeyBuilder struct {
	tokens  []string
	skipped []string // fields dropped because they could not be encoded
}

// NewKeyBuilder returns an empty KeyBuilder.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{}
}

// String appends name=value when value is not empty.
func (kb *KeyBuilder) String(name, value string) *KeyBuilder {
	if value == "" {
		return kb
	}
	kb.tokens = append(kb.tokens, name+"="+value)
	return kb
}

// Bool appends name=true when value is set.
func (kb *KeyBuilder) Bool(name string, value bool) *KeyBuilder {
	if !value {
		return kb
	}
	return kb.String(name, strconv.FormatBool(value))
}

// JSON appends name=<json> for a non-nil value.
// A value that cannot be encoded is skipped; the builder never fails.
func (kb *KeyBuilder) JSON(name string, value any) *KeyBuilder {
	if value == nil {
		return kb
	}
	data, err := json.Marshal(value)
	if err != nil {
		kb.skipped = append(kb.skipped, name)
		return kb
	}
	if string(data) == "null" {
		return kb
	}
	return kb.String(name, string(data))
}

// Tokens returns a copy of the collected tokens in order.
func (kb *KeyBuilder) Tokens() []string {
	return append([]string(nil), kb.tokens...)
}

// Skipped returns the names of fields that were dropped because encoding failed.
func (kb *KeyBuilder) Skipped() []string {
	return append([]string(nil), kb.skipped...)
}

// Build joins the tokens and digests them.
func (kb *KeyBuilder) Build() Key {
	joined := strings.Join(kb.tokens, tokenSeparator)
	return Key(digest.SHA256.FromString(joined).Encoded())
}

// keyBuilder fills a KeyBuilder from cfg. The order of calls is part of the key.
func keyBuilder(cfg Config) *KeyBuilder {
	kb := NewKeyBuilder().
		String("repository", cfg.Repository).
		String("tagName", cfg.TagName).
		Bool("bundleParser", cfg.BundleParser).
		Bool("disableTryIt", cfg.DisableTryIt).
		Bool("disableCodeEditor", cfg.DisableCodeEditor).
		Bool("disableMarkdown", cfg.DisableMarkdown).
		String("theme", cfg.Theme)
	if len(cfg.Attributes) > 0 {
		kb.JSON("attributes", cfg.Attributes)
	}
	return kb
}

// DeriveKey computes the cache key for cfg.
// Fields outside the key set (OutputDir, Verbose, DisableCache, Platform) are ignored.
// Values are written raw, so a field value containing "|" followed by another
// field's token collides with the config that sets both fields.
func DeriveKey(cfg Config) Key {
	return keyBuilder(cfg).Build()
}
