package identity

import (
	"regexp"
	"strings"
)

// DefaultHandlePrefix is prepended to row ids to mint system handles.
const DefaultHandlePrefix = "https://endorser.ch/entity/"

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// Handles classifies and mints handles.
type Handles struct {
	Prefix string
}

func NewHandles(prefix string) Handles {
	if prefix == "" {
		prefix = DefaultHandlePrefix
	}
	return Handles{Prefix: prefix}
}

// Mint returns the system handle for a new row.
func (h Handles) Mint(rowID string) string {
	return h.Prefix + rowID
}

// IsSystem reports whether id was (or claims to be) minted here.
func (h Handles) IsSystem(id string) bool {
	return strings.HasPrefix(id, h.Prefix)
}

// IsGlobal reports whether id is a URI with a scheme (a DID, a URL, ...).
func (h Handles) IsGlobal(id string) bool {
	return schemePattern.MatchString(id)
}

// IsLocal reports whether id is a bare local-style identifier.
func (h Handles) IsLocal(id string) bool {
	return id != "" && !h.IsGlobal(id)
}

// Canonical maps a local-style identifier to the system handle it would
// name; other identifiers are returned unchanged.
func (h Handles) Canonical(id string) string {
	if h.IsLocal(id) {
		return h.Prefix + id
	}
	return id
}
