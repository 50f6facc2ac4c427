// Package entity implements the Cedar entity-UID builder: splitting
// the wire-format "TYPE::"ID"" string into a typed UID and assembling
// entity records for evaluation.
package entity

import (
	"errors"
	"strings"
)

// ErrInvalidUID is returned when a UID string does not match the
// TYPE::"ID" grammar.
var ErrInvalidUID = errors.New("invalid uid")

// UID is the split form of a Cedar entity identifier.
type UID struct {
	Type string
	ID   string
}

// String renders UID back to its canonical TYPE::"ID" wire form.
func (u UID) String() string {
	return u.Type + `::"` + u.ID + `"`
}

// ParseUID splits "TYPE::"ID"" into (type, id), tolerating surrounding
// whitespace around the "::" separator and around the quoted id.
// Returns ErrInvalidUID for anything else.
func ParseUID(raw string) (UID, error) {
	s := strings.TrimSpace(raw)

	idx := strings.Index(s, "::")
	if idx < 0 {
		return UID{}, ErrInvalidUID
	}

	typ := strings.TrimSpace(s[:idx])
	rest := strings.TrimSpace(s[idx+2:])

	if typ == "" || len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return UID{}, ErrInvalidUID
	}

	id := rest[1 : len(rest)-1]
	if strings.ContainsAny(typ, `"`) || id == "" {
		return UID{}, ErrInvalidUID
	}

	return UID{Type: typ, ID: id}, nil
}

// Record is a single entity record ready for evaluation: a UID plus its
// attributes. It has no parent list (entity hierarchies are never
// populated here).
type Record struct {
	UID   UID
	Attrs map[string]any
}

// Build assembles a Record for uid and attrs. attrs may be nil; Build
// normalizes it to an empty map so downstream JSON/Cedar encoding never
// has to special-case nil.
func Build(raw string, attrs map[string]any) (Record, error) {
	uid, err := ParseUID(raw)
	if err != nil {
		return Record{}, err
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return Record{UID: uid, Attrs: attrs}, nil
}
