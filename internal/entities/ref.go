package entities

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Ref identifies a record by its type and id.
// Example: agent:5
// The engine never owns the record itself; it only holds references.
type Ref struct {
	Type string
	ID   int64
}

// String returns the canonical form "type:id".
func (r Ref) String() string {
	return r.Type + ":" + strconv.FormatInt(r.ID, 10)
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

// ParseRef parses the canonical "type:id" form.
func ParseRef(s string) (Ref, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Ref{}, errors.Newf("malformed record reference: %q", s)
	}
	id, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return Ref{}, errors.Wrapf(err, "malformed record reference: %q", s)
	}
	return Ref{Type: s[:idx], ID: id}, nil
}
