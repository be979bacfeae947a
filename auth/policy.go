package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("missing or invalid bearer credential")
	ErrForbidden        = errors.New("forbidden")
	ErrUnknownOperation = errors.New("unknown operation")
)

const (
	ScopePrefix = "SCOPE_"
	RolePrefix  = "ROLE_"
)

// Operation identifies a guarded action.
type Operation string

const (
	OpReadThief   Operation = "read-thief-balance"
	OpReadHolder  Operation = "read-holder-balance"
	OpTransfer    Operation = "transfer"
	OpAuthorities Operation = "authorities"
)

// Role and Scope build capability tags.
func Role(name string) string  { return RolePrefix + name }
func Scope(name string) string { return ScopePrefix + name }

// Policy maps each operation to the capability tag it requires. An empty
// requirement admits any verified principal.
type Policy struct {
	requirements map[Operation]string
}

// DefaultPolicy is the canonical cave policy.
func DefaultPolicy() Policy {
	return NewPolicy(map[Operation]string{
		OpReadThief:   Role("treasure-hunter"),
		OpReadHolder:  Scope("see:holder-treasure"),
		OpTransfer:    Scope("take:thief-treasure"),
		OpAuthorities: "",
	})
}

func NewPolicy(requirements map[Operation]string) Policy {
	copied := make(map[Operation]string, len(requirements))
	for op, tag := range requirements {
		copied[op] = tag
	}
	return Policy{requirements: copied}
}

// Requirement returns the tag op needs.
func (p Policy) Requirement(op Operation) (string, bool) {
	tag, ok := p.requirements[op]
	return tag, ok
}

// Authorize allows op when the capability set holds its required tag.
func (p Policy) Authorize(op Operation, capabilities []string) error {
	required, ok := p.requirements[op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	if required == "" {
		return nil
	}
	for _, tag := range capabilities {
		if tag == required {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, op, required)
}
