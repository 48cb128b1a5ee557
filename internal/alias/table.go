// Package alias maps concrete contract codes to their logical alias codes.
//
// The settings document lists aliases as alias -> contract; recording looks up in
// the opposite direction, contract -> alias. New performs that inversion once at
// load time and the Table is read-only afterwards.
package alias

import (
	"errors"
	"fmt"

	"datarecorder/internal/config"
	"datarecorder/internal/utils"
)

// ErrConflict indicates alias entries that cannot be inverted unambiguously.
var ErrConflict = errors.New("conflicting alias entries")

// Table resolves a concrete instrument code to its alias code.
type Table struct {
	byContract map[string]string
}

// New builds a Table from alias -> contract entries.
func New(entries []config.AliasEntry) (*Table, error) {
	byContract := make(map[string]string, len(entries))
	aliases := make(map[string]string, len(entries))

	for _, e := range entries {
		if err := utils.ValidateCode(e.Alias); err != nil {
			return nil, fmt.Errorf("alias %q: %w", e.Alias, err)
		}
		if err := utils.ValidateCode(e.Contract); err != nil {
			return nil, fmt.Errorf("contract %q: %w", e.Contract, err)
		}
		if e.Alias == e.Contract {
			return nil, fmt.Errorf("%w: %q aliases itself", ErrConflict, e.Alias)
		}
		if prev, ok := aliases[e.Alias]; ok {
			return nil, fmt.Errorf("%w: alias %q maps to both %q and %q", ErrConflict, e.Alias, prev, e.Contract)
		}
		if prev, ok := byContract[e.Contract]; ok {
			return nil, fmt.Errorf("%w: contract %q claimed by both %q and %q", ErrConflict, e.Contract, prev, e.Alias)
		}
		aliases[e.Alias] = e.Contract
		byContract[e.Contract] = e.Alias
	}

	return &Table{byContract: byContract}, nil
}

// Resolve returns the alias for code. A code without an alias is the common case
// and is not an error.
func (t *Table) Resolve(code string) (string, bool) {
	if t == nil {
		return "", false
	}
	a, ok := t.byContract[code]
	return a, ok
}

// Len returns the number of aliased contracts.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byContract)
}
