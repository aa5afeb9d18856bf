package device

import (
	"fmt"
	"strings"

	"github.com/cornelk/hashmap"
)

// AliasTable is a concurrent address -> alias map usable as an AliasResolver.
// Addresses are matched case-insensitively.
type AliasTable struct {
	aliases *hashmap.Map[string, string]
}

// NewAliasTable creates an alias table seeded with the given entries
func NewAliasTable(entries map[string]string) *AliasTable {
	t := &AliasTable{aliases: hashmap.New[string, string]()}
	for addr, alias := range entries {
		t.Set(addr, alias)
	}
	return t
}

// Set stores or replaces the alias for an address; a blank alias removes it
func (t *AliasTable) Set(address, alias string) {
	key := normalizeAddress(address)
	if strings.TrimSpace(alias) == "" {
		t.aliases.Del(key)
		return
	}
	t.aliases.Set(key, alias)
}

// Len returns the number of aliases
func (t *AliasTable) Len() int {
	return t.aliases.Len()
}

// Alias implements AliasResolver
func (t *AliasTable) Alias(address string) (string, error) {
	if alias, ok := t.aliases.Get(normalizeAddress(address)); ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %s", ErrAliasUnavailable, address)
}

func normalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
