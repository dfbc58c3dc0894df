package codegen

import (
	"strconv"
	"strings"
)

// derivedName joins parts with "_" into a plain identifier. Characters
// outside [A-Za-z0-9_] become "_" and runs of "_" collapse, so derived
// names never need quoting: fk_billing_Invoice_account_id.
func derivedName(parts ...string) string {
	var b strings.Builder
	prevUnderscore := false
	for i, part := range parts {
		if i > 0 && !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
		for _, r := range part {
			switch {
			case r == '_' || !isNameRune(r):
				if !prevUnderscore && b.Len() > 0 {
					b.WriteByte('_')
					prevUnderscore = true
				}
			default:
				b.WriteRune(r)
				prevUnderscore = false
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "unnamed"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "n_" + name
	}
	return name
}

func isNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// uniqueName returns base, or base with a numeric suffix when an earlier
// derived name already took it.
func uniqueName(base string, used map[string]int) string {
	if _, exists := used[base]; !exists {
		used[base] = 1
		return base
	}
	for i := used[base] + 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if _, exists := used[candidate]; !exists {
			used[base] = i
			used[candidate] = 1
			return candidate
		}
	}
}
