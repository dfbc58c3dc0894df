// Package diff compares two DDL scripts statement by statement.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/cbergoon/merkletree"
)

// ChangeKind classifies a difference between two scripts.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Change is one keyed statement that differs. Previous is empty for
// additions and Next is empty for removals.
type Change struct {
	Kind     ChangeKind
	Key      string
	Previous string
	Next     string
}

// Result holds the changes between two scripts and the merkle roots of
// their normalized statements.
type Result struct {
	Changes      []Change
	PreviousRoot string
	NextRoot     string
	Drift        bool
}

// Entry is a normalized statement and the key used to match it.
type Entry struct {
	Key  string
	Text string
}

// Statements normalizes ddl and keys each statement by the object it
// defines. Statements sharing a key get a "#n" suffix in order of
// appearance.
func Statements(ddl string) []Entry {
	stmts := Normalize(ddl)
	entries := make([]Entry, 0, len(stmts))
	seen := make(map[string]int, len(stmts))
	for _, text := range stmts {
		key := statementKey(text)
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		entries = append(entries, Entry{Key: key, Text: text})
	}
	return entries
}

func statementKey(text string) string {
	stmt, err := parseStatement(text)
	if err != nil {
		return text
	}
	switch {
	case stmt.Create != nil:
		c := stmt.Create
		kind := strings.ToLower(c.Kind)
		if kind == "policy" {
			return "policy:" + c.On.String() + "." + c.Name.String()
		}
		return kind + ":" + c.Name.String()
	case stmt.Alter != nil:
		if stmt.Alter.Constraint != nil {
			return "constraint:" + stmt.Alter.Table.String() + "." + stmt.Alter.Constraint.String()
		}
		return "alter:" + text
	case stmt.Comment != nil:
		return "comment:" + strings.ToLower(stmt.Comment.Object) + ":" + stmt.Comment.Name.String()
	}
	return text
}

// Compare reports how next differs from previous. Additions and changes
// follow the order of next; removals follow the order of previous.
// Reordering statements is not a change.
func Compare(previous, next string) (Result, error) {
	prev := Statements(previous)
	cur := Statements(next)

	prevByKey := make(map[string]string, len(prev))
	for _, e := range prev {
		prevByKey[e.Key] = e.Text
	}
	curKeys := make(map[string]struct{}, len(cur))

	var res Result
	for _, e := range cur {
		curKeys[e.Key] = struct{}{}
		old, ok := prevByKey[e.Key]
		switch {
		case !ok:
			res.Changes = append(res.Changes, Change{Kind: Added, Key: e.Key, Next: e.Text})
		case old != e.Text:
			res.Changes = append(res.Changes, Change{Kind: Changed, Key: e.Key, Previous: old, Next: e.Text})
		}
	}
	for _, e := range prev {
		if _, ok := curKeys[e.Key]; !ok {
			res.Changes = append(res.Changes, Change{Kind: Removed, Key: e.Key, Previous: e.Text})
		}
	}

	var err error
	if res.PreviousRoot, err = Root(prev); err != nil {
		return Result{}, fmt.Errorf("previous script: %w", err)
	}
	if res.NextRoot, err = Root(cur); err != nil {
		return Result{}, fmt.Errorf("next script: %w", err)
	}
	res.Drift = res.PreviousRoot != res.NextRoot
	return res, nil
}

type statementContent struct {
	text string
}

func (c statementContent) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(c.text))
	return h[:], nil
}

func (c statementContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(statementContent)
	if !ok {
		return false, nil
	}
	return c.text == o.text, nil
}

// Root returns the hex merkle root of the entries' normalized text, sorted
// so that statement order does not affect it.
func Root(entries []Entry) (string, error) {
	if len(entries) == 0 {
		return emptyRoot(), nil
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	sort.Strings(texts)

	contents := make([]merkletree.Content, len(texts))
	for i, t := range texts {
		contents[i] = statementContent{text: t}
	}
	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return "", fmt.Errorf("build merkle tree: %w", err)
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}

func emptyRoot() string {
	h := sha256.Sum256([]byte("empty_script"))
	return hex.EncodeToString(h[:])
}
