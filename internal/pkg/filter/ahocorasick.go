// Package filter matches text against a blocklist with an Aho-Corasick
// automaton, after normalizing away the usual evasion tricks (case,
// diacritics, leetspeak).
package filter

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pattern is one blocklist entry.
type Pattern struct {
	Word     string
	Category string
	Score    float64
}

// Match is one blocklist hit. Position is the rune offset of the first
// matched rune in the normalized text.
type Match struct {
	Word     string
	Position int
	Category string
	Score    float64
}

type node struct {
	children map[rune]*node
	fail     *node
	output   []Pattern
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Matcher is an immutable Aho-Corasick automaton over a set of patterns.
// Build it once with New; Search is safe for concurrent use.
type Matcher struct {
	root *node
}

// New builds a matcher from the given patterns. Pattern words are
// normalized the same way searched text is, so "BädW0rd" in a pattern and
// in input meet in the middle.
func New(patterns []Pattern) *Matcher {
	m := &Matcher{root: newNode()}
	for _, p := range patterns {
		m.insert(p)
	}
	m.linkFailures()
	return m
}

func (m *Matcher) insert(p Pattern) {
	n := m.root
	for _, r := range Normalize(p.Word) {
		child, ok := n.children[r]
		if !ok {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	n.output = append(n.output, p)
}

// linkFailures wires the fail links breadth-first, merging each node's
// output with its fail target so suffix matches surface too.
func (m *Matcher) linkFailures() {
	queue := make([]*node, 0, len(m.root.children))
	for _, child := range m.root.children {
		child.fail = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for r, child := range current.children {
			queue = append(queue, child)

			f := current.fail
			for f != nil && f.children[r] == nil {
				f = f.fail
			}
			if f == nil {
				child.fail = m.root
			} else {
				child.fail = f.children[r]
				child.output = append(child.output, child.fail.output...)
			}
		}
	}
}

// Search returns every pattern occurrence in text, in document order.
func (m *Matcher) Search(text string) []Match {
	matches := make([]Match, 0)
	n := m.root
	position := 0

	for _, r := range Normalize(text) {
		for n != nil && n.children[r] == nil {
			n = n.fail
		}
		if n == nil {
			n = m.root
		} else {
			n = n.children[r]
		}

		for _, p := range n.output {
			matches = append(matches, Match{
				Word:     p.Word,
				Position: position - len([]rune(p.Word)) + 1,
				Category: p.Category,
				Score:    p.Score,
			})
		}
		position++
	}

	return matches
}

var leetRunes = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
}

// Normalize prepares text for matching: strip diacritics, lowercase and
// fold common leetspeak substitutions.
func Normalize(text string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	stripped, _, _ := transform.String(t, text)

	out := make([]rune, 0, len(stripped))
	for _, r := range stripped {
		r = unicode.ToLower(r)
		if folded, ok := leetRunes[r]; ok {
			r = folded
		}
		out = append(out, r)
	}
	return string(out)
}
