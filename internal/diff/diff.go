// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strings"
)

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type op struct {
	kind opKind
	text string
}

// Engine produces unified diffs between two byte contents.
type Engine struct {
	contextLines int
}

// NewEngine creates a diff engine with the given number of context lines.
func NewEngine(contextLines int) *Engine {
	return &Engine{contextLines: contextLines}
}

// Unified renders a unified diff of old against new, labeled with the given
// file headers. Identical contents produce an empty string.
func (e *Engine) Unified(oldContent, newContent []byte, fromLabel, toLabel string) string {
	if bytes.Equal(oldContent, newContent) {
		return ""
	}

	ops := e.script(splitLines(oldContent), splitLines(newContent))

	var buf strings.Builder
	fmt.Fprintf(&buf, "--- %s\n", fromLabel)
	fmt.Fprintf(&buf, "+++ %s\n", toLabel)

	for _, h := range e.hunks(ops) {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, o := range h.ops {
			switch o.kind {
			case opDelete:
				buf.WriteString("-")
			case opInsert:
				buf.WriteString("+")
			default:
				buf.WriteString(" ")
			}
			buf.WriteString(o.text)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

func splitLines(content []byte) []string {
	trimmed := bytes.TrimSuffix(content, []byte{'\n'})
	if len(trimmed) == 0 {
		return nil
	}
	return strings.Split(string(trimmed), "\n")
}

// script computes the edit script via a longest-common-subsequence matrix.
func (e *Engine) script(oldLines, newLines []string) []op {
	m, n := len(oldLines), len(newLines)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldLines[i-1] == newLines[j-1] {
				lcs[i][j] = lcs[i-1][j-1] + 1
			} else if lcs[i-1][j] >= lcs[i][j-1] {
				lcs[i][j] = lcs[i-1][j]
			} else {
				lcs[i][j] = lcs[i][j-1]
			}
		}
	}

	var ops []op
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			ops = append(ops, op{opEqual, oldLines[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			ops = append(ops, op{opInsert, newLines[j-1]})
			j--
		default:
			ops = append(ops, op{opDelete, oldLines[i-1]})
			i--
		}
	}

	// Reverse into forward order.
	for a, b := 0, len(ops)-1; a < b; a, b = a+1, b-1 {
		ops[a], ops[b] = ops[b], ops[a]
	}
	return ops
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []op
}

// hunks groups changed ops with surrounding context, merging groups whose
// gap is within twice the context width.
func (e *Engine) hunks(ops []op) []hunk {
	var hunks []hunk

	i := 0
	oldLine, newLine := 1, 1
	for i < len(ops) {
		if ops[i].kind == opEqual {
			oldLine++
			newLine++
			i++
			continue
		}

		// Found a change; back up for leading context.
		start := i
		context := 0
		for start > 0 && ops[start-1].kind == opEqual && context < e.contextLines {
			start--
			context++
		}

		h := hunk{
			oldStart: oldLine - context,
			newStart: newLine - context,
		}

		// Extend through subsequent changes separated by small equal runs.
		end := i
		for end < len(ops) {
			if ops[end].kind != opEqual {
				end++
				continue
			}
			run := 0
			for end+run < len(ops) && ops[end+run].kind == opEqual {
				run++
			}
			if end+run >= len(ops) || run > 2*e.contextLines {
				end += min(run, e.contextLines)
				break
			}
			end += run
		}

		for _, o := range ops[start:end] {
			h.ops = append(h.ops, o)
			switch o.kind {
			case opEqual:
				h.oldCount++
				h.newCount++
			case opDelete:
				h.oldCount++
			case opInsert:
				h.newCount++
			}
		}
		hunks = append(hunks, h)

		for ; i < end; i++ {
			switch ops[i].kind {
			case opEqual:
				oldLine++
				newLine++
			case opDelete:
				oldLine++
			case opInsert:
				newLine++
			}
		}
	}

	return hunks
}
