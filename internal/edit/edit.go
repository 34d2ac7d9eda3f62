// Package edit applies structural range replacements to line-oriented documents.
package edit

import "errors"

// ErrOutOfRange reports an op whose rows lie past the end-of-file sentinel
// or whose coordinates are negative.
var ErrOutOfRange = errors.New("edit: position out of range")

// Position addresses a byte offset within a zero-based row.
type Position struct {
	Row int `json:"row" validate:"min=0"`
	Col int `json:"col" validate:"min=0"`
}

// Op replaces the text spanning Start to End with Text. End's row is included
// unless it equals the line count.
type Op struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
	Text  []string `json:"text"`
}

// Check reports why op cannot be applied to a document with lineCount lines.
// Every op is accepted against an empty document. Inverted ranges are spliced
// as given: the prefix ends at Start and the suffix begins at End.
func Check(lineCount int, op Op) error {
	if lineCount == 0 {
		return nil
	}
	if op.Start.Row < 0 || op.Start.Col < 0 || op.End.Row < 0 || op.End.Col < 0 {
		return ErrOutOfRange
	}
	if op.Start.Row > lineCount || op.End.Row > lineCount {
		return ErrOutOfRange
	}
	return nil
}

// Apply returns the document produced by applying op to lines. Rejected ops
// return an unchanged copy. The input slice is never modified.
func Apply(lines []string, op Op) []string {
	if len(lines) == 0 {
		return cloneLines(op.Text)
	}
	if Check(len(lines), op) != nil {
		return cloneLines(lines)
	}

	count := len(lines)
	row := func(i int) string {
		if i >= count {
			return ""
		}
		return lines[i]
	}

	startRow := row(op.Start.Row)
	prefix := startRow[:min(op.Start.Col, len(startRow))]

	suffix := ""
	if op.End.Row < count {
		endRow := lines[op.End.Row]
		if op.End.Col <= len(endRow) {
			suffix = endRow[op.End.Col:]
		}
	}

	var replacement []string
	switch k := len(op.Text); k {
	case 0:
		replacement = []string{prefix + suffix}
	case 1:
		replacement = []string{prefix + op.Text[0] + suffix}
	default:
		replacement = make([]string, 0, k)
		replacement = append(replacement, prefix+op.Text[0])
		replacement = append(replacement, op.Text[1:k-1]...)
		replacement = append(replacement, op.Text[k-1]+suffix)
	}

	hi := count
	if op.End.Row < count {
		hi = op.End.Row + 1
	}

	out := make([]string, 0, op.Start.Row+len(replacement)+count-hi)
	out = append(out, lines[:op.Start.Row]...)
	out = append(out, replacement...)
	out = append(out, lines[hi:]...)
	return out
}

func cloneLines(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}
