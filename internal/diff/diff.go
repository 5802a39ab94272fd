// Package diff computes line-level edit scripts between two texts and renders
// them as a two-column HTML table.
package diff

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type OpKind string

const (
	OpEqual   OpKind = "equal"
	OpReplace OpKind = "replace"
	OpDelete  OpKind = "delete"
	OpInsert  OpKind = "insert"
)

// Op covers a[From1:To1] on the left and b[From2:To2] on the right.
type Op struct {
	Kind  OpKind `json:"kind"`
	From1 int    `json:"from1"`
	To1   int    `json:"to1"`
	From2 int    `json:"from2"`
	To2   int    `json:"to2"`
}

type Result struct {
	// EditCount is the number of non-equal operations.
	EditCount int  `json:"editCount"`
	Ops       []Op `json:"ops"`
}

type Labels struct {
	Title string
	Left  string
	Right string
}

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Lines splits text on "\n". The empty string yields no lines.
func Lines(text string) []string {
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

func (e *Engine) Diff(a, b []string) Result {
	codes := difflib.NewMatcher(a, b).GetOpCodes()
	result := Result{Ops: make([]Op, 0, len(codes))}
	for _, code := range codes {
		op := Op{Kind: kindOf(code.Tag), From1: code.I1, To1: code.I2, From2: code.J1, To2: code.J2}
		if op.Kind != OpEqual {
			result.EditCount++
		}
		result.Ops = append(result.Ops, op)
	}
	return result
}

func kindOf(tag byte) OpKind {
	switch tag {
	case 'r':
		return OpReplace
	case 'd':
		return OpDelete
	case 'i':
		return OpInsert
	default:
		return OpEqual
	}
}

type cell struct {
	Class string
	HTML  template.HTML
}

type row struct {
	Left  cell
	Right cell
}

var tableTemplate = template.Must(template.New("diff").Parse(`<table class="diff">
<thead><tr><th colspan="2">{{.Title}}</th></tr><tr><th class="diff-left">{{.Left}}</th><th class="diff-right">{{.Right}}</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td class="{{.Left.Class}}">{{.Left.HTML}}</td><td class="{{.Right.Class}}">{{.Right.HTML}}</td></tr>
{{- end}}
</tbody>
</table>`))

// Render returns the two-column table for a against b. Paired changed lines
// carry word-level <del>/<ins> markup.
func (e *Engine) Render(a, b []string, labels Labels) template.HTML {
	rows := make([]row, 0, len(a)+len(b))
	for _, op := range e.Diff(a, b).Ops {
		switch op.Kind {
		case OpEqual:
			for i := op.From1; i < op.To1; i++ {
				text := escape(a[i])
				rows = append(rows, row{Left: cell{"context", text}, Right: cell{"context", text}})
			}
		case OpDelete:
			for i := op.From1; i < op.To1; i++ {
				rows = append(rows, row{Left: cell{"deleted", escape(a[i])}, Right: cell{Class: "empty"}})
			}
		case OpInsert:
			for j := op.From2; j < op.To2; j++ {
				rows = append(rows, row{Left: cell{Class: "empty"}, Right: cell{"added", escape(b[j])}})
			}
		case OpReplace:
			rows = append(rows, replaceRows(a[op.From1:op.To1], b[op.From2:op.To2])...)
		}
	}

	var buf bytes.Buffer
	err := tableTemplate.Execute(&buf, struct {
		Title string
		Left  string
		Right string
		Rows  []row
	}{labels.Title, labels.Left, labels.Right, rows})
	if err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

func replaceRows(left, right []string) []row {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	rows := make([]row, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(left) && i < len(right):
			oldHTML, newHTML := wordDiff(left[i], right[i])
			rows = append(rows, row{Left: cell{"deleted", oldHTML}, Right: cell{"added", newHTML}})
		case i < len(left):
			rows = append(rows, row{Left: cell{"deleted", escape(left[i])}, Right: cell{Class: "empty"}})
		default:
			rows = append(rows, row{Left: cell{Class: "empty"}, Right: cell{"added", escape(right[i])}})
		}
	}
	return rows
}

func wordDiff(oldLine, newLine string) (template.HTML, template.HTML) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldLine, newLine, false))

	var oldBuf, newBuf strings.Builder
	for _, d := range diffs {
		text := template.HTMLEscapeString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldBuf.WriteString(text)
			newBuf.WriteString(text)
		case diffmatchpatch.DiffDelete:
			oldBuf.WriteString("<del>" + text + "</del>")
		case diffmatchpatch.DiffInsert:
			newBuf.WriteString("<ins>" + text + "</ins>")
		}
	}
	return template.HTML(oldBuf.String()), template.HTML(newBuf.String())
}

func escape(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}
