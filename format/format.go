// Package format turns rewritten selection sets and synthesized operations
// back into GraphQL query text: what host.Remote sends through its Fetcher,
// and what the delegation engine writes to its debug log.
package format

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

type writer struct {
	w io.Writer

	indent     string
	indentSize int

	padNext  bool
	lineHead bool
}

func newWriter(w io.Writer) *writer {
	return &writer{indent: "\t", w: w, lineHead: true}
}

func (f *writer) raw(s string) {
	_, _ = f.w.Write([]byte(s))
}

func (f *writer) writeIndent() *writer {
	if f.lineHead {
		f.raw(strings.Repeat(f.indent, f.indentSize))
	}
	f.lineHead = false
	f.padNext = false
	return f
}

func (f *writer) newline() *writer {
	f.raw("\n")
	f.lineHead = true
	f.padNext = false
	return f
}

func (f *writer) word(s string) *writer {
	if f.lineHead {
		f.writeIndent()
	}
	if f.padNext {
		f.raw(" ")
	}
	f.raw(strings.TrimSpace(s))
	f.padNext = true
	return f
}

func (f *writer) str(s string) *writer {
	if f.lineHead {
		f.writeIndent()
	}
	if f.padNext {
		f.raw(" ")
	}
	f.raw(s)
	f.padNext = false
	return f
}

func (f *writer) indentIn() *writer  { f.indentSize++; return f }
func (f *writer) indentOut() *writer { f.indentSize--; return f }
func (f *writer) noPad() *writer     { f.padNext = false; return f }
func (f *writer) pad() *writer       { f.padNext = true; return f }

func (f *writer) directives(list ast.DirectiveList) {
	for _, d := range list {
		f.str("@").word(d.Name)
		f.arguments(d.Arguments)
	}
}

func (f *writer) arguments(list ast.ArgumentList) {
	if len(list) == 0 {
		return
	}
	f.noPad().str("(")
	for i, arg := range list {
		f.word(arg.Name).noPad().str(":").pad()
		f.str(arg.Value.String())
		if i != len(list)-1 {
			f.noPad().word(",")
		}
	}
	f.str(")").pad()
}

func (f *writer) variableDefinitions(list ast.VariableDefinitionList) {
	if len(list) == 0 {
		return
	}
	f.noPad().str("(")
	for i, v := range list {
		f.str("$").noPad().word(v.Variable).noPad().str(":").pad().word(v.Type.String())
		if v.DefaultValue != nil {
			f.word("=").word(v.DefaultValue.String())
		}
		if i != len(list)-1 {
			f.noPad().word(",")
		}
	}
	f.noPad().str(")").pad()
}

func (f *writer) selectionSet(sets ast.SelectionSet) {
	if len(sets) == 0 {
		return
	}

	f.str("{").newline()
	f.indentIn()

	for _, sel := range sets {
		f.selection(sel)
	}

	f.indentOut()
	f.str("}")
}

func (f *writer) selection(selection ast.Selection) {
	switch v := selection.(type) {
	case *ast.Field:
		f.field(v)
	case *ast.FragmentSpread:
		f.fragmentSpread(v)
	case *ast.InlineFragment:
		f.inlineFragment(v)
	default:
		panic(fmt.Errorf("format: unknown selection type %T", selection))
	}
	f.newline()
}

func (f *writer) field(field *ast.Field) {
	if field.Alias != "" && field.Alias != field.Name {
		f.word(field.Alias).noPad().str(":").pad()
	}
	f.word(field.Name)

	if len(field.Arguments) != 0 {
		f.noPad()
		f.arguments(field.Arguments)
		f.pad()
	}

	f.directives(field.Directives)
	f.selectionSet(field.SelectionSet)
}

func (f *writer) fragmentSpread(spread *ast.FragmentSpread) {
	f.word("...").noPad().word(spread.Name)
	f.directives(spread.Directives)
}

func (f *writer) inlineFragment(inline *ast.InlineFragment) {
	f.word("...")
	if inline.TypeCondition != "" {
		f.word("on").word(inline.TypeCondition)
	}
	f.directives(inline.Directives)
	f.selectionSet(inline.SelectionSet)
}

// SelectionSet renders a bare selection set, e.g. for debug logging.
func SelectionSet(s ast.SelectionSet) string {
	buf := &bytes.Buffer{}
	newWriter(buf).selectionSet(s)
	return buf.String()
}

// CompactSelectionSet renders a selection set onto a single line, for
// concise debug/log output.
func CompactSelectionSet(s ast.SelectionSet) string {
	v := SelectionSet(s)
	v = strings.ReplaceAll(v, "\t", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.Join(strings.Fields(v), " ")
}

// Document renders a complete, standalone operation document: the operation
// header (type, name, variable definitions), the root selection set, and
// every referenced fragment definition. host.Remote sends this text through
// its Fetcher; the delegation engine itself hands host.Executor the AST.
func Document(op *ast.OperationDefinition, fragments ast.FragmentDefinitionList) string {
	buf := &bytes.Buffer{}
	w := newWriter(buf)

	w.word(string(op.Operation))
	if op.Name != "" {
		w.word(op.Name)
	}
	w.variableDefinitions(op.VariableDefinitions)
	w.pad()
	w.selectionSet(op.SelectionSet)

	names := make([]string, 0, len(fragments))
	byName := make(map[string]*ast.FragmentDefinition, len(fragments))
	for _, fr := range fragments {
		names = append(names, fr.Name)
		byName[fr.Name] = fr
	}
	sort.Strings(names)

	for _, name := range names {
		fr := byName[name]
		w.newline().newline()
		w.word("fragment").word(fr.Name).word("on").word(fr.TypeCondition)
		w.directives(fr.Directives)
		w.pad()
		w.selectionSet(fr.SelectionSet)
	}

	return buf.String()
}
