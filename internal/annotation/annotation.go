// Package annotation attributes functions with tag sets parsed from
// module-level directive comments.
package annotation

import (
	"go/ast"
	"go/types"
	"strings"

	gopackages "golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
)

// directivePrefix introduces all recognized directive comments.
const directivePrefix = "//cgraomp:"

// CustomInstTag marks a function as a custom instruction implementation.
const CustomInstTag = "cgra_custom_inst"

// TagSet is the set of tags attached to one function.
type TagSet map[string]bool

// Contains reports tag membership.
func (s TagSet) Contains(tag string) bool { return s[tag] }

// Analysis is the module-scoped function → tag-set mapping.
type Analysis struct {
	tags map[*ssa.Function]TagSet
}

// Analyze scans every syntax file of the loaded packages for
// "//cgraomp:annotate <tag>" directives attached to function declarations
// and resolves them against the SSA program. The result is cached by the
// caller at module scope.
func Analyze(prog *ssa.Program, pkgs []*gopackages.Package) *Analysis {
	a := &Analysis{tags: make(map[*ssa.Function]TagSet)}
	for _, pkg := range pkgs {
		if pkg == nil || pkg.TypesInfo == nil {
			continue
		}
		for _, file := range pkg.Syntax {
			a.scanFile(prog, pkg.TypesInfo, file)
		}
	}
	return a
}

// AnalyzeFiles is the single-package form of Analyze for callers that hold
// the syntax and type information directly.
func AnalyzeFiles(prog *ssa.Program, info *types.Info, files []*ast.File) *Analysis {
	a := &Analysis{tags: make(map[*ssa.Function]TagSet)}
	for _, file := range files {
		a.scanFile(prog, info, file)
	}
	return a
}

func (a *Analysis) scanFile(prog *ssa.Program, info *types.Info, file *ast.File) {
	if file == nil || info == nil {
		return
	}
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Doc == nil {
			continue
		}
		tags := directiveArgs(fd.Doc, "annotate")
		if len(tags) == 0 {
			continue
		}
		obj, ok := info.Defs[fd.Name].(*types.Func)
		if !ok {
			continue
		}
		fn := prog.FuncValue(obj)
		if fn == nil {
			continue
		}
		set := a.tags[fn]
		if set == nil {
			set = make(TagSet)
			a.tags[fn] = set
		}
		for _, tag := range tags {
			set[tag] = true
		}
	}
}

// TagsOf returns the tag set of fn, possibly nil.
func (a *Analysis) TagsOf(fn *ssa.Function) TagSet {
	return a.tags[fn]
}

// IsCustomInst reports whether fn is a custom instruction implementation.
func (a *Analysis) IsCustomInst(fn *ssa.Function) bool {
	return a.tags[fn].Contains(CustomInstTag)
}

// Name implements the analysis-result contract.
func (a *Analysis) Name() string { return "annotation" }

// Invalidate reports whether the cached result must be recomputed for the
// unit. Annotations derive from syntax only, so they survive any transform
// that preserves the module.
func (a *Analysis) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[a.Name()] && !preserved["all"]
}

// directiveArgs collects the arguments of every "//cgraomp:<name> ..."
// line in a comment group.
func directiveArgs(doc *ast.CommentGroup, name string) []string {
	var out []string
	for _, c := range doc.List {
		text := c.Text
		if !strings.HasPrefix(text, directivePrefix) {
			continue
		}
		rest := strings.TrimPrefix(text, directivePrefix)
		fields := strings.Fields(rest)
		if len(fields) < 2 || fields[0] != name {
			continue
		}
		out = append(out, fields[1:]...)
	}
	return out
}

// ScanDirectives collects the argument strings of every
// "//cgraomp:<name> ..." directive anywhere in the file, one entry per
// directive line.
func ScanDirectives(file *ast.File, name string) []string {
	var out []string
	for _, group := range file.Comments {
		for _, c := range group.List {
			text := c.Text
			if !strings.HasPrefix(text, directivePrefix) {
				continue
			}
			rest := strings.TrimPrefix(text, directivePrefix)
			if !strings.HasPrefix(rest, name) {
				continue
			}
			arg := strings.TrimSpace(strings.TrimPrefix(rest, name))
			if arg != "" {
				out = append(out, arg)
			}
		}
	}
	return out
}
