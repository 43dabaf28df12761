// Package ssatest builds SSA fixtures from in-memory source for tests.
package ssatest

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Build type-checks and SSA-builds a single-file package from src. The
// source must be self-contained (no imports).
func Build(t *testing.T, src string) (*ssa.Package, *token.FileSet, *ast.File) {
	pkg, _, fset, file := BuildInfo(t, src)
	return pkg, fset, file
}

// BuildInfo is Build plus the type-checker's info record.
func BuildInfo(t *testing.T, src string) (*ssa.Package, *types.Info, *token.FileSet, *ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "kernel.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	pkg := types.NewPackage("kernel", "kernel")
	conf := &types.Config{}
	ssaPkg, info, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("build ssa fixture: %v", err)
	}
	return ssaPkg, info, fset, file
}

// Func returns the named function of the package or fails the test.
func Func(t *testing.T, pkg *ssa.Package, name string) *ssa.Function {
	t.Helper()
	fn := pkg.Func(name)
	if fn == nil {
		t.Fatalf("function %s not found in fixture", name)
	}
	return fn
}
