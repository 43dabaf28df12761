package frontend

import (
	"fmt"

	gopackages "golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"cgraomp/internal/diag"
)

// BuildSSA translates loaded packages into SSA form. The returned packages
// parallel the input slice; entries the loader failed on are dropped with a
// diagnostic.
func BuildSSA(pkgs []*gopackages.Package, reporter *diag.Reporter) (*ssa.Program, []*ssa.Package, error) {
	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.SanityCheckFunctions)
	if prog == nil {
		return nil, nil, fmt.Errorf("no packages available for SSA construction")
	}

	var kept []*ssa.Package
	for i, p := range ssaPkgs {
		if p == nil {
			if i < len(pkgs) && pkgs[i] != nil {
				reporter.Errorf("package %s was not translated to SSA", pkgs[i].PkgPath)
			}
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, nil, fmt.Errorf("no packages were translated to SSA")
	}

	prog.Build()
	return prog, kept, nil
}
