package frontend

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	gopackages "golang.org/x/tools/go/packages"

	"cgraomp/internal/diag"
)

// LoadConfig configures how the annotated source module is loaded before
// SSA translation.
type LoadConfig struct {
	Sources   []string
	BuildTags []string
}

// LoadPackages loads the requested source files with full syntax and type
// information, as the analyses need both the SSA form and the directive
// comments of the module.
func LoadPackages(cfg LoadConfig, reporter *diag.Reporter) ([]*gopackages.Package, *token.FileSet, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, fmt.Errorf("no source files were provided")
	}

	fset := token.NewFileSet()
	buildFlags := buildTagFlag(cfg.BuildTags)

	dir := workingDir(cfg.Sources[0])
	if dir != "" {
		if absDir, err := filepath.Abs(dir); err == nil {
			dir = absDir
		}
	}

	loadCfg := &gopackages.Config{
		Mode: gopackages.NeedName | gopackages.NeedSyntax | gopackages.NeedFiles |
			gopackages.NeedCompiledGoFiles | gopackages.NeedTypes | gopackages.NeedTypesInfo |
			gopackages.NeedImports | gopackages.NeedDeps | gopackages.NeedModule |
			gopackages.NeedTypesSizes,
		Fset:  fset,
		Env:   os.Environ(),
		Tests: false,
	}
	if dir != "" {
		loadCfg.Dir = dir
	}
	if len(buildFlags) > 0 {
		loadCfg.BuildFlags = buildFlags
	}

	pkgs, err := gopackages.Load(loadCfg, ".")
	if err != nil {
		return nil, nil, err
	}

	reporter.SetFileSet(fset)

	var hadErrors bool
	for _, pkg := range pkgs {
		for _, loadErr := range pkg.Errors {
			reporter.Errorf("%s: %s", loadErr.Pos, loadErr.Msg)
			hadErrors = true
		}
	}
	if hadErrors {
		return nil, nil, fmt.Errorf("package loading failed")
	}

	return pkgs, fset, nil
}

func buildTagFlag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	if joined == "" {
		return nil
	}
	return []string{"-tags=" + joined}
}

func workingDir(sample string) string {
	if sample == "" {
		return ""
	}
	if info, err := os.Stat(sample); err == nil && info.IsDir() {
		return sample
	}
	dir := filepath.Dir(sample)
	if dir == "." {
		return ""
	}
	return dir
}
