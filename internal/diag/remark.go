package diag

import (
	"fmt"
	"go/token"
	"strings"
)

// RemarkKind distinguishes the three remark categories of the optimisation
// remark channel.
type RemarkKind int

const (
	RemarkPassed RemarkKind = iota
	RemarkMissed
	RemarkAnalysis
)

func (k RemarkKind) String() string {
	switch k {
	case RemarkPassed:
		return "remark"
	case RemarkMissed:
		return "remark-missed"
	default:
		return "remark-analysis"
	}
}

// NV is a named value attached to a remark, mirroring the host framework's
// remark argument pairs.
type NV struct {
	Name  string
	Value string
}

// Remark is one optimisation remark tied to a source location.
type Remark struct {
	Pass string
	Name string
	Kind RemarkKind
	Pos  token.Pos
	Args []NV
}

func (rm *Remark) Append(name, value string) *Remark {
	rm.Args = append(rm.Args, NV{Name: name, Value: value})
	return rm
}

// Text renders the remark body: the remark name followed by its named
// values in order.
func (rm *Remark) Text() string {
	var sb strings.Builder
	sb.WriteString(rm.Name)
	for _, a := range rm.Args {
		fmt.Fprintf(&sb, " %s=%s", a.Name, a.Value)
	}
	return sb.String()
}

// EmitRemark routes a remark through the reporter's diagnostic stream.
// Remarks never contribute to the error count.
func (r *Reporter) EmitRemark(rm *Remark) {
	r.emit(SeverityInfo, rm.Pos, fmt.Sprintf("[%s] %s: %s", rm.Pass, rm.Kind, rm.Text()))
}
