package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"sync"
)

// Severity classifies a diagnostic record.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityDebug
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "debug"
	}
}

// Reporter collects diagnostics and writes them to a stream either as plain
// text or as one JSON object per line. Position rendering requires the file
// set of the loaded package; until SetFileSet is called positions are
// omitted.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	fset     *token.FileSet
	verbose  bool
	errCount int
}

// NewReporter builds a reporter writing to w. format is "text" or "json";
// anything else falls back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	return &Reporter{w: w, format: format}
}

func (r *Reporter) SetFileSet(fset *token.FileSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fset = fset
}

// SetVerbose enables the debug stream.
func (r *Reporter) SetVerbose(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = v
}

func (r *Reporter) Verbose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verbose
}

func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errCount > 0
}

func (r *Reporter) Error(pos token.Pos, msg string) {
	r.emit(SeverityError, pos, msg)
}

func (r *Reporter) Errorf(format string, args ...any) {
	r.emit(SeverityError, token.NoPos, fmt.Sprintf(format, args...))
}

func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.emit(SeverityWarning, pos, msg)
}

func (r *Reporter) Warningf(format string, args ...any) {
	r.emit(SeverityWarning, token.NoPos, fmt.Sprintf(format, args...))
}

func (r *Reporter) Info(pos token.Pos, msg string) {
	r.emit(SeverityInfo, pos, msg)
}

// Debugf writes only when verbose output is enabled.
func (r *Reporter) Debugf(format string, args ...any) {
	if !r.Verbose() {
		return
	}
	r.emit(SeverityDebug, token.NoPos, fmt.Sprintf(format, args...))
}

func (r *Reporter) emit(sev Severity, pos token.Pos, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sev == SeverityError {
		r.errCount++
	}
	loc := ""
	if pos.IsValid() && r.fset != nil {
		loc = r.fset.Position(pos).String()
	}
	if r.format == "json" {
		rec := struct {
			Severity string `json:"severity"`
			Location string `json:"location,omitempty"`
			Message  string `json:"message"`
		}{sev.String(), loc, msg}
		b, err := json.Marshal(&rec)
		if err != nil {
			return
		}
		fmt.Fprintf(r.w, "%s\n", b)
		return
	}
	if loc != "" {
		fmt.Fprintf(r.w, "%s: %s: %s\n", loc, sev, msg)
	} else {
		fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
	}
}
