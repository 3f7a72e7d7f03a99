// Package crashlog writes the fatal-signal crash log described in
// spec.md §6.4, grounded on original_source/src/CrashHandler.h: a
// timestamped report with the signal, a resolved stack trace, and a short
// system-info block, written to the working directory as
// compiler_crash_YYYYMMDD_HHMMSS.log.
package crashlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// Report is the structured content of a crash log.
type Report struct {
	When       time.Time
	Signal     string
	SignalCode int
	StackTrace string
	GoVersion  string
	OS         string
	Arch       string
}

// SignalName resolves a unix.Signal to its canonical name (SIGSEGV,
// SIGABRT, ...), the POSIX analogue of the Windows EXCEPTION_* strings
// CrashHandler.h tabulates.
func SignalName(sig unix.Signal) string {
	switch sig {
	case unix.SIGSEGV:
		return "SIGSEGV"
	case unix.SIGABRT:
		return "SIGABRT"
	case unix.SIGBUS:
		return "SIGBUS"
	case unix.SIGILL:
		return "SIGILL"
	case unix.SIGFPE:
		return "SIGFPE"
	default:
		return fmt.Sprintf("signal %d", int(sig))
	}
}

// Capture builds a Report for the given signal using the current Go stack
// trace as a best-effort substitute for a symbolized native backtrace
// (this compiler's own crashes are Go panics, not the target program's).
func Capture(sig unix.Signal) Report {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)

	return Report{
		When:       time.Now(),
		Signal:     SignalName(sig),
		SignalCode: int(sig),
		StackTrace: string(buf[:n]),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

// Write renders the report and writes it to
// "compiler_crash_YYYYMMDD_HHMMSS.log" in dir, returning the path written.
func Write(dir string, r Report) (string, error) {
	name := fmt.Sprintf("compiler_crash_%s.log", r.When.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	content := fmt.Sprintf(
		"cppnc crash report\ntime: %s\nsignal: %s (%d)\nos/arch: %s/%s\ngo: %s\n\nstack trace:\n%s\n",
		r.When.Format(time.RFC3339), r.Signal, r.SignalCode, r.OS, r.Arch, r.GoVersion, r.StackTrace,
	)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	return path, nil
}
