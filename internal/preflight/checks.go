// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/parser"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool

	// ContentType is the resolved container type: the forced type when
	// one was given, otherwise the sniffed type. Empty when resolution
	// failed.
	ContentType string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(input, contentType string, workers int, metricsAddr string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	// Input file check
	inputCheck := checkInput(input)
	result.Checks = append(result.Checks, inputCheck)
	if !inputCheck.Passed {
		result.Passed = false
	}

	// Content type check (forced type registered, or sniffable)
	typeCheck, resolved := checkContentType(input, contentType)
	result.Checks = append(result.Checks, typeCheck)
	if !typeCheck.Passed {
		result.Passed = false
	}
	result.ContentType = resolved

	// File descriptor check
	fdCheck := checkFileDescriptors(workers)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	// Metrics address check (warning only)
	addrCheck := checkMetricsAddr(metricsAddr)
	result.Checks = append(result.Checks, addrCheck)
	// Don't fail on address warning

	return result
}

// checkInput verifies the input file exists, is a regular file, and has
// content to parse.
func checkInput(path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    "input",
			Passed:  false,
			Message: fmt.Sprintf("cannot stat %s: %v", path, err),
		}
	}

	if info.IsDir() {
		return Check{
			Name:    "input",
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}

	if info.Size() == 0 {
		return Check{
			Name:    "input",
			Passed:  false,
			Message: fmt.Sprintf("%s is empty", path),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return Check{
			Name:    "input",
			Passed:  false,
			Message: fmt.Sprintf("cannot open %s: %v", path, err),
		}
	}
	f.Close()

	return Check{
		Name:    "input",
		Passed:  true,
		Message: fmt.Sprintf("%s (%d bytes)", path, info.Size()),
	}
}

// checkContentType resolves the container type: a forced type must have a
// registered parser; otherwise the input's leading bytes are sniffed.
func checkContentType(path, forced string) (Check, string) {
	if forced != "" {
		if !slices.Contains(parser.Registered(), forced) {
			return Check{
				Name:   "content_type",
				Passed: false,
				Message: fmt.Sprintf("no parser for %q (registered: %s)",
					forced, strings.Join(parser.Registered(), ", ")),
			}, ""
		}
		return Check{
			Name:    "content_type",
			Passed:  true,
			Message: fmt.Sprintf("%s (forced)", forced),
		}, forced
	}

	src, err := media.OpenFile(path)
	if err != nil {
		return Check{
			Name:    "content_type",
			Passed:  false,
			Message: fmt.Sprintf("cannot open for sniffing: %v", err),
		}, ""
	}
	defer src.Close()

	ct, err := parser.Sniff(src)
	if err != nil {
		return Check{
			Name:    "content_type",
			Passed:  false,
			Message: err.Error(),
		}, ""
	}

	return Check{
		Name:    "content_type",
		Passed:  true,
		Message: fmt.Sprintf("%s (sniffed)", ct),
	}, ct
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(workers int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Input file, metrics listener, log outputs, plus slack for the
	// worker pool's transient handles.
	required := workers*2 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d workers)", actual, required, workers),
	}
}

// checkMetricsAddr sanity-checks the metrics listen address. A bad
// address is surfaced as a warning; binding happens later and reports
// its own failure.
func checkMetricsAddr(addr string) Check {
	if addr == "" {
		return Check{
			Name:    "metrics_addr",
			Passed:  true,
			Warning: true,
			Message: "metrics disabled",
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unparseable %q: %v", addr, err),
		}
	}

	if host == "" {
		host = "all interfaces"
	}

	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s port %s", host, port),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "input":
		return "check the path (file must exist, be readable, and be non-empty)"
	case "content_type":
		return "pass -content-type with a registered type (video/webm, audio/wav)"
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
