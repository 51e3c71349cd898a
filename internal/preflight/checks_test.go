package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/streamweft/go-demux-bridge/internal/parser"
)

// writeTempFile creates a file with the given content in a test temp dir.
func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// webmHeader is enough leading bytes for the sniffer to recognize EBML.
func webmHeader() []byte {
	return append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 16)...)
}

// wavHeader is a minimal RIFF/WAVE prefix.
func wavHeader() []byte {
	return []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
}

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

func TestCheckInput(t *testing.T) {
	t.Run("valid_file", func(t *testing.T) {
		path := writeTempFile(t, "clip.webm", webmHeader())

		c := checkInput(path)
		if !c.Passed {
			t.Errorf("check should pass: %s", c.Message)
		}
		if !strings.Contains(c.Message, "20 bytes") {
			t.Errorf("message should report size, got %q", c.Message)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		c := checkInput(filepath.Join(t.TempDir(), "nope.webm"))
		if c.Passed {
			t.Error("check should fail for missing file")
		}
	})

	t.Run("directory", func(t *testing.T) {
		c := checkInput(t.TempDir())
		if c.Passed {
			t.Error("check should fail for a directory")
		}
		if !strings.Contains(c.Message, "directory") {
			t.Errorf("message should mention directory, got %q", c.Message)
		}
	})

	t.Run("empty_file", func(t *testing.T) {
		path := writeTempFile(t, "empty.webm", nil)

		c := checkInput(path)
		if c.Passed {
			t.Error("check should fail for an empty file")
		}
		if !strings.Contains(c.Message, "empty") {
			t.Errorf("message should mention empty, got %q", c.Message)
		}
	})
}

func TestCheckContentType_Forced(t *testing.T) {
	path := writeTempFile(t, "clip.webm", webmHeader())

	t.Run("registered", func(t *testing.T) {
		c, resolved := checkContentType(path, parser.TypeWebM)
		if !c.Passed {
			t.Errorf("check should pass: %s", c.Message)
		}
		if resolved != parser.TypeWebM {
			t.Errorf("resolved = %q, want %q", resolved, parser.TypeWebM)
		}
		if !strings.Contains(c.Message, "forced") {
			t.Errorf("message should say forced, got %q", c.Message)
		}
	})

	t.Run("unregistered", func(t *testing.T) {
		c, resolved := checkContentType(path, "video/mp4")
		if c.Passed {
			t.Error("check should fail for unregistered type")
		}
		if resolved != "" {
			t.Errorf("resolved = %q, want empty", resolved)
		}
		if !strings.Contains(c.Message, "video/mp4") {
			t.Errorf("message should name the bad type, got %q", c.Message)
		}
	})
}

func TestCheckContentType_Sniffed(t *testing.T) {
	t.Run("webm", func(t *testing.T) {
		path := writeTempFile(t, "clip.webm", webmHeader())

		c, resolved := checkContentType(path, "")
		if !c.Passed {
			t.Errorf("check should pass: %s", c.Message)
		}
		if resolved != parser.TypeWebM {
			t.Errorf("resolved = %q, want %q", resolved, parser.TypeWebM)
		}
		if !strings.Contains(c.Message, "sniffed") {
			t.Errorf("message should say sniffed, got %q", c.Message)
		}
	})

	t.Run("wav", func(t *testing.T) {
		path := writeTempFile(t, "tone.wav", wavHeader())

		c, resolved := checkContentType(path, "")
		if !c.Passed {
			t.Errorf("check should pass: %s", c.Message)
		}
		if resolved != parser.TypeWAV {
			t.Errorf("resolved = %q, want %q", resolved, parser.TypeWAV)
		}
	})

	t.Run("unknown_format", func(t *testing.T) {
		path := writeTempFile(t, "notes.txt", []byte("not a container"))

		c, resolved := checkContentType(path, "")
		if c.Passed {
			t.Error("check should fail for unrecognizable bytes")
		}
		if resolved != "" {
			t.Errorf("resolved = %q, want empty", resolved)
		}
	})
}

func TestCheckFileDescriptors(t *testing.T) {
	c := checkFileDescriptors(4)

	if c.Name != "file_descriptors" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Actual <= 0 {
		t.Errorf("Actual = %d, expected a real rlimit", c.Actual)
	}
	// 4 workers need very little; any sane environment passes.
	if !c.Passed {
		t.Errorf("check should pass for 4 workers: %s", c.Message)
	}
}

func TestCheckMetricsAddr(t *testing.T) {
	testCases := []struct {
		name    string
		addr    string
		passed  bool
		warning bool
	}{
		{"host and port", "0.0.0.0:17092", true, false},
		{"port only", ":9090", true, false},
		{"empty disables", "", true, true},
		{"garbage", "not-an-addr", true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := checkMetricsAddr(tc.addr)
			if c.Passed != tc.passed {
				t.Errorf("Passed = %v, want %v", c.Passed, tc.passed)
			}
			if c.Warning != tc.warning {
				t.Errorf("Warning = %v, want %v (%s)", c.Warning, tc.warning, c.Message)
			}
		})
	}
}

func TestRunAll_Valid(t *testing.T) {
	path := writeTempFile(t, "clip.webm", webmHeader())

	result := RunAll(path, "", 4, "0.0.0.0:17092")

	if result == nil {
		t.Fatal("RunAll returned nil")
	}
	if !result.Passed {
		for _, c := range result.Checks {
			t.Logf("%s", c.String())
		}
		t.Fatal("expected all checks to pass")
	}
	if result.ContentType != parser.TypeWebM {
		t.Errorf("ContentType = %q, want %q", result.ContentType, parser.TypeWebM)
	}
	if len(result.Checks) != 4 {
		t.Errorf("expected 4 checks, got %d", len(result.Checks))
	}
}

func TestRunAll_MissingInput(t *testing.T) {
	result := RunAll(filepath.Join(t.TempDir(), "nope.webm"), "", 4, "")

	if result.Passed {
		t.Error("RunAll should fail for a missing input file")
	}

	foundInput := false
	for _, check := range result.Checks {
		if check.Name == "input" {
			foundInput = true
			if check.Passed {
				t.Error("input check should fail")
			}
		}
	}
	if !foundInput {
		t.Error("expected input check in results")
	}
}

func TestRunAll_ForcedTypeSkipsSniffing(t *testing.T) {
	// Content that the sniffer would reject parses fine when the type
	// is forced; preflight only verifies registration.
	path := writeTempFile(t, "raw.bin", []byte("opaque payload"))

	result := RunAll(path, parser.TypeWAV, 4, "")

	for _, check := range result.Checks {
		if check.Name == "content_type" && !check.Passed {
			t.Errorf("forced type should pass registration check: %s", check.Message)
		}
	}
	if result.ContentType != parser.TypeWAV {
		t.Errorf("ContentType = %q, want %q", result.ContentType, parser.TypeWAV)
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"input", "content_type", "file_descriptors", "unknown"} {
		if suggestFix(name) == "" {
			t.Errorf("suggestFix(%q) returned empty string", name)
		}
	}
}
