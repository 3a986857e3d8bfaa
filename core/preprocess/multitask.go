package preprocess

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// taskPrefix is prepended to each shorthand segment before it is scanned
// as YAML. Scanner columns are reported relative to the prefixed text,
// so diagnostics subtract its length to point back into the segment.
const taskPrefix = "- name: "

// DefaultMultiTaskDelimiter joins shorthand task names inside a trailing
// comment line.
const DefaultMultiTaskDelimiter = "&"

// isTaskComment reports whether the final line of the prompt is a
// comment, i.e. a single- or multi-task shorthand the validator must
// inspect before anything else runs.
func isTaskComment(prompt string) bool {
	return strings.HasPrefix(strings.TrimSpace(lastLine(prompt)), "#")
}

// taskSegments splits the trailing comment into candidate task names.
// The comment marker is dropped and every segment is trimmed; empty
// segments are kept so they can be diagnosed.
func taskSegments(prompt, delimiter string) []string {
	comment := strings.TrimSpace(lastLine(prompt))
	comment = strings.TrimSpace(strings.TrimPrefix(comment, "#"))

	parts := strings.Split(comment, delimiter)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validateTaskComment checks every shorthand segment of the trailing
// comment and returns all violations in segment order. Validation never
// expands the shorthand; a clean result leaves the prompt untouched for
// the model to interpret.
func validateTaskComment(prompt, delimiter string) []Diagnostic {
	var diags []Diagnostic
	for _, seg := range taskSegments(prompt, delimiter) {
		switch {
		case seg == "":
			diags = append(diags, Diagnostic{Message: "Empty task definition."})
		case strings.HasPrefix(seg, "-"):
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("Task '%s' invalid at column 1. Task starts with a hyphen.", seg),
			})
		case strings.Contains(seg, ":"):
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("Task '%s' invalid at column %d. Task contains a colon.",
					seg, strings.Index(seg, ":")+1),
			})
		default:
			if err := scanTask(seg); err != nil {
				var scanErr *ScanError
				if errors.As(err, &scanErr) {
					diags = append(diags, scanDiagnostic(seg, scanErr))
				}
			}
		}
	}
	return diags
}

// scanTask parses a shorthand segment as a single-entry task list. The
// explicit checks above catch the common violations; this catches
// whatever else the scanner rejects.
func scanTask(seg string) error {
	var doc any
	if err := yaml.Unmarshal([]byte(taskPrefix+seg), &doc); err != nil {
		return toScanError(err)
	}
	return nil
}

// scanDiagnostic converts a scanner failure on a shorthand segment into
// the diagnostic surfaced to the editor. The reported column is relative
// to the segment, not the synthetic task prefix the scanner saw.
func scanDiagnostic(seg string, e *ScanError) Diagnostic {
	col := e.Mark - len(taskPrefix) + 1
	if col < 1 {
		col = 1
	}
	return Diagnostic{
		Message: fmt.Sprintf("Task '%s' invalid at column %d. %s.",
			seg, col, strings.TrimSuffix(e.Problem, ".")),
	}
}

func lastLine(prompt string) string {
	lines := strings.Split(strings.TrimSuffix(prompt, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
