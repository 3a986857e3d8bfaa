package preprocess

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidYAMLCode is the stable identifier callers use to translate
// multi-task validation failures into a wire-level client error.
const InvalidYAMLCode = "preprocess-invalid-yaml"

// ErrInvalidPrompt wraps structural parse failures outside the
// multi-task path: the fragment is corrupt in a way the tolerant parser
// cannot recover from. Terminal for the request, never retried.
var ErrInvalidPrompt = errors.New("prompt is not parseable as YAML")

// Diagnostic is a single human-readable validation finding, suitable for
// display in the editor.
type Diagnostic struct {
	Message string
}

// InvalidYAMLError reports multi-task shorthand violations. Diagnostics
// preserve the order of the shorthand segments they were produced from,
// and the payload is guaranteed untouched when this error is returned.
type InvalidYAMLError struct {
	Diagnostics []Diagnostic
}

func (e *InvalidYAMLError) Error() string {
	return fmt.Sprintf("%s: %s", InvalidYAMLCode, strings.Join(e.Messages(), "; "))
}

// Messages returns the ordered diagnostic strings for UI display.
func (e *InvalidYAMLError) Messages() []string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.Message
	}
	return msgs
}
