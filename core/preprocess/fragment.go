package preprocess

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScanError is a scanner-level YAML failure: the document is structurally
// corrupt (bad indentation, tab/space mixing) rather than merely
// incomplete. Mark is the column offset the scanner reported, already
// shifted by any synthetic prefix the caller added before scanning.
type ScanError struct {
	Problem string
	Mark    int
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("yaml scan failed at column %d: %s", e.Mark+1, e.Problem)
}

var yamlErrPrefix = regexp.MustCompile(`^yaml: (?:line \d+: )?`)

// toScanError translates a yaml.v3 decode error into a ScanError. The
// library reports no column, so the mark defaults to the shorthand scan
// offset; diagnostics built from it resolve to column 1.
func toScanError(err error) *ScanError {
	problem := yamlErrPrefix.ReplaceAllString(err.Error(), "")
	if problem != "" {
		problem = strings.ToUpper(problem[:1]) + problem[1:]
	}
	return &ScanError{Problem: problem, Mark: len(taskPrefix)}
}

// section is a half-open range of zero-based line indices into the body
// a fragment was parsed from.
type section struct {
	start, end int
}

// varsFileEntry is one element of a play's vars_files list, with the
// line it occupies in the original text. Value is unquoted.
type varsFileEntry struct {
	value string
	line  int
}

// play records where the interesting pieces of a single play sit in the
// original text. vars and varsFiles are nil when the section is absent;
// tasks is -1 when neither tasks: nor handlers: exists.
type play struct {
	span      section
	keyIndent int
	vars      *section
	varsFiles *section
	entries   []varsFileEntry
	tasks     int
}

// fragment is the tolerantly-parsed shape of a prompt body: the original
// lines plus the structural slices needed for reconstruction. For
// role/standalone task fragments no plays are extracted; the whole body
// is a bare task sequence.
type fragment struct {
	lines []string
	plays []play
	bare  bool
}

// tolerantParse attempts a full parse of the body. The body is always a
// truncated in-progress document, so a first failure gets one retry with
// the structure closed by a trailing newline. Whatever still fails after
// that is a true scanner-level error.
func tolerantParse(body string) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(body), &root); err != nil {
		root = yaml.Node{}
		if err2 := yaml.Unmarshal([]byte(body+"\n"), &root); err2 != nil {
			return nil, toScanError(err2)
		}
	}
	return &root, nil
}

// parseFragment parses a prompt body (document marker and trailing
// partial line already removed). bare selects the role/standalone task
// mode, where the body is a task sequence with no play wrapper.
func parseFragment(lines []string, bare bool) (*fragment, error) {
	root, err := tolerantParse(strings.Join(lines, "\n"))
	if err != nil {
		return nil, err
	}

	frag := &fragment{lines: lines, bare: bare}
	if !bare {
		frag.extractPlays(root)
	}
	return frag, nil
}

func (f *fragment) extractPlays(root *yaml.Node) {
	doc := root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return
		}
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.SequenceNode {
		return
	}

	items := doc.Content
	for i, item := range items {
		if item.Kind != yaml.MappingNode {
			continue
		}

		p := play{
			span:      section{start: item.Line - 1, end: len(f.lines)},
			keyIndent: item.Column - 1,
			tasks:     -1,
		}
		if i+1 < len(items) {
			p.span.end = items[i+1].Line - 1
		}

		f.extractSections(&p, item)
		f.plays = append(f.plays, p)
	}
}

// extractSections locates the vars, vars_files, and tasks/handlers keys
// of one play mapping. Section extents run from the key's line to the
// next play-level key, so they cover the key line plus its content.
func (f *fragment) extractSections(p *play, mapping *yaml.Node) {
	pairs := mapping.Content
	for j := 0; j+1 < len(pairs); j += 2 {
		key, value := pairs[j], pairs[j+1]
		if key.Kind != yaml.ScalarNode {
			continue
		}

		sec := section{start: key.Line - 1, end: p.span.end}
		if j+2 < len(pairs) {
			sec.end = pairs[j+2].Line - 1
		}

		switch key.Value {
		case "vars":
			s := sec
			p.vars = &s
		case "vars_files":
			s := sec
			p.varsFiles = &s
			if value.Kind == yaml.SequenceNode {
				for _, entry := range value.Content {
					if entry.Kind == yaml.ScalarNode {
						p.entries = append(p.entries, varsFileEntry{
							value: entry.Value,
							line:  entry.Line - 1,
						})
					}
				}
			}
		case "tasks", "handlers":
			p.tasks = key.Line - 1
		}
	}
}
