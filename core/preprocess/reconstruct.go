package preprocess

import (
	"regexp"
	"strings"

	"github.com/adalundhe/anvil/core/completions"
)

const (
	setFactTaskName = "Set variables from context"
	setFactModule   = "ansible.builtin.set_fact"
)

// quotedName matches a task name line whose value is wrapped in single
// or double quotes.
var quotedName = regexp.MustCompile(`^(\s*-\s+name:\s+)(?:"([^"]*)"|'([^']*)')\s*$`)

// normalizeTaskLine strips surrounding quotes from a task name line.
// Idempotent: already-unquoted lines pass through unchanged.
func normalizeTaskLine(line string) string {
	m := quotedName.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	name := m[2]
	if name == "" && m[3] != "" {
		name = m[3]
	}
	return m[1] + name
}

// promptBody strips the prompt down to its reconstructable lines: the
// trailing partial line the user is typing is dropped, then the leading
// document marker if present.
func promptBody(prompt string) []string {
	lines := strings.Split(strings.TrimSuffix(prompt, "\n"), "\n")
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		lines = lines[1:]
	}
	return lines
}

// passthrough is the no-injection reconstruction: the body verbatim,
// task names normalized, ending in a newline.
func passthrough(prompt string) string {
	lines := promptBody(prompt)
	if len(lines) == 0 {
		return ""
	}
	for i := range lines {
		lines[i] = normalizeTaskLine(lines[i])
	}
	return strings.Join(lines, "\n") + "\n"
}

// reconstructPlaybook re-emits a playbook with variable blocks injected
// into each play. Plays are reconstructed independently and joined with
// a single blank line.
func (s *Stage) reconstructPlaybook(frag *fragment, pc completions.PlaybookContext) string {
	if len(frag.plays) == 0 {
		return joinBody(frag.lines)
	}

	var parts []string

	// Anything before the first play (stray comments) survives as-is.
	if lead := trimTrailingBlank(frag.lines[:frag.plays[0].span.start]); len(lead) > 0 {
		parts = append(parts, strings.Join(lead, "\n"))
	}

	for _, p := range frag.plays {
		rendered := trimTrailingBlank(s.renderPlay(frag.lines, p, pc))
		parts = append(parts, strings.Join(rendered, "\n"))
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// renderPlay walks one play's lines, replacing the vars section with the
// injected blocks and filtering resolved entries out of vars_files. The
// block is emitted exactly once, at whichever of the two sections comes
// first. When the play has neither, the synthesized vars block lands
// directly beneath the play header line.
func (s *Stage) renderPlay(lines []string, p play, pc completions.PlaybookContext) []string {
	blocks, resolved := playBlocks(pc, p.entries)
	inject := len(blocks) > 0

	var out []string
	emitted := false
	emitVars := func() {
		out = append(out, strings.Repeat(" ", p.keyIndent)+"vars:")
		for _, b := range blocks {
			out = append(out, strings.Split(s.indentBlock(b, p.keyIndent+2), "\n")...)
		}
		emitted = true
	}

	i := p.span.start
	for i < p.span.end {
		switch {
		case p.vars != nil && i == p.vars.start:
			if inject {
				if !emitted {
					emitVars()
				}
			} else {
				out = append(out, lines[p.vars.start:p.vars.end]...)
			}
			i = p.vars.end

		case p.varsFiles != nil && i == p.varsFiles.start:
			if inject && !emitted {
				emitVars()
			}
			out = append(out, s.filterVarsFiles(lines, p, resolved)...)
			i = p.varsFiles.end

		default:
			out = append(out, normalizeTaskLine(lines[i]))
			i++
			if i == p.span.start+1 && inject && p.vars == nil && p.varsFiles == nil {
				emitVars()
			}
		}
	}

	return out
}

// filterVarsFiles re-emits the vars_files section without the entries
// the injected blocks resolved, preserving the original order and text
// of the remainder. A fully resolved list disappears, key and all.
func (s *Stage) filterVarsFiles(lines []string, p play, resolved map[string]bool) []string {
	var kept []string
	for _, e := range p.entries {
		if !resolved[e.value] {
			kept = append(kept, lines[e.line])
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return append([]string{lines[p.varsFiles.start]}, kept...)
}

// reconstructTasks prepends a synthesized set_fact task binding the
// context variables ahead of the original task list.
func (s *Stage) reconstructTasks(body []string, blocks []string) string {
	out := []string{
		"- name: " + setFactTaskName,
		"  " + setFactModule + ":",
	}
	for _, b := range blocks {
		out = append(out, strings.Split(s.indentBlock(b, blockIndent), "\n")...)
	}
	out = append(out, "")
	for _, line := range body {
		out = append(out, normalizeTaskLine(line))
	}
	return strings.Join(out, "\n") + "\n"
}

func joinBody(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func trimTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}
