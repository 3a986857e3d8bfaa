package preprocess

import (
	"sort"
	"strconv"
	"strings"

	"github.com/adalundhe/anvil/core/completions"
)

// blockIndent is how far injected variable blocks sit from the play (or
// task list) margin: under "vars:" or "set_fact:", two levels deep.
const blockIndent = 4

// playBlocks selects the raw variable blocks to inject into one play:
// first each varInfiles entry that resolves a vars_files reference, in
// vars_files order, then every includeVars block. resolved records which
// vars_files entries were matched so the reconstructor can filter the
// emitted list down to the unresolved remainder.
func playBlocks(pc completions.PlaybookContext, entries []varsFileEntry) (blocks []string, resolved map[string]bool) {
	resolved = make(map[string]bool)
	for _, e := range entries {
		if raw, ok := pc.VarInfiles[e.value]; ok {
			blocks = append(blocks, raw)
			resolved[e.value] = true
		}
	}
	for _, key := range sortedKeys(pc.IncludeVars) {
		blocks = append(blocks, pc.IncludeVars[key])
	}
	return blocks, resolved
}

// roleBlocks collects the variable blocks for a task file inside a role:
// every defaults/ file first, then every vars/ file, so vars override
// defaults when the model resolves them.
func roleBlocks(rc completions.RoleContext) []string {
	var blocks []string
	for _, key := range sortedKeys(rc.RoleVars.Defaults) {
		blocks = append(blocks, rc.RoleVars.Defaults[key])
	}
	for _, key := range sortedKeys(rc.RoleVars.Vars) {
		blocks = append(blocks, rc.RoleVars.Vars[key])
	}
	return blocks
}

// standaloneBlocks collects the include_vars blocks for a standalone
// task file.
func standaloneBlocks(tc completions.StandaloneTaskContext) []string {
	var blocks []string
	for _, key := range sortedKeys(tc.IncludeVars) {
		blocks = append(blocks, tc.IncludeVars[key])
	}
	return blocks
}

// sortedKeys gives map iteration a stable order. Go maps randomize
// iteration, so ascending key order stands in for the insertion order
// the wire format implies.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// indentBlock left-pads every non-empty line of a raw variable block.
// Results are memoized: editors resend identical role and var-file
// contents on every keystroke, so the same blocks render over and over.
func (s *Stage) indentBlock(raw string, indent int) string {
	key := strconv.Itoa(indent) + "\x00" + raw
	if s.blocks != nil {
		if cached, ok := s.blocks.Get(key); ok {
			return cached
		}
	}

	pad := strings.Repeat(" ", indent)
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	rendered := strings.Join(lines, "\n")

	if s.blocks != nil {
		s.blocks.Add(key, rendered)
	}
	return rendered
}
