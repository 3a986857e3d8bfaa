package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/anvil/core/completions"
)

// =============================================================================
// Fixtures
// =============================================================================

const varsWeb = `web_app:
  image: registry.example.com/web:latest
  port: 8080
  state: started`

const varsDB = `database_settings:
  - password: ""
  - pool:
      size: 5`

const varsInclude = `var_from_include_vars: ""`

const varsRoleDefaults = `proxy_role: ""`

const varsRoleVars = `_proxy_packages:
  server:
    - nginx
  client:
    - curl
proxy_packages: ""`

const playbookPrompt = `---
- hosts: all
  remote_user: root
  vars:
    favcolor: blue
  vars_files:
    - ./vars/external_vars_1.yml
    - ./vars/external_vars_2.yml
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
    - name: Start the web container
`

const taskPrompt = `---
- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

- name: install proxy packages
`

// indent mirrors how injected blocks are padded in expected outputs.
func indent(raw string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func playbookContext() completions.PlaybookContext {
	return completions.PlaybookContext{
		VarInfiles: map[string]string{
			"./vars/external_vars_1.yml": varsWeb,
			"./vars/external_vars_2.yml": varsDB,
		},
		IncludeVars: map[string]string{
			"/home/user/ansible/vars/external_vars_3.yml": varsInclude,
		},
	}
}

func playbookPayload(prompt string) *completions.CompletionContext {
	return &completions.CompletionContext{
		Request: completions.RequestInfo{CommercialUser: true},
		Payload: &completions.APIPayload{Prompt: prompt, OriginalPrompt: prompt},
		Metadata: completions.Metadata{
			AnsibleFileType: completions.FileTypePlaybook,
			AdditionalContext: completions.AdditionalContext{
				PlaybookContext: playbookContext(),
			},
		},
	}
}

func taskPayload(fileType completions.FileType, prompt string, ac completions.AdditionalContext) *completions.CompletionContext {
	return &completions.CompletionContext{
		Request: completions.RequestInfo{CommercialUser: true},
		Payload: &completions.APIPayload{Prompt: prompt, OriginalPrompt: prompt},
		Metadata: completions.Metadata{
			AnsibleFileType:   fileType,
			AdditionalContext: ac,
		},
	}
}

func enabledStage() *Stage {
	return NewStage(Options{AdditionalContextEnabled: true}, nil)
}

func disabledStage() *Stage {
	return NewStage(Options{}, nil)
}

// playbookContextWithVars is the playbook prompt after injection: inline
// vars wholly replaced by the var-file and include-vars blocks, both
// vars_files entries resolved away, partial task line removed.
var playbookContextWithVars = `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + "\n" + indent(varsDB, 4) + "\n" + indent(varsInclude, 4) + `
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
`

// playbookContextPassthrough is the same prompt minus the document
// marker and the partial task line, untouched otherwise.
const playbookContextPassthrough = `- hosts: all
  remote_user: root
  vars:
    favcolor: blue
  vars_files:
    - ./vars/external_vars_1.yml
    - ./vars/external_vars_2.yml
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
`

// =============================================================================
// Playbook injection
// =============================================================================

func TestPlaybookInjectsAdditionalContext(t *testing.T) {
	cc := playbookPayload(playbookPrompt)

	require.NoError(t, enabledStage().Process(cc))
	assert.Equal(t, playbookContextWithVars, cc.Payload.Context)
	assert.Equal(t, playbookPrompt, cc.Payload.Prompt, "prompt must not be mutated")
}

func TestPlaybookInlineVarsFullyReplaced(t *testing.T) {
	// The inline web_app collides with the injected block's top-level
	// key. Replacement is wholesale: no trace of the inline values, the
	// unique key included, survives.
	prompt := strings.Replace(playbookPrompt,
		"  vars:\n    favcolor: blue\n",
		"  vars:\n    web_app:\n      image: local_image\n      unique: local_only\n", 1)
	cc := playbookPayload(prompt)

	require.NoError(t, enabledStage().Process(cc))
	assert.Equal(t, playbookContextWithVars, cc.Payload.Context)
	assert.NotContains(t, cc.Payload.Context, "local_image")
	assert.NotContains(t, cc.Payload.Context, "local_only")
}

func TestPlaybookKeepsUnresolvedVarsFiles(t *testing.T) {
	prompt := strings.Replace(playbookPrompt,
		"    - ./vars/external_vars_2.yml\n",
		"    - ./vars/external_vars_2.yml\n    - ./vars/external_vars_9.yml\n", 1)
	cc := playbookPayload(prompt)

	require.NoError(t, enabledStage().Process(cc))

	expected := `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + "\n" + indent(varsDB, 4) + "\n" + indent(varsInclude, 4) + `
  vars_files:
    - ./vars/external_vars_9.yml
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestPlaybookVarsFilesBeforeVars(t *testing.T) {
	// Key order is free in a play mapping; the injected block must land
	// once, at the earlier section, and the later inline vars must still
	// be replaced rather than re-emitted.
	prompt := `---
- hosts: all
  remote_user: root
  vars_files:
    - ./vars/external_vars_1.yml
  vars:
    favcolor: blue
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
    - name: Start the web container
`
	cc := playbookPayload(prompt)
	cc.Metadata.AdditionalContext.PlaybookContext.VarInfiles = map[string]string{
		"./vars/external_vars_1.yml": varsWeb,
	}

	require.NoError(t, enabledStage().Process(cc))

	expected := `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + "\n" + indent(varsInclude, 4) + `
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
`
	assert.Equal(t, expected, cc.Payload.Context)
	assert.Equal(t, 1, strings.Count(cc.Payload.Context, "  vars:\n"))
}

func TestPlaybookWithoutPreexistingVars(t *testing.T) {
	prompt := `---
- hosts: all
  remote_user: root
  vars_files:
    - ./vars/external_vars_1.yml
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
    - name: Start the web container
`
	cc := playbookPayload(prompt)

	require.NoError(t, enabledStage().Process(cc))

	expected := `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + "\n" + indent(varsInclude, 4) + `
  tasks:
    - name: Include variable
      ansible.builtin.include_vars:
        file: ./vars/external_vars_3.yml
`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestPlaybookWithHandlers(t *testing.T) {
	prompt := `---
- hosts: all
  remote_user: root
  vars_files:
    - ./vars/external_vars_1.yml
  handlers:
    - name: Restart web
      ansible.builtin.service:
        name: web
        state: restarted
    - name: Start the web container
`
	cc := playbookPayload(prompt)

	require.NoError(t, enabledStage().Process(cc))

	expected := `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + "\n" + indent(varsInclude, 4) + `
  handlers:
    - name: Restart web
      ansible.builtin.service:
        name: web
        state: restarted
`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestPlaybookWithTwoPlays(t *testing.T) {
	prompt := `---
- hosts: all
  remote_user: root
  vars_files:
    - ./vars/external_vars_1.yml
  tasks:
    - name: Print hello
      ansible.builtin.debug:
        msg: Hello
- hosts: all
  remote_user: root
  vars_files:
    - ./vars/external_vars_1.yml
  tasks:
    - name: Print goodbye
`
	cc := playbookPayload(prompt)
	cc.Metadata.AdditionalContext.PlaybookContext = completions.PlaybookContext{
		VarInfiles: map[string]string{"./vars/external_vars_1.yml": varsWeb},
	}

	require.NoError(t, enabledStage().Process(cc))

	expected := `- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + `
  tasks:
    - name: Print hello
      ansible.builtin.debug:
        msg: Hello

- hosts: all
  remote_user: root
  vars:
` + indent(varsWeb, 4) + `
  tasks:
`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestPlaybookMultiTaskCommentStillInjects(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(playbookPrompt, "\n"), "\n")
	lines[len(lines)-1] = "    # do this & do that"
	cc := playbookPayload(strings.Join(lines, "\n") + "\n")

	require.NoError(t, enabledStage().Process(cc))
	assert.Equal(t, playbookContextWithVars, cc.Payload.Context)
}

// =============================================================================
// Gates
// =============================================================================

func TestPlaybookFeatureDisabledPassesThrough(t *testing.T) {
	cc := playbookPayload(playbookPrompt)

	require.NoError(t, disabledStage().Process(cc))
	assert.Equal(t, playbookContextPassthrough, cc.Payload.Context)
}

func TestPlaybookNonCommercialPassesThrough(t *testing.T) {
	cc := playbookPayload(playbookPrompt)
	cc.Request.CommercialUser = false

	require.NoError(t, enabledStage().Process(cc))
	assert.Equal(t, playbookContextPassthrough, cc.Payload.Context)
}

func TestOtherFileTypePassesThrough(t *testing.T) {
	cc := taskPayload(completions.FileTypeOther, taskPrompt, completions.AdditionalContext{
		StandaloneTaskContext: completions.StandaloneTaskContext{
			IncludeVars: map[string]string{"main.yml": varsRoleDefaults},
		},
	})

	require.NoError(t, enabledStage().Process(cc))

	expected := `- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

`
	assert.Equal(t, expected, cc.Payload.Context)
}

// =============================================================================
// Role and standalone task injection
// =============================================================================

func TestTasksInRoleInjectsSetFact(t *testing.T) {
	cc := taskPayload(completions.FileTypeTasksInRole, taskPrompt, completions.AdditionalContext{
		RoleContext: completions.RoleContext{
			RoleVars: completions.RoleVars{
				Defaults: map[string]string{"main.yml": varsRoleDefaults},
				Vars:     map[string]string{"main.yml": varsRoleVars},
			},
		},
	})

	require.NoError(t, enabledStage().Process(cc))

	expected := `- name: Set variables from context
  ansible.builtin.set_fact:
` + indent(varsRoleDefaults, 4) + "\n" + indent(varsRoleVars, 4) + `

- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestTasksInRoleFeatureDisabled(t *testing.T) {
	cc := taskPayload(completions.FileTypeTasksInRole, taskPrompt, completions.AdditionalContext{
		RoleContext: completions.RoleContext{
			RoleVars: completions.RoleVars{
				Defaults: map[string]string{"main.yml": varsRoleDefaults},
			},
		},
	})

	require.NoError(t, disabledStage().Process(cc))

	expected := `- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestStandaloneTasksInjectSetFact(t *testing.T) {
	cc := taskPayload(completions.FileTypeTasks, taskPrompt, completions.AdditionalContext{
		StandaloneTaskContext: completions.StandaloneTaskContext{
			IncludeVars: map[string]string{"main.yml": varsRoleDefaults},
		},
	})

	require.NoError(t, enabledStage().Process(cc))

	expected := `- name: Set variables from context
  ansible.builtin.set_fact:
` + indent(varsRoleDefaults, 4) + `

- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

`
	assert.Equal(t, expected, cc.Payload.Context)
}

func TestStandaloneTasksNoContextPassesThrough(t *testing.T) {
	cc := taskPayload(completions.FileTypeTasks, taskPrompt, completions.AdditionalContext{})

	require.NoError(t, enabledStage().Process(cc))

	expected := `- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml
  run_once: true
  delegate_to: localhost

`
	assert.Equal(t, expected, cc.Payload.Context)
}

// =============================================================================
// Quote normalization
// =============================================================================

func TestQuotedTaskNamesNormalized(t *testing.T) {
	prompt := `---
- name: "import assert.yml"
  ansible.builtin.import_tasks: assert.yml

- name: "install proxy packages"
`
	cc := taskPayload(completions.FileTypeTasks, prompt, completions.AdditionalContext{})

	require.NoError(t, enabledStage().Process(cc))

	expected := `- name: import assert.yml
  ansible.builtin.import_tasks: assert.yml

`
	assert.Equal(t, expected, cc.Payload.Context)

	// Re-running the transform over its own output changes nothing.
	again := taskPayload(completions.FileTypeTasks, cc.Payload.Context+"- name: next\n", completions.AdditionalContext{})
	require.NoError(t, enabledStage().Process(again))
	assert.Equal(t, expected, again.Payload.Context)
}

// =============================================================================
// Failure paths
// =============================================================================

func TestMultiTaskViolationsAbort(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(taskPrompt, "\n"), "\n")
	lines[len(lines)-1] = "# install: apache & - start it &"
	cc := taskPayload(completions.FileTypeTasks, strings.Join(lines, "\n")+"\n", completions.AdditionalContext{})

	err := enabledStage().Process(cc)
	require.Error(t, err)

	var invalid *InvalidYAMLError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{
		"Task 'install: apache' invalid at column 8. Task contains a colon.",
		"Task '- start it' invalid at column 1. Task starts with a hyphen.",
		"Empty task definition.",
	}, invalid.Messages())
	assert.Empty(t, cc.Payload.Context, "payload must be untouched on failure")
}

func TestStructuralCorruptionAborts(t *testing.T) {
	prompt := "---\n- hosts: all\n\tremote_user: root\n  tasks:\n    - name: partial\n"
	cc := playbookPayload(prompt)

	err := enabledStage().Process(cc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPrompt)
	assert.Empty(t, cc.Payload.Context)
}
