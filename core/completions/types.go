// Package completions defines the request-scoped data model shared by the
// completion pre-processing pipeline: the mutable API payload, request
// metadata, and the additional context collected from the user's workspace.
// Everything here lives for a single completion request and is discarded
// once the context has been computed.
package completions

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FileType identifies which kind of Ansible document a completion request
// targets. It selects the variable merge strategy during pre-processing.
type FileType int

const (
	// FileTypeOther covers unrecognized document kinds. Requests carrying
	// it pass through pre-processing without variable injection.
	FileTypeOther FileType = iota

	// FileTypePlaybook is a full playbook: a sequence of plays, each with
	// optional vars, vars_files, and tasks/handlers sections.
	FileTypePlaybook

	// FileTypeTasksInRole is a task file inside a role, whose variables
	// come from the role's defaults/ and vars/ directories.
	FileTypeTasksInRole

	// FileTypeTasks is a standalone task file with include_vars context.
	FileTypeTasks
)

var fileTypeNames = map[FileType]string{
	FileTypeOther:       "other",
	FileTypePlaybook:    "playbook",
	FileTypeTasksInRole: "tasks_in_role",
	FileTypeTasks:       "tasks",
}

// ParseFileType maps a wire-level document type string onto a FileType.
// Unrecognized values fall back to FileTypeOther rather than erroring,
// so new editor-side document kinds degrade to passthrough behavior.
func ParseFileType(s string) FileType {
	switch s {
	case "playbook":
		return FileTypePlaybook
	case "tasks_in_role":
		return FileTypeTasksInRole
	case "tasks":
		return FileTypeTasks
	default:
		return FileTypeOther
	}
}

func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return "other"
}

// MarshalJSON emits the wire-level name.
func (t FileType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts any string, mapping unknown values to
// FileTypeOther.
func (t *FileType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ansibleFileType: %w", err)
	}
	*t = ParseFileType(s)
	return nil
}

// PlaybookContext carries variable sources resolved for a playbook
// request. Keys of VarInfiles are the paths as they appear in the
// prompt's vars_files list; values are the raw YAML text of each file.
type PlaybookContext struct {
	VarInfiles  map[string]string `json:"varInfiles"`
	Roles       map[string]string `json:"roles"`
	IncludeVars map[string]string `json:"includeVars"`
}

// RoleVars holds the contents of a role's defaults/ and vars/ files,
// keyed by filename.
type RoleVars struct {
	Defaults map[string]string `json:"defaults"`
	Vars     map[string]string `json:"vars"`
}

// RoleContext carries variable sources for a task file inside a role.
type RoleContext struct {
	Name        string            `json:"name"`
	Tasks       []string          `json:"tasks"`
	RoleVars    RoleVars          `json:"roleVars"`
	IncludeVars map[string]string `json:"includeVars"`
}

// StandaloneTaskContext carries include_vars sources for a standalone
// task file.
type StandaloneTaskContext struct {
	IncludeVars map[string]string `json:"includeVars"`
}

// AdditionalContext bundles the three possible variable-source shapes.
// At most one member is meaningful for a given request; the file type in
// the metadata decides which.
type AdditionalContext struct {
	PlaybookContext       PlaybookContext       `json:"playbookContext"`
	RoleContext           RoleContext           `json:"roleContext"`
	StandaloneTaskContext StandaloneTaskContext `json:"standaloneTaskContext"`
}

// Metadata describes the document a completion request was issued from.
type Metadata struct {
	DocumentURI       string            `json:"documentUri"`
	AnsibleFileType   FileType          `json:"ansibleFileType"`
	ActivityID        uuid.UUID         `json:"activityId"`
	AdditionalContext AdditionalContext `json:"additionalContext"`
}

// APIPayload is the mutable request payload. The pre-processing stage
// owns Context exclusively; Prompt and OriginalPrompt are never touched.
type APIPayload struct {
	Prompt         string `json:"prompt"`
	OriginalPrompt string `json:"originalPrompt,omitempty"`
	Context        string `json:"context,omitempty"`
}

// RequestInfo holds the caller capability flags the pipeline dispatches
// on. They are threaded in explicitly so the stage stays a pure function
// of its inputs.
type RequestInfo struct {
	// CommercialUser marks callers entitled to additional-context
	// variable injection. Non-commercial callers always get passthrough.
	CommercialUser bool
}

// CompletionContext wraps everything one pre-process invocation needs.
type CompletionContext struct {
	Request  RequestInfo
	Payload  *APIPayload
	Metadata Metadata
}

// CompletionRequest is the wire shape of an inbound completion request.
type CompletionRequest struct {
	SuggestionID uuid.UUID `json:"suggestionId"`
	Prompt       string    `json:"prompt"`
	Metadata     Metadata  `json:"metadata"`
}

// NewCompletionContext builds the per-request context from a decoded
// request. The payload starts with Prompt and OriginalPrompt identical;
// Context is empty until the pre-process stage fills it.
func NewCompletionContext(req CompletionRequest, info RequestInfo) *CompletionContext {
	return &CompletionContext{
		Request: info,
		Payload: &APIPayload{
			Prompt:         req.Prompt,
			OriginalPrompt: req.Prompt,
		},
		Metadata: req.Metadata,
	}
}
