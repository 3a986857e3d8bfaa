// Package preprocess implements the completion prompt pre-processing
// pipeline: multi-task shorthand validation, tolerant YAML fragment
// parsing, variable scope merging, and prompt reconstruction. The stage
// is a pure one-shot transform over an in-memory payload; it does no I/O
// and is safe to invoke concurrently for independent requests.
package preprocess

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/anvil/core/completions"
)

// blockCacheSize bounds the indented-block memo. Blocks repeat across
// keystrokes but the working set per editor session is small.
const blockCacheSize = 256

// Options carries the process-wide switches the stage dispatches on.
// They are injected by the caller rather than read from configuration so
// the stage stays testable in isolation.
type Options struct {
	// AdditionalContextEnabled gates variable injection entirely. When
	// false every request gets passthrough reconstruction, regardless of
	// file type or caller capability.
	AdditionalContextEnabled bool

	// MultiTaskDelimiter separates shorthand task names inside a
	// trailing comment. Empty means DefaultMultiTaskDelimiter.
	MultiTaskDelimiter string
}

// Stage transforms a completion request's prompt into the context text
// handed to the inference model.
type Stage struct {
	opts   Options
	blocks *lru.Cache[string, string]
	logger *slog.Logger
}

// NewStage builds a pre-processing stage. logger may be nil, in which
// case slog.Default() is used.
func NewStage(opts Options, logger *slog.Logger) *Stage {
	if opts.MultiTaskDelimiter == "" {
		opts.MultiTaskDelimiter = DefaultMultiTaskDelimiter
	}
	if logger == nil {
		logger = slog.Default()
	}

	blocks, err := lru.New[string, string](blockCacheSize)
	if err != nil {
		blocks = nil
	}

	return &Stage{opts: opts, blocks: blocks, logger: logger}
}

// Process validates the prompt and populates cc.Payload.Context with the
// reconstructed document. On error the payload is left unmodified: a
// *InvalidYAMLError for multi-task shorthand violations, or an error
// wrapping ErrInvalidPrompt for unrecoverable structural corruption.
func (s *Stage) Process(cc *completions.CompletionContext) error {
	prompt := cc.Payload.Prompt

	if isTaskComment(prompt) {
		if diags := validateTaskComment(prompt, s.opts.MultiTaskDelimiter); len(diags) > 0 {
			s.logger.Debug("multi-task validation failed",
				slog.String("documentUri", cc.Metadata.DocumentURI),
				slog.Int("diagnostics", len(diags)))
			return &InvalidYAMLError{Diagnostics: diags}
		}
	}

	context, err := s.buildContext(cc)
	if err != nil {
		return err
	}

	cc.Payload.Context = context
	return nil
}

// buildContext picks the merge strategy for the request's file type.
// Injection requires both the feature flag and a commercial caller;
// otherwise the prompt passes through minus marker and partial line.
func (s *Stage) buildContext(cc *completions.CompletionContext) (string, error) {
	prompt := cc.Payload.Prompt
	if !s.opts.AdditionalContextEnabled || !cc.Request.CommercialUser {
		return passthrough(prompt), nil
	}

	ac := cc.Metadata.AdditionalContext
	switch cc.Metadata.AnsibleFileType {
	case completions.FileTypePlaybook:
		frag, err := parseFragment(promptBody(prompt), false)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
		}
		return s.reconstructPlaybook(frag, ac.PlaybookContext), nil

	case completions.FileTypeTasksInRole:
		return s.buildTaskContext(prompt, roleBlocks(ac.RoleContext))

	case completions.FileTypeTasks:
		return s.buildTaskContext(prompt, standaloneBlocks(ac.StandaloneTaskContext))

	default:
		return passthrough(prompt), nil
	}
}

// buildTaskContext handles the two bare-task-sequence file types, which
// share the synthesized set_fact injection pattern.
func (s *Stage) buildTaskContext(prompt string, blocks []string) (string, error) {
	if len(blocks) == 0 {
		return passthrough(prompt), nil
	}

	body := promptBody(prompt)
	if _, err := parseFragment(body, true); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
	}
	return s.reconstructTasks(body, blocks), nil
}
