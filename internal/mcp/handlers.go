package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/inference"
	"github.com/hpungsan/screenflow/internal/ops"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/submission"
)

// Deps are the collaborators MCP tools drive.
type Deps struct {
	History   *history.Store
	Prompts   *prompts.Library
	Builder   *submission.Builder
	Transport inference.Transport
	Config    *config.Config
	Env       ops.Env
	Logger    *slog.Logger
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	d   Deps
	log *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{d: d, log: logger.With("surface", "mcp")}
}

// Request types for each tool

// HistoryListRequest represents the arguments for history_list.
type HistoryListRequest struct {
	Query   string `json:"query,omitempty"`
	Project string `json:"project,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// HistoryFetchRequest represents the arguments for history_fetch.
type HistoryFetchRequest struct {
	ID            string `json:"id,omitempty"`
	Index         *int   `json:"index,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

// HistoryDeleteRequest represents the arguments for history_delete.
type HistoryDeleteRequest struct {
	ID string `json:"id"`
}

// HistoryClearRequest represents the arguments for history_clear.
type HistoryClearRequest struct {
	Confirm bool `json:"confirm"`
}

// HistoryExportRequest represents the arguments for history_export.
type HistoryExportRequest struct {
	Path    string `json:"path,omitempty"`
	Query   string `json:"query,omitempty"`
	Project string `json:"project,omitempty"`
}

// HistoryImportRequest represents the arguments for history_import.
type HistoryImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// PromptListRequest represents the arguments for prompt_list.
type PromptListRequest struct {
	IncludeText *bool `json:"include_text,omitempty"`
}

// PromptSaveRequest represents the arguments for prompt_save.
type PromptSaveRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// PromptDeleteRequest represents the arguments for prompt_delete.
type PromptDeleteRequest struct {
	ID string `json:"id"`
}

// ScreensAnalyzeRequest represents the arguments for screens_analyze.
type ScreensAnalyzeRequest struct {
	Paths      []string `json:"paths"`
	Prompt     string   `json:"prompt,omitempty"`
	TemplateID string   `json:"template_id,omitempty"`
	Project    string   `json:"project,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Output types

// HistoryListOutput is the result of history_list.
type HistoryListOutput struct {
	Items    []history.Summary `json:"items"`
	Matched  int               `json:"matched"`
	Total    int               `json:"total"`
	Projects []string          `json:"projects"`
	Tags     []string          `json:"tags"`
}

// PromptListOutput is the result of prompt_list.
type PromptListOutput struct {
	Builtins  []prompts.Template `json:"builtins"`
	Custom    []prompts.Custom   `json:"custom"`
	Preferred string             `json:"preferred"`
}

// AnalyzeOutput is the result of screens_analyze.
type AnalyzeOutput struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageCount int       `json:"image_count"`
	Skipped    int       `json:"skipped"`
	Project    string    `json:"project,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Analysis   string    `json:"analysis"`
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must be non-negative")), nil
	}

	all := h.d.History.Snapshot()
	matched := history.Filter(all, history.Query{SearchText: input.Query, Project: input.Project})

	items := make([]history.Summary, 0, len(matched))
	for i, s := range matched {
		if input.Limit > 0 && i >= input.Limit {
			break
		}
		items = append(items, history.Summarize(s))
	}

	return successResult(HistoryListOutput{
		Items:    items,
		Matched:  len(matched),
		Total:    len(all),
		Projects: history.DistinctProjects(all),
		Tags:     history.DistinctTags(all),
	})
}

// HandleHistoryFetch handles the history_fetch tool call.
func (h *Handlers) HandleHistoryFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var (
		sub history.Submission
		ok  bool
	)
	switch {
	case input.ID != "" && input.Index != nil:
		return errorResult(errors.NewInvalidRequest("specify either id or index, not both")), nil
	case input.ID != "":
		sub, _, ok = h.d.History.Find(input.ID)
		if !ok {
			return errorResult(errors.NewNotFound("submission", input.ID)), nil
		}
	case input.Index != nil:
		sub, ok = h.d.History.Get(*input.Index)
		if !ok {
			return errorResult(errors.NewInvalidRequest("history index out of range")), nil
		}
	default:
		return errorResult(errors.NewInvalidRequest("id or index is required")), nil
	}

	if !input.IncludeImages {
		for i := range sub.Images {
			sub.Images[i].Payload = nil
		}
	}
	return successResult(sub)
}

// HandleHistoryDelete handles the history_delete tool call.
func (h *Handlers) HandleHistoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	// An unknown id is a no-op; deleted reports whether anything was removed.
	deleted := h.d.History.DeleteByID(ctx, input.ID)
	return successResult(map[string]any{"deleted": deleted, "id": input.ID})
}

// HandleHistoryClear handles the history_clear tool call.
func (h *Handlers) HandleHistoryClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true")), nil
	}

	n := h.d.History.Size()
	h.d.History.Clear(ctx)
	return successResult(map[string]any{"cleared": n})
}

// HandleHistoryExport handles the history_export tool call.
func (h *Handlers) HandleHistoryExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.d.History, h.d.Config, h.d.Env, ops.ExportInput{
		Path:  input.Path,
		Query: history.Query{SearchText: input.Query, Project: input.Project},
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryImport handles the history_import tool call.
func (h *Handlers) HandleHistoryImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.d.History, h.d.Config, h.d.Env, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptList handles the prompt_list tool call.
func (h *Handlers) HandlePromptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out := PromptListOutput{
		Builtins:  h.d.Prompts.ListBuiltins(),
		Custom:    h.d.Prompts.ListCustom(),
		Preferred: h.d.Prompts.Preferred(),
	}
	if input.IncludeText != nil && !*input.IncludeText {
		for i := range out.Builtins {
			out.Builtins[i].Text = ""
		}
		for i := range out.Custom {
			out.Custom[i].Text = ""
		}
		out.Preferred = ""
	}
	return successResult(out)
}

// HandlePromptSave handles the prompt_save tool call.
func (h *Handlers) HandlePromptSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	c, err := h.d.Prompts.Save(ctx, input.Name, input.Text)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// HandlePromptDelete handles the prompt_delete tool call.
func (h *Handlers) HandlePromptDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	deleted, err := h.d.Prompts.Delete(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if !deleted {
		return errorResult(errors.NewNotFound("template", input.ID)), nil
	}
	return successResult(map[string]any{"deleted": true, "id": input.ID})
}

// HandleScreensAnalyze handles the screens_analyze tool call.
func (h *Handlers) HandleScreensAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScreensAnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	promptText, err := h.resolvePrompt(input)
	if err != nil {
		return errorResult(err), nil
	}

	sources := make([]imageset.Source, 0, len(input.Paths))
	for _, p := range input.Paths {
		sources = append(sources, imageset.FileSource{Path: p})
	}
	set := imageset.New(h.log)
	items, err := set.Attach(ctx, sources...)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	sub, err := h.d.Builder.Run(ctx, h.d.Transport, submission.Draft{
		PromptText: promptText,
		Project:    input.Project,
		Tags:       history.NormalizeTags(input.Tags),
	}, items)
	if err != nil {
		h.log.Warn("screens_analyze failed", "reason", errors.Reason(err), "error", err)
		return errorResult(err), nil
	}

	return successResult(AnalyzeOutput{
		ID:         sub.ID,
		Timestamp:  sub.Timestamp,
		ImageCount: len(sub.Images),
		Skipped:    len(input.Paths) - len(items),
		Project:    sub.Project,
		Tags:       sub.Tags,
		Analysis:   sub.AnalysisText,
	})
}

// resolvePrompt picks explicit text, then the named template, then the
// preferred prompt.
func (h *Handlers) resolvePrompt(input ScreensAnalyzeRequest) (string, error) {
	if strings.TrimSpace(input.Prompt) != "" {
		return input.Prompt, nil
	}
	if input.TemplateID != "" {
		return h.d.Prompts.Lookup(input.TemplateID)
	}
	return h.d.Prompts.Preferred(), nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var fErr *errors.FlowError
	if stderrors.As(err, &fErr) {
		// Keep wrapper context such as "paths[2]: ..." in the message.
		msg := fErr.Message
		if prefix := strings.TrimSuffix(err.Error(), fErr.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    fErr.Code,
			"message": msg,
			"status":  fErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if fErr.Code != errors.ErrInternal && fErr.Code != errors.ErrStorage && fErr.Details != nil {
			errorObj["details"] = fErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
