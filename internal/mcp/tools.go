package mcp

import "github.com/mark3labs/mcp-go/mcp"

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List archived screenshot analyses, newest first. Optional case-insensitive search over analysis text, project and tags, and an exact project filter. Returns summaries plus the distinct projects and tags across all history."),
	mcp.WithString("query", mcp.Description("Case-insensitive substring to match")),
	mcp.WithString("project", mcp.Description("Exact project name")),
	mcp.WithNumber("limit", mcp.Description("Maximum items to return (default: all)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyFetchToolDef = mcp.NewTool("history_fetch",
	mcp.WithDescription("Fetch one archived analysis by id, or by position in history (0 = newest). Image payloads are omitted unless include_images is true."),
	mcp.WithString("id", mcp.Description("Submission id")),
	mcp.WithNumber("index", mcp.Description("Position in history, 0 = newest")),
	mcp.WithBoolean("include_images", mcp.Description("Include base64 image payloads (default: false)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyDeleteToolDef = mcp.NewTool("history_delete",
	mcp.WithDescription("Delete one archived analysis by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Submission id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var historyClearToolDef = mcp.NewTool("history_clear",
	mcp.WithDescription("Delete every archived analysis. Requires confirm=true."),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	mcp.WithDestructiveHintAnnotation(true),
)

var historyExportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export history (optionally filtered) to a JSONL file. Defaults to ~/.screenflow/exports."),
	mcp.WithString("path", mcp.Description("Output path ending in .jsonl")),
	mcp.WithString("query", mcp.Description("Case-insensitive substring to match")),
	mcp.WithString("project", mcp.Description("Exact project name")),
)

var historyImportToolDef = mcp.NewTool("history_import",
	mcp.WithDescription("Import submissions from a JSONL export. Existing ids are skipped (mode=skip) or abort the import (mode=error). History stays capped; the earliest entries are evicted."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to a .jsonl export")),
	mcp.WithString("mode", mcp.Description("skip (default) or error"), mcp.Enum("skip", "error")),
)

var promptListToolDef = mcp.NewTool("prompt_list",
	mcp.WithDescription("List built-in and saved prompt templates and the preferred prompt."),
	mcp.WithBoolean("include_text", mcp.Description("Include full template text (default: true)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var promptSaveToolDef = mcp.NewTool("prompt_save",
	mcp.WithDescription("Save a custom prompt template."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Template name")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Prompt text")),
)

var promptDeleteToolDef = mcp.NewTool("prompt_delete",
	mcp.WithDescription("Delete a saved prompt template. Built-in templates are read-only."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Template id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var screensAnalyzeToolDef = mcp.NewTool("screens_analyze",
	mcp.WithDescription("Analyze a sequence of screenshot files as one UI flow and archive the result in history. Images are sent in the given order; non-image files are skipped. The prompt defaults to the preferred prompt."),
	mcp.WithArray("paths", mcp.Required(), mcp.Description("Image file paths, in flow order"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("prompt", mcp.Description("Prompt text (overrides template_id)")),
	mcp.WithString("template_id", mcp.Description("Built-in or saved template id")),
	mcp.WithString("project", mcp.Description("Project label")),
	mcp.WithArray("tags", mcp.Description("Tags"), mcp.Items(map[string]any{"type": "string"})),
)
