package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"history", "prompt", "screens"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"history_list": {
		def:     historyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryList },
	},
	"history_fetch": {
		def:     historyFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryFetch },
	},
	"history_delete": {
		def:     historyDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryDelete },
	},
	"history_clear": {
		def:     historyClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryClear },
	},
	"history_export": {
		def:     historyExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryExport },
	},
	"history_import": {
		def:     historyImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryImport },
	},
	"prompt_list": {
		def:     promptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptList },
	},
	"prompt_save": {
		def:     promptSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptSave },
	},
	"prompt_delete": {
		def:     promptDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptDelete },
	},
	"screens_analyze": {
		def:     screensAnalyzeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScreensAnalyze },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "history_list" → "history").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with screenflow tools registered.
// Tools listed in DisabledTools or belonging to DisabledTypes are excluded
// from registration.
func NewServer(d Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"screenflow",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(d)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(d.Config.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range d.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(d Deps, version string) error {
	return server.ServeStdio(NewServer(d, version))
}
