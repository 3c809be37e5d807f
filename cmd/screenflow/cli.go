package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/screenflow/internal/credential"
	"github.com/hpungsan/screenflow/internal/db"
	"github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/ops"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/submission"
	"github.com/hpungsan/screenflow/internal/web"
)

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "screenflow",
		Usage:   "Analyze sequences of UI screenshots as one user flow",
		Version: Version,
		Commands: []*cli.Command{
			analyzeCmd(d),
			historyCmd(d),
			promptsCmd(d),
			credentialCmd(d),
			serveCmd(d),
			infoCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// AnalyzeOutput is printed by the analyze command.
type AnalyzeOutput struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageCount int       `json:"image_count"`
	Project    string    `json:"project,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Analysis   string    `json:"analysis"`
}

// analyzeCmd creates the analyze command.
func analyzeCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze screenshots in order and archive the result (prompt may be piped via stdin)",
		ArgsUsage: "<image>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "Prompt text"},
			&cli.StringFlag{Name: "prompt-file", Usage: "Read prompt text from a file"},
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Built-in or saved template id"},
			&cli.StringFlag{Name: "project", Usage: "Project label"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
		},
		Action: func(c *cli.Context) error {
			promptText, err := resolvePrompt(c, d.prompts)
			if err != nil {
				return outputError(err)
			}

			sources := make([]imageset.Source, 0, c.NArg())
			for _, p := range c.Args().Slice() {
				sources = append(sources, imageset.FileSource{Path: p})
			}
			items, err := imageset.New(d.log).Attach(c.Context, sources...)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			sub, err := d.builder.Run(c.Context, d.transport, submission.Draft{
				PromptText: promptText,
				Project:    c.String("project"),
				Tags:       history.ParseTags(c.String("tags")),
			}, items)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(AnalyzeOutput{
				ID:         sub.ID,
				Timestamp:  sub.Timestamp,
				ImageCount: len(sub.Images),
				Project:    sub.Project,
				Tags:       sub.Tags,
				Analysis:   sub.AnalysisText,
			})
		},
	}
}

// resolvePrompt picks --prompt, --prompt-file, --template, piped stdin,
// then the preferred prompt, in that order.
func resolvePrompt(c *cli.Context, lib *prompts.Library) (string, error) {
	if p := c.String("prompt"); strings.TrimSpace(p) != "" {
		return p, nil
	}
	if path := c.String("prompt-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				return "", errors.NewFileNotFound(path)
			}
			return "", errors.NewInternal(err)
		}
		return string(data), nil
	}
	if id := c.String("template"); id != "" {
		return lib.Lookup(id)
	}
	if stdinHasData() {
		text, err := readStdin()
		if err != nil {
			return "", errors.NewInternal(err)
		}
		if text != "" {
			return text, nil
		}
	}
	return lib.Preferred(), nil
}

// historyCmd creates the history command group.
func historyCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse and manage archived analyses",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List archived analyses, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Case-insensitive search over analysis, project and tags"},
					&cli.StringFlag{Name: "project", Usage: "Exact project name"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum items (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					if c.Int("limit") < 0 {
						return outputError(errors.NewInvalidRequest("limit must be non-negative"))
					}
					all := d.history.Snapshot()
					matched := history.Filter(all, history.Query{SearchText: c.String("query"), Project: c.String("project")})

					items := make([]history.Summary, 0, len(matched))
					for i, s := range matched {
						if c.Int("limit") > 0 && i >= c.Int("limit") {
							break
						}
						items = append(items, history.Summarize(s))
					}
					return outputJSON(map[string]any{
						"items":    items,
						"matched":  len(matched),
						"total":    len(all),
						"projects": history.DistinctProjects(all),
						"tags":     history.DistinctTags(all),
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Show one analysis by position (0 = newest) or id",
				ArgsUsage: "<index|id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "copy", Aliases: []string{"c"}, Usage: "Copy the analysis text to the clipboard"},
					&cli.BoolFlag{Name: "images", Usage: "Include base64 image payloads"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("index or id is required"))
					}
					sub, err := lookupSubmission(d.history, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if c.Bool("copy") {
						if err := copyToClipboard(sub.AnalysisText); err != nil {
							return outputError(errors.NewInternal(fmt.Errorf("copy to clipboard: %w", err)))
						}
					}
					if !c.Bool("images") {
						for i := range sub.Images {
							sub.Images[i].Payload = nil
						}
					}
					return outputJSON(sub)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete one analysis",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("id is required"))
					}
					deleted := d.history.DeleteByID(c.Context, id)
					return outputJSON(map[string]any{"deleted": deleted, "id": id})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every analysis",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "confirm", Usage: "Required to clear"},
				},
				Action: func(c *cli.Context) error {
					if !c.Bool("confirm") {
						return outputError(errors.NewInvalidRequest("--confirm is required"))
					}
					n := d.history.Size()
					d.history.Clear(c.Context)
					return outputJSON(map[string]any{"cleared": n})
				},
			},
			{
				Name:  "export",
				Usage: "Export history to JSONL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Output path (default: ~/.screenflow/exports/<project|all>-<timestamp>.jsonl)"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Only export matching entries"},
					&cli.StringFlag{Name: "project", Usage: "Only export this project"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Export(c.Context, d.history, d.cfg, d.env, ops.ExportInput{
						Path:  c.String("path"),
						Query: history.Query{SearchText: c.String("query"), Project: c.String("project")},
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "import",
				Usage: "Import history from JSONL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Required: true, Usage: "Path to a .jsonl export"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "skip", Usage: "Duplicate handling: skip|error"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Import(c.Context, d.history, d.cfg, d.env, ops.ImportInput{
						Path: c.String("path"),
						Mode: ops.ImportMode(c.String("mode")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// lookupSubmission resolves a position or an id.
func lookupSubmission(store *history.Store, ref string) (history.Submission, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		if sub, ok := store.Get(i); ok {
			return sub, nil
		}
		return history.Submission{}, errors.NewInvalidRequest("history index out of range")
	}
	sub, _, ok := store.Find(ref)
	if !ok {
		return history.Submission{}, errors.NewNotFound("submission", ref)
	}
	return sub, nil
}

// promptsCmd creates the prompts command group.
func promptsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage prompt templates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List built-in and saved templates",
				Action: func(c *cli.Context) error {
					return outputJSON(map[string]any{
						"builtins":  d.prompts.ListBuiltins(),
						"custom":    d.prompts.ListCustom(),
						"preferred": d.prompts.Preferred(),
					})
				},
			},
			{
				Name:  "save",
				Usage: "Save a template (reads text from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Template name"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("template text must be piped via stdin"))
					}
					text, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					saved, err := d.prompts.Save(c.Context, c.String("name"), text)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(saved)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a saved template",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					deleted, err := d.prompts.Delete(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					if !deleted {
						return outputError(errors.NewNotFound("template", id))
					}
					return outputJSON(map[string]any{"deleted": true, "id": id})
				},
			},
			{
				Name:  "prefer",
				Usage: "Set the prompt new analyses start from (stdin or --template)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Template id"},
				},
				Action: func(c *cli.Context) error {
					var text string
					switch {
					case c.String("template") != "":
						t, err := d.prompts.Lookup(c.String("template"))
						if err != nil {
							return outputError(err)
						}
						text = t
					case stdinHasData():
						t, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						text = t
					}
					if err := d.prompts.SetPreferred(c.Context, text); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"preferred": text})
				},
			},
			{
				Name:  "reset",
				Usage: "Revert the preferred prompt to the default",
				Action: func(c *cli.Context) error {
					d.prompts.ResetPreferred(c.Context)
					return outputJSON(map[string]any{"preferred": prompts.DefaultText()})
				},
			},
		},
	}
}

// credentialCmd creates the credential command group.
func credentialCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "credential",
		Usage: "Manage the API credential",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Save the API key (reads from stdin)",
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("API key must be piped via stdin"))
					}
					key, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					if key == "" {
						return outputError(errors.NewInvalidRequest("API key is empty; use 'credential clear' to remove it"))
					}
					if err := d.creds.Save(c.Context, key); err != nil {
						return outputError(errors.NewStorage(err))
					}
					return outputJSON(map[string]any{"has_key": true, "masked": credential.Mask(key)})
				},
			},
			{
				Name:  "clear",
				Usage: "Remove the saved API key",
				Action: func(c *cli.Context) error {
					if err := d.creds.Save(c.Context, ""); err != nil {
						return outputError(errors.NewStorage(err))
					}
					return outputJSON(map[string]any{"has_key": false})
				},
			},
			{
				Name:  "status",
				Usage: "Show whether a key is configured",
				Action: func(c *cli.Context) error {
					key, ok, err := d.creds.Load(c.Context)
					if err != nil {
						return outputError(errors.NewStorage(err))
					}
					return outputJSON(map[string]any{
						"has_key":  ok,
						"masked":   credential.Mask(key),
						"provider": d.cfg.Provider,
						"model":    d.cfg.Model,
					})
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8420, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(d.webDeps(), Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, d.log)
		},
	}
}

// infoCmd creates the info command.
func infoCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show storage location and state",
		Action: func(c *cli.Context) error {
			out := map[string]any{
				"base_dir":         d.baseDir,
				"storage":          d.cfg.Storage,
				"provider":         d.cfg.Provider,
				"history_size":     d.history.Size(),
				"history_capacity": history.Capacity,
				"storage_degraded": d.storageDegraded,
				"history_degraded": d.history.Degraded(),
				"prompts_degraded": d.prompts.Degraded(),
				"custom_templates": len(d.prompts.ListCustom()),
			}
			if d.db != nil {
				keys, err := db.NewKV(d.db).Keys(c.Context)
				if err != nil {
					return outputError(errors.NewStorage(err))
				}
				out["keys"] = keys
			}
			return outputJSON(out)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var fErr *errors.FlowError
	if stderrors.As(err, &fErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", fErr.Code, fErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
