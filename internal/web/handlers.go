package web

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/screenflow/internal/credential"
	"github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/session"
)

// uploadField is the multipart field the compose form posts images under.
const uploadField = "images"

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	deps     Deps
	session  *session.Controller
	renderer *Renderer
}

func newHandlers(d Deps, renderer *Renderer) *Handlers {
	return &Handlers{deps: d, session: d.Session, renderer: renderer}
}

// HandleSession handles GET /: the compose or history-view page.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	st := h.session.State()

	data := SessionPageData{
		PageData: PageData{
			Title:   "Analyze",
			Version: h.renderer.version,
			Nav:     "analyze",
			Flash:   r.URL.Query().Get("flash"),
		},
		State:         st,
		Builtins:      h.deps.Prompts.ListBuiltins(),
		Custom:        h.deps.Prompts.ListCustom(),
		TagsText:      strings.Join(st.Tags, ", "),
		HasCredential: h.hasCredential(r),
		HistorySize:   h.deps.History.Size(),
	}
	if res := st.Result; res != nil {
		if res.Err != nil {
			data.ResultError = res.Err.Error()
			var fErr *errors.FlowError
			if stderrors.As(res.Err, &fErr) {
				data.ResultError = fErr.Message
			}
		} else {
			data.ResultHTML = renderMarkdown(res.AnalysisText)
		}
	}
	if st.ViewingID != "" {
		if sub, _, ok := h.deps.History.Find(st.ViewingID); ok {
			data.Viewing = &sub
		}
	}

	h.renderer.renderPage(w, r, "session", data)
}

// HandleUpload handles POST /images: attach uploaded screenshots in order.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.deps.Config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("upload too large or malformed"))
		return
	}

	var sources []imageset.Source
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File[uploadField] {
			f, err := fh.Open()
			if err != nil {
				h.renderer.renderError(w, r, errors.NewInvalidRequest("cannot read upload: "+fh.Filename))
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				h.renderer.renderError(w, r, errors.NewInvalidRequest("cannot read upload: "+fh.Filename))
				return
			}
			sources = append(sources, imageset.BytesSource{
				Filename: fh.Filename,
				Data:     data,
				MIMEType: fh.Header.Get("Content-Type"),
			})
		}
	}

	added, err := h.session.Attach(r.Context(), sources...)
	if err != nil && errors.Is(err, errors.ErrReadOnly) {
		h.renderer.renderError(w, r, err)
		return
	}
	// Partial failures leave the readable images attached.
	if err != nil {
		h.renderer.log.Warn("some uploads could not be read", "error", err)
	}

	h.done(w, r, "/", map[string]any{"attached": len(added)})
}

// HandleDraftImage handles GET /images/{id}: serve a draft image's bytes.
func (h *Handlers) HandleDraftImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, ok := h.session.DraftImage(id)
	if !ok {
		h.renderer.renderError(w, r, errors.NewNotFound("image", id))
		return
	}
	writeImage(w, item.MIMEType, item.Payload)
}

// HandleRemoveImage handles POST /images/{id}/remove.
func (h *Handlers) HandleRemoveImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := h.session.RemoveImage(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !removed {
		h.renderer.renderError(w, r, errors.NewNotFound("image", id))
		return
	}
	h.done(w, r, "/", map[string]any{"removed": true, "id": id})
}

// HandleMoveImage handles POST /images/{id}/move: reorder to form field "to".
func (h *Handlers) HandleMoveImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	to, err := strconv.Atoi(r.FormValue("to"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("to must be an integer"))
		return
	}

	id := r.PathValue("id")
	moved, err := h.session.ReorderImage(id, to)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !moved {
		h.renderer.renderError(w, r, errors.NewNotFound("image", id))
		return
	}
	h.done(w, r, "/", map[string]any{"moved": true, "id": id})
}

// HandleDraft handles POST /draft: update prompt, project and tags.
// Fields missing from the form are left untouched.
func (h *Handlers) HandleDraft(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if _, ok := r.PostForm["prompt"]; ok {
		if err := h.session.SetPrompt(r.PostFormValue("prompt")); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	if _, ok := r.PostForm["project"]; ok {
		if err := h.session.SetProject(r.PostFormValue("project")); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	if _, ok := r.PostForm["tags"]; ok {
		if err := h.session.SetTags(history.ParseTags(r.PostFormValue("tags"))); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}

	h.done(w, r, "/", map[string]any{"updated": true})
}

// HandleTemplate handles POST /draft/template: copy a template into the draft.
func (h *Handlers) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	id := r.FormValue("template_id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("template_id is required"))
		return
	}
	if err := h.session.UseTemplate(id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.done(w, r, "/", map[string]any{"template_id": id})
}

// HandleAnalyze handles POST /analyze: submit the draft. A transport
// failure is shown on the page; the draft stays for a retry.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Submit(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		if res.Err != nil {
			h.renderer.renderError(w, r, res.Err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{
			"submission_id": res.SubmissionID,
			"analysis":      res.AnalysisText,
		})
		return
	}
	h.done(w, r, "/", nil)
}

// HandleNew handles POST /new: discard the draft and start over.
func (h *Handlers) HandleNew(w http.ResponseWriter, r *http.Request) {
	h.session.StartNew()
	h.done(w, r, "/", map[string]any{"mode": session.ModeComposing})
}

// HandleNavigate handles POST /navigate: move through the filtered history
// by form field "delta".
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	delta, err := strconv.Atoi(r.FormValue("delta"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("delta must be an integer"))
		return
	}
	h.session.Navigate(delta)
	h.done(w, r, "/", map[string]any{"cursor": h.session.State().Cursor})
}

// HandleHistory handles GET /history: filtered list with project and tag facets.
// Query parameters replace the session filter when present.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("q") || q.Has("project") {
		h.session.SetFilter(history.Query{SearchText: q.Get("q"), Project: q.Get("project")})
	}

	st := h.session.State()
	filtered := h.session.Filtered()

	rows := make([]HistoryRow, 0, len(filtered))
	for i, sub := range filtered {
		rows = append(rows, HistoryRow{
			Index:   i,
			Summary: history.Summarize(sub),
			Viewing: sub.ID == st.ViewingID,
		})
	}

	if wantsJSON(r) {
		items := make([]history.Summary, 0, len(rows))
		for _, row := range rows {
			items = append(items, row.Summary)
		}
		renderJSON(w, http.StatusOK, map[string]any{
			"items":    items,
			"filter":   st.Filter,
			"projects": h.session.Projects(),
			"tags":     h.session.Tags(),
			"total":    h.deps.History.Size(),
		})
		return
	}

	h.renderer.renderPage(w, r, "history", HistoryPageData{
		PageData: PageData{
			Title:   "History",
			Version: h.renderer.version,
			Nav:     "history",
		},
		Rows:     rows,
		Query:    st.Filter,
		Projects: h.session.Projects(),
		Tags:     h.session.Tags(),
		Total:    h.deps.History.Size(),
		Capacity: history.Capacity,
		Degraded: h.deps.History.Degraded(),
	})
}

// HandleView handles POST /view/{index}: show an entry of the filtered view.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("index must be an integer"))
		return
	}
	if err := h.session.LoadFromHistory(index); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.done(w, r, "/", map[string]any{"cursor": index})
}

// HandleDelete handles DELETE /history/{id} and POST /history/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("submission ID is required"))
		return
	}

	deleted := h.session.DeleteSubmission(r.Context(), id)
	h.done(w, r, "/history", map[string]any{"deleted": deleted, "id": id})
}

// HandleClear handles POST /history/clear: remove every archived entry.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	n := h.deps.History.Size()
	h.session.ClearHistory(r.Context())
	h.done(w, r, "/history", map[string]any{"cleared": n})
}

// HandleArchivedImage handles GET /history/{id}/images/{n}.
func (h *Handlers) HandleArchivedImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, _, ok := h.deps.History.Find(id)
	if !ok {
		h.renderer.renderError(w, r, errors.NewNotFound("submission", id))
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 || n >= len(sub.Images) {
		h.renderer.renderError(w, r, errors.NewNotFound("image", id+"/"+r.PathValue("n")))
		return
	}
	img := sub.Images[n]
	if len(img.Payload) == 0 {
		h.renderer.renderError(w, r, errors.NewNotFound("image", id+"/"+r.PathValue("n")))
		return
	}
	writeImage(w, img.MIMEType, img.Payload)
}

// HandlePrompts handles GET /prompts: built-in and saved templates.
func (h *Handlers) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	lib := h.deps.Prompts
	preferred := lib.Preferred()

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"builtins":  lib.ListBuiltins(),
			"custom":    lib.ListCustom(),
			"preferred": preferred,
		})
		return
	}

	h.renderer.renderPage(w, r, "prompts", PromptsPageData{
		PageData: PageData{
			Title:   "Prompts",
			Version: h.renderer.version,
			Nav:     "prompts",
		},
		Builtins:  lib.ListBuiltins(),
		Custom:    lib.ListCustom(),
		Preferred: preferred,
		IsDefault: preferred == prompts.DefaultText(),
	})
}

// HandleSavePrompt handles POST /prompts: save a custom template.
func (h *Handlers) HandleSavePrompt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	c, err := h.deps.Prompts.Save(r.Context(), r.FormValue("name"), r.FormValue("text"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.done(w, r, "/prompts", c)
}

// HandleDeletePrompt handles POST /prompts/{id}/delete.
func (h *Handlers) HandleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := h.deps.Prompts.Delete(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !deleted {
		h.renderer.renderError(w, r, errors.NewNotFound("prompt", id))
		return
	}
	h.done(w, r, "/prompts", map[string]any{"deleted": true, "id": id})
}

// HandleSetPreferred handles POST /prompts/preferred. The text comes from
// form field "text", or from the template named by "template_id".
func (h *Handlers) HandleSetPreferred(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	text := r.FormValue("text")
	if id := r.FormValue("template_id"); id != "" {
		t, err := h.deps.Prompts.Lookup(id)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		text = t
	}

	if err := h.deps.Prompts.SetPreferred(r.Context(), text); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.done(w, r, "/prompts", map[string]any{"preferred": text})
}

// HandleResetPreferred handles POST /prompts/preferred/reset.
func (h *Handlers) HandleResetPreferred(w http.ResponseWriter, r *http.Request) {
	h.deps.Prompts.ResetPreferred(r.Context())
	h.done(w, r, "/prompts", map[string]any{"preferred": prompts.DefaultText()})
}

// HandleSettings handles GET /settings: credential status and provider.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	key, ok, err := h.deps.Credentials.Load(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "settings", SettingsPageData{
		PageData: PageData{
			Title:   "Settings",
			Version: h.renderer.version,
			Nav:     "settings",
			Flash:   r.URL.Query().Get("flash"),
		},
		HasCredential: ok,
		Masked:        credential.Mask(key),
		Provider:      h.deps.Config.Provider,
		Model:         h.deps.Config.Model,
	})
}

// HandleSaveCredential handles POST /settings/credential. An empty
// api_key clears the stored credential.
func (h *Handlers) HandleSaveCredential(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if err := h.deps.Credentials.Save(r.Context(), strings.TrimSpace(r.FormValue("api_key"))); err != nil {
		h.renderer.renderError(w, r, errors.NewStorage(err))
		return
	}
	h.done(w, r, "/settings?flash=saved", map[string]any{"hasKey": h.hasCredential(r)})
}

// HandleAPIState handles GET /api/state: the session state as JSON.
func (h *Handlers) HandleAPIState(w http.ResponseWriter, r *http.Request) {
	st := h.session.State()
	out := map[string]any{
		"state":      st,
		"can_submit": st.CanSubmit(),
		"has_prev":   st.HasPrev(),
		"has_next":   st.HasNext(),
	}
	if res := st.Result; res != nil {
		result := map[string]any{"submission_id": res.SubmissionID, "analysis": res.AnalysisText}
		if res.Err != nil {
			result["error"] = res.Err.Error()
			result["reason"] = errors.Reason(res.Err)
		}
		out["result"] = result
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleAPIConfig handles GET /api/config: whether a credential is set.
func (h *Handlers) HandleAPIConfig(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"hasKey": h.hasCredential(r)})
}

type apiConfigInput struct {
	APIKey string `json:"apiKey"`
}

// HandleAPISaveConfig handles POST /api/config with body {"apiKey": "..."}.
func (h *Handlers) HandleAPISaveConfig(w http.ResponseWriter, r *http.Request) {
	var in apiConfigInput
	if err := decodeJSON(r, &in); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid JSON body"))
		return
	}
	if err := h.deps.Credentials.Save(r.Context(), strings.TrimSpace(in.APIKey)); err != nil {
		h.renderer.renderError(w, r, errors.NewStorage(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) hasCredential(r *http.Request) bool {
	_, ok, err := h.deps.Credentials.Load(r.Context())
	return err == nil && ok
}

// done finishes a state-changing request: HX-Redirect for HTMX, a JSON body
// when asked for one, otherwise a redirect back to location.
func (h *Handlers) done(w http.ResponseWriter, r *http.Request, location string, payload any) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		if payload == nil {
			payload = map[string]any{"ok": true}
		}
		renderJSON(w, http.StatusOK, payload)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func writeImage(w http.ResponseWriter, mimeType string, payload []byte) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
