package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tripsync/internal/service"
)

// FolderHandler serves the folder list, a single folder's page, and the
// membership actions started from it (invite, leave).
type FolderHandler struct {
	folders Folders
	sharing Sharing
	render  Renderer
	logger  *slog.Logger
}

func NewFolderHandler(folders Folders, sharing Sharing, render Renderer, logger *slog.Logger) *FolderHandler {
	return &FolderHandler{folders: folders, sharing: sharing, render: render, logger: logger}
}

func folderPath(id string) string { return "/tripFolders/" + id }

// HandleList shows the caller's folders.
//
// HTTP: GET /tripFolders?scope=all|private|shared|recent&name=
func (h *FolderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := service.ParseScope(q.Get("scope"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/tripFolders", err, "Error displaying folders")
		return
	}
	folders, err := h.folders.List(r.Context(), currentUserID(r), scope, q.Get("name"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/", err, "Error displaying folders")
		return
	}
	h.show(w, r, "tripFolders/index", map[string]any{
		"folders": folders,
		"scope":   scope,
		"name":    q.Get("name"),
	})
}

// HandleCreate makes a new private folder and opens it.
//
// HTTP: POST /tripFolders (folderName, tripDate)
func (h *FolderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate("tripDate", r.PostFormValue("tripDate"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/tripFolders", err, "Error creating folder")
		return
	}
	folder, err := h.folders.Create(r.Context(), currentUserID(r), r.PostFormValue("folderName"), date)
	if err != nil {
		redirectWithError(w, r, h.logger, "/tripFolders", err, "Error creating folder")
		return
	}
	http.Redirect(w, r, folderPath(folder.ID), http.StatusSeeOther)
}

// HandleShow renders a folder with its files and members.
//
// HTTP: GET /tripFolders/{folderID}
func (h *FolderHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	page, err := h.folders.Get(r.Context(), currentUserID(r), chi.URLParam(r, "folderID"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/tripFolders", err, "Error displaying folder")
		return
	}
	h.show(w, r, "tripFolders/show", page)
}

// HandleUpdate renames the folder or moves its trip date.
//
// HTTP: PUT /tripFolders/{folderID}
func (h *FolderHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "folderID")
	date, err := parseDate("tripDate", r.PostFormValue("tripDate"))
	if err == nil {
		_, err = h.folders.Update(r.Context(), currentUserID(r), id, r.PostFormValue("folderName"), date)
	}
	if err != nil {
		redirectWithError(w, r, h.logger, folderPath(id), err, "Error updating folder")
		return
	}
	http.Redirect(w, r, folderPath(id), http.StatusSeeOther)
}

// HandleDelete deletes the folder for every member.
//
// HTTP: DELETE /tripFolders/{folderID}
func (h *FolderHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "folderID")
	if err := h.folders.Delete(r.Context(), currentUserID(r), id); err != nil {
		redirectWithError(w, r, h.logger, folderPath(id), err, "Error deleting folder")
		return
	}
	http.Redirect(w, r, "/tripFolders", http.StatusSeeOther)
}

// HandleLeave removes the caller from a shared folder.
//
// HTTP: PUT /tripFolders/{folderID}/leave
func (h *FolderHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "folderID")
	if err := h.sharing.Leave(r.Context(), currentUserID(r), id); err != nil {
		redirectWithError(w, r, h.logger, folderPath(id), err, "Error leaving folder")
		return
	}
	http.Redirect(w, r, "/tripFolders", http.StatusSeeOther)
}

// HandleInvite sends a share request to the user named in the form.
//
// HTTP: POST /tripFolders/{folderID}/invite (username)
func (h *FolderHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "folderID")
	name := r.PostFormValue("username")
	if err := h.sharing.Invite(r.Context(), currentUserID(r), name, id); err != nil {
		redirectWithError(w, r, h.logger, folderPath(id), err, "Error sending request")
		return
	}
	http.Redirect(w, r, withQuery(folderPath(id), "successMessage", "Request sent to "+name), http.StatusSeeOther)
}

func (h *FolderHandler) show(w http.ResponseWriter, r *http.Request, view string, data any) {
	if err := h.render.Render(w, r, http.StatusOK, view, data); err != nil {
		h.logger.Error("render failed", slog.String("view", view), slog.String("error", err.Error()))
	}
}
