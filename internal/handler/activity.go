package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tripsync/internal/apperror"
)

const activityPath = "/activityCenter"

// ActivityHandler serves the activity center: the notification feed and
// the pending share requests in both directions.
type ActivityHandler struct {
	notifications Notifications
	sharing       Sharing
	render        Renderer
	logger        *slog.Logger
}

func NewActivityHandler(notifications Notifications, sharing Sharing, render Renderer, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{notifications: notifications, sharing: sharing, render: render, logger: logger}
}

// HandleShow renders the feed. Viewing it clears the badge.
//
// HTTP: GET /activityCenter
func (h *ActivityHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	page, err := h.notifications.ActivityCenter(r.Context(), currentUserID(r))
	if err != nil {
		redirectWithError(w, r, h.logger, "/", err, "Error displaying activity center")
		return
	}
	if err := h.render.Render(w, r, http.StatusOK, "activityCenter/index", page); err != nil {
		h.logger.Error("render failed", slog.String("error", err.Error()))
	}
}

// HandleDeleteNotification removes the notification shown at ?index=,
// counted from the top of the feed.
//
// HTTP: PUT /activityCenter/deleteNotification?index=
func (h *ActivityHandler) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		err = apperror.ValidationFailed("index", "Invalid notification index")
	} else {
		err = h.notifications.Delete(r.Context(), currentUserID(r), idx)
	}
	h.finish(w, r, err, "Error deleting notification")
}

// HandleAccept joins the folder {tripID} that {userID} invited the caller to.
//
// HTTP: PUT /activityCenter/{tripID}/{userID}/acceptIncomingRequest
func (h *ActivityHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sharing.Accept, "Error accepting incoming request")
}

// HandleDecline turns down the invitation from {userID} to {tripID}.
//
// HTTP: PUT /activityCenter/{tripID}/{userID}/declineIncomingRequest
func (h *ActivityHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sharing.Decline, "Error rejecting incoming request")
}

// HandleCancel withdraws the caller's invitation of {userID} to {tripID}.
//
// HTTP: PUT /activityCenter/{tripID}/{userID}/cancelOutgoingRequest
func (h *ActivityHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sharing.Cancel, "Error cancelling outgoing request")
}

// transition runs one request state change. Every change takes the caller,
// the other party and the folder, in that order.
func (h *ActivityHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, callerID, otherID, folderID string) error,
	generic string,
) {
	err := op(r.Context(), currentUserID(r), chi.URLParam(r, "userID"), chi.URLParam(r, "tripID"))
	h.finish(w, r, err, generic)
}

func (h *ActivityHandler) finish(w http.ResponseWriter, r *http.Request, err error, generic string) {
	if err != nil {
		redirectWithError(w, r, h.logger, activityPath, err, generic)
		return
	}
	http.Redirect(w, r, activityPath, http.StatusSeeOther)
}
