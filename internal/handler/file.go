package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/service"
)

// MaxUploadSize caps one image upload.
const MaxUploadSize = 10 << 20

const imageField = "image"

// FileHandler serves uploads, edits, deletes and downloads of the images
// inside a folder.
type FileHandler struct {
	files  Files
	logger *slog.Logger
}

func NewFileHandler(files Files, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: files, logger: logger}
}

// UploadResponse is returned to the upload script.
type UploadResponse struct {
	FileURL string `json:"fileUrl"`
	FileID  string `json:"fileId"`
}

// HandleUpload stores a new image. It answers in JSON because the upload
// form submits it from script.
//
// HTTP: POST /tripFolders/{folderID}/files (multipart: image, title,
// description, tripDate)
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		writeError(w, h.logger, formError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	raw, mimeType, err := readImage(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	date, err := parseDate("tripDate", r.FormValue("tripDate"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	file, err := h.files.Upload(r.Context(), currentUserID(r), chi.URLParam(r, "folderID"), service.UploadInput{
		Raw:         raw,
		MimeType:    mimeType,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		TripDate:    date,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{FileURL: file.ImageURL, FileID: file.ID})
}

// HandleEdit updates a file's metadata and, if the form carries a new
// image, its picture.
//
// HTTP: PUT /tripFolders/{folderID}/files/{fileID}
func (h *FileHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	folderID, fileID := chi.URLParam(r, "folderID"), chi.URLParam(r, "fileID")
	back := folderPath(folderID)

	in, err := editInput(w, r)
	if err == nil {
		_, err = h.files.Edit(r.Context(), currentUserID(r), folderID, fileID, in)
	}
	if err != nil {
		redirectWithError(w, r, h.logger, back, err, "Error updating file")
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// HandleDelete removes a file and its image.
//
// HTTP: DELETE /tripFolders/{folderID}/files/{fileID}
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")
	back := folderPath(folderID)
	if err := h.files.Delete(r.Context(), currentUserID(r), folderID, chi.URLParam(r, "fileID")); err != nil {
		redirectWithError(w, r, h.logger, back, err, "Error deleting file")
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// HandleDownload streams the image as an attachment.
//
// HTTP: GET /tripFolders/{folderID}/files/{fileID}/download
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := h.files.Download(r.Context(), currentUserID(r), chi.URLParam(r, "folderID"), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("download interrupted", slog.String("error", err.Error()))
	}
}

// editInput reads the edit form, which is multipart when it carries a
// replacement image and urlencoded otherwise.
func editInput(w http.ResponseWriter, r *http.Request) (service.EditInput, error) {
	var in service.EditInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			return in, formError(err)
		}
		defer r.MultipartForm.RemoveAll()
		raw, mimeType, err := readImage(r)
		if err != nil {
			return in, err
		}
		in.Raw, in.MimeType = raw, mimeType
	}
	date, err := parseDate("tripDate", r.FormValue("tripDate"))
	if err != nil {
		return in, err
	}
	in.Title = r.FormValue("title")
	in.Description = r.FormValue("description")
	in.TripDate = date
	return in, nil
}

// readImage returns the bytes and declared type of the "image" part. A
// missing part is not an error here: Upload rejects empty input with "No
// file uploaded" and Edit treats it as "keep the current image".
func readImage(r *http.Request) ([]byte, string, error) {
	f, hdr, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", formError(err)
	}
	defer f.Close()
	raw, err := readLimited(f, MaxUploadSize)
	if err != nil {
		return nil, "", err
	}
	return raw, partType(hdr), nil
}

// partType is the part's declared type; an empty value lets the decoder
// decide.
func partType(hdr *multipart.FileHeader) string {
	return hdr.Header.Get("Content-Type")
}

// formError classifies a body parsing failure.
func formError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return apperror.ValidationFailed(imageField, "File is too large")
	}
	return apperror.ValidationFailed(imageField, "Malformed upload")
}
