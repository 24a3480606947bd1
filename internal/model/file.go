package model

import "time"

// File is one uploaded image inside a trip folder.
//
// UploadedByName is a denormalized copy of the uploader's username so the
// folder view does not need a user lookup per file. It goes stale when the
// uploader renames themselves; the folder service repairs it on read.
type File struct {
	ID             string    `json:"id"`
	FolderID       string    `json:"folderId"`
	ImageURL       string    `json:"imageURL"`
	ImageHash      string    `json:"imageHash"`
	UploadedBy     string    `json:"uploadedBy"`
	UploadedByName string    `json:"uploadedByName"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	UploadDate     time.Time `json:"uploadDate"`
	TripDate       time.Time `json:"userSetDate"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
