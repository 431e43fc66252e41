package domain

import "time"

// FileStatus tracks an uploaded file through the indexing lifecycle.
type FileStatus string

const (
	// FileStatusPending marks files not yet covered by a finished run.
	FileStatusPending FileStatus = "pending"
	// FileStatusIndexed marks files covered by a successful run.
	FileStatusIndexed FileStatus = "indexed"
	// FileStatusError marks files whose last covering run failed.
	FileStatusError FileStatus = "error"
)

// UploadedFile describes one corpus file in the input directory.
type UploadedFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	UploadDate time.Time  `json:"upload_date"`
	Status     FileStatus `json:"status"`
}
