package models

import "time"

// FileInfo represents metadata about an uploaded motif image.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	WidthPx     int       `json:"widthPx,omitempty"`
	HeightPx    int       `json:"heightPx,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
