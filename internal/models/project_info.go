package models

import "time"

// ProjectInfo describes a project file in the projects directory.
type ProjectInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Backup     bool      `json:"backup"` // only the backup copy exists
}
