// Package project keeps the bounded, most-recent-first list of saved
// projects and persists it through a [kv.Store].
package project

import (
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// StorageKey is the key the project list is stored under.
const StorageKey = "nexus_projects"

const (
	// DefaultLimit is how many projects the store keeps.
	DefaultLimit = 10

	// RecentCount is how many projects the recent panel shows.
	RecentCount = 5

	// DisplayNameMax is the rune length display names are cut to.
	DisplayNameMax = 20

	// DateLayout formats CreatedAt.
	DateLayout = "1/2/2006"
)

// ErrNotFound is returned when no project has the requested ID.
var ErrNotFound = errors.New("project not found")

// Project is a saved editing session.
type Project struct {
	ID        int64  `json:"id"        yaml:"id"`
	Name      string `json:"name"      yaml:"name"`
	SourceRef string `json:"sourceRef" yaml:"sourceRef"`
	CreatedAt string `json:"createdAt" yaml:"createdAt"`
}

// wireProject also accepts the field names written by the browser build.
type wireProject struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SourceRef string `json:"sourceRef"`
	CreatedAt string `json:"createdAt"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Date      string `json:"date,omitempty"`
}

// UnmarshalJSON decodes both the current and the legacy layout.
func (p *Project) UnmarshalJSON(data []byte) error {
	var w wireProject

	err := json.Unmarshal(data, &w)
	if err != nil {
		return err
	}

	*p = Project{
		ID:        w.ID,
		Name:      w.Name,
		SourceRef: w.SourceRef,
		CreatedAt: w.CreatedAt,
	}

	if p.SourceRef == "" {
		p.SourceRef = w.Thumbnail
	}

	if p.CreatedAt == "" {
		p.CreatedAt = w.Date
	}

	return nil
}

// DisplayName returns the name cut to [DisplayNameMax] runes, with "..."
// appended when it was cut.
func (p Project) DisplayName() string {
	return Truncate(p.Name, DisplayNameMax)
}

// Truncate cuts s to limit runes and appends "..." if anything was dropped.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit]) + "..."
}
