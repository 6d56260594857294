package models

import (
	"time"
)

// ContentSource is a named corpus contributed by an ingestion collaborator.
// Sources are deactivated, never deleted.
type ContentSource struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Name       string     `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Paragraphs StringList `gorm:"type:text" json:"paragraphs"`
	Headings   StringList `gorm:"type:text" json:"headings"`
	Keywords   StringList `gorm:"type:text" json:"keywords"`
	Active     bool       `gorm:"not null;default:true;index" json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName content sources table
func (ContentSource) TableName() string {
	return "content_sources"
}

// Corpus is the merged view over all active sources.
type Corpus struct {
	Paragraphs []string
	Headings   []string
	Keywords   []string

	// ParagraphOrigins[i] is the name of the source Paragraphs[i] came from
	ParagraphOrigins []string
	// SourceIDs of every source that took part in the merge
	SourceIDs []string
}
