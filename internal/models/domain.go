package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DomainStatus lifecycle status of a pool domain
type DomainStatus string

const (
	DomainStatusActive   DomainStatus = "ACTIVE"
	DomainStatusInactive DomainStatus = "INACTIVE"
	DomainStatusPending  DomainStatus = "PENDING"
	DomainStatusRedirect DomainStatus = "REDIRECT"
)

// Valid reports whether s is one of the known statuses.
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainStatusActive, DomainStatusInactive, DomainStatusPending, DomainStatusRedirect:
		return true
	}
	return false
}

// DomainRecord represents a hostname routed through the dispatcher
type DomainRecord struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Hostname      string       `gorm:"uniqueIndex;size:255;not null" json:"hostname"`
	ParentSite    string       `gorm:"index;size:255" json:"parent_site"`
	DisplayName   string       `gorm:"size:255" json:"display_name"`
	Description   string       `gorm:"type:text" json:"description"`
	Status        DomainStatus `gorm:"size:16;not null;default:PENDING" json:"status"`
	IsPrimary     bool         `gorm:"not null;default:false" json:"is_primary"`
	PrimaryTags   StringList   `gorm:"type:text" json:"primary_tags"`
	SecondaryTags StringList   `gorm:"type:text" json:"secondary_tags"`
	VisitCount    int64        `gorm:"not null;default:0" json:"visit_count"`
	LastVisitAt   *time.Time   `json:"last_visit_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Palette is derived from the hostname, never stored
	Palette string `gorm:"-" json:"palette"`
}

// TableName keeps the table name short and stable
func (DomainRecord) TableName() string {
	return "domains"
}

// DomainStats request-path counters of a domain
type DomainStats struct {
	Domain      string     `json:"domain"`
	Visits      int64      `json:"visits"`
	LastVisitAt *time.Time `json:"last_visit_at,omitempty"`
}

// StringList is a string slice stored as a JSON text column.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported StringList source %T", value)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*l = out
	return nil
}
