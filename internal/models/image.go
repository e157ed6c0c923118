package models

// Image lifecycle states. Transitions are monotonic: generating moves to
// completed or failed, and completed moves to locked. Locked is terminal
// for a table.
const (
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusLocked     = "locked"
)

// Image is a row in the shared image ledger. Timestamps are epoch
// milliseconds; UpdatedAt is what the change feed filters on, so every
// mutation must advance it.
type Image struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	TableID      *string `gorm:"size:64;index" json:"tableId"`
	PersonaID    string  `gorm:"size:64" json:"personaId"`
	URL          string  `gorm:"type:text" json:"url"`
	Prompt       string  `gorm:"type:text" json:"prompt"`
	Status       string  `gorm:"size:16;default:generating;index" json:"status"`
	// LockedTable is TableID while Status is locked and NULL otherwise. The
	// unique index makes a second locked row per table impossible at the
	// database level, whatever isolation the driver runs transactions under.
	LockedTable  *string `gorm:"size:64;uniqueIndex" json:"-"`
	ErrorMessage string  `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    int64   `gorm:"autoCreateTime:milli" json:"createdAt"`
	UpdatedAt    int64   `gorm:"autoUpdateTime:milli;index" json:"updatedAt"`
}

// TableName sets the GORM table name.
func (Image) TableName() string {
	return "images"
}

// Table returns the scope key, or "" for administrative uploads.
func (i *Image) Table() string {
	if i.TableID == nil {
		return ""
	}
	return *i.TableID
}
