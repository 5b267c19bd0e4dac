package models

import (
	"time"
)

// TitleRegisterData is one row of the source table that index updaters read
// from. Rows are owned by the upstream register feed; this service only
// reads them.
type TitleRegisterData struct {
	// TitleNumber is the unique title identifier.
	TitleNumber string `gorm:"type:varchar(10);primaryKey" json:"title_number"`

	// RegisterData is the register document for the title.
	RegisterData JSON `gorm:"type:json" json:"register_data"`

	// LastModified is when the row last changed. Pages are ordered by it.
	LastModified time.Time `gorm:"index:idx_title_register_data_last_modified;not null" json:"last_modified"`

	// IsDeleted marks titles that must be removed from every index.
	IsDeleted bool `gorm:"not null;default:false" json:"is_deleted"`
}

// TableName specifies the table name for GORM.
func (TitleRegisterData) TableName() string {
	return "title_register_data"
}
