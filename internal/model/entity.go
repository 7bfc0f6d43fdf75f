package model

import (
	"time"

	"gorm.io/gorm"
)

// TitleMaxLength: ограничение колонки title.
const TitleMaxLength = 200

type Ticket struct {
	ID          uint64       `gorm:"primaryKey" json:"id"`
	Title       string       `gorm:"type:varchar(200);not null" json:"title"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Category    Category     `gorm:"type:varchar(32);index;not null" json:"category"`
	Priority    Priority     `gorm:"type:varchar(32);index;not null" json:"priority"`
	Status      TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate defaults the status of new tickets to open.
func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	return nil
}
