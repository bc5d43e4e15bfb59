package models

import (
	"time"
)

// Email represents one synchronized message. (account_id, message_id) is the
// deduplication invariant: at most one stored copy of a remote message.
type Email struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	AccountID uint `gorm:"uniqueIndex:idx_emails_account_message;not null" json:"account_id"`
	FolderID  uint `gorm:"index;not null" json:"folder_id"`

	// UID is the provider-local identifier (IMAP UID or Graph message id);
	// it is not guaranteed stable across providers or folder rebuilds.
	UID       string `gorm:"size:255;not null" json:"uid"`
	MessageID string `gorm:"uniqueIndex:idx_emails_account_message;size:500;not null" json:"message_id"`

	Subject     string `gorm:"size:500" json:"subject"`
	FromName    string `gorm:"size:100" json:"from_name"`
	FromAddress string `gorm:"size:255" json:"from_address"`
	ToAddresses string `gorm:"type:text" json:"to_addresses"`

	BodyText string `gorm:"type:text" json:"body_text"`
	BodyHTML string `gorm:"type:text" json:"body_html"`

	IsRead    bool `gorm:"default:false;index" json:"is_read"`
	IsFlagged bool `gorm:"default:false" json:"is_flagged"`
	IsDeleted bool `gorm:"default:false" json:"is_deleted"`

	ReceivedAt time.Time `gorm:"index" json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}
