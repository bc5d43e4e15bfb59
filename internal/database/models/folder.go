package models

import (
	"time"
)

// FolderType is the provider-agnostic classification of a folder
type FolderType string

const (
	FolderTypeInbox FolderType = "inbox"
	FolderTypeSpam  FolderType = "spam"
	FolderTypeOther FolderType = "other"
)

// Folder represents a mailbox folder belonging to one account.
// (account_id, path) is unique; folders are created by the CRUD layer or
// lazily by the sync engine on first sight of a provider folder.
type Folder struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AccountID uint       `gorm:"uniqueIndex:idx_folders_account_path;not null" json:"account_id"`
	Path      string     `gorm:"uniqueIndex:idx_folders_account_path;size:500;not null" json:"path"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	Type      FolderType `gorm:"size:50;default:'other'" json:"folder_type"`
	IsSystem  bool       `gorm:"default:false" json:"is_system"`

	// Aggregate counters, recomputed after each successful sync cycle
	TotalCount  int64 `gorm:"default:0" json:"total_count"`
	UnreadCount int64 `gorm:"default:0" json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
