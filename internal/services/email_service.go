package services

import (
	"errors"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// ErrEmailNotFound indicates the email was not found
var ErrEmailNotFound = errors.New("email not found")

// EmailService serves stored emails and folders to the API. All writes to
// the emails table besides the sync engine's inserts go through here.
type EmailService struct {
	db             *gorm.DB
	accountService *AccountService
	logService     *LogService
}

// NewEmailService creates a new email service
func NewEmailService(db *gorm.DB, accountService *AccountService, logService *LogService) *EmailService {
	return &EmailService{
		db:             db,
		accountService: accountService,
		logService:     logService,
	}
}

// ListEmailsOptions filters an email listing
type ListEmailsOptions struct {
	AccountID  uint
	FolderID   uint
	UnreadOnly bool
	Search     string
	Limit      int
	Offset     int
}

// ListEmails returns a page of the user's emails, newest first
func (s *EmailService) ListEmails(userID uint, opts ListEmailsOptions) ([]models.Email, int64, error) {
	query := s.db.Model(&models.Email{}).
		Joins("JOIN email_accounts ON email_accounts.id = emails.account_id").
		Where("email_accounts.user_id = ? AND emails.is_deleted = ?", userID, false)

	if opts.AccountID != 0 {
		query = query.Where("emails.account_id = ?", opts.AccountID)
	}
	if opts.FolderID != 0 {
		query = query.Where("emails.folder_id = ?", opts.FolderID)
	}
	if opts.UnreadOnly {
		query = query.Where("emails.is_read = ?", false)
	}
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		query = query.Where("emails.subject LIKE ? OR emails.from_address LIKE ? OR emails.from_name LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}

	var emails []models.Email
	err := query.Order("emails.received_at DESC").
		Limit(opts.Limit).Offset(opts.Offset).Find(&emails).Error
	return emails, total, err
}

// GetEmail returns one email owned by the user
func (s *EmailService) GetEmail(userID, emailID uint) (*models.Email, error) {
	var email models.Email
	err := s.db.
		Joins("JOIN email_accounts ON email_accounts.id = emails.account_id").
		Where("emails.id = ? AND email_accounts.user_id = ?", emailID, userID).
		First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// MarkRead sets the read flag on an email
func (s *EmailService) MarkRead(userID, emailID uint, read bool) error {
	email, err := s.GetEmail(userID, emailID)
	if err != nil {
		return err
	}
	if err := s.db.Model(email).Update("is_read", read).Error; err != nil {
		return err
	}
	return s.adjustFolderUnread(email, read)
}

// MarkFlagged sets the flagged marker on an email
func (s *EmailService) MarkFlagged(userID, emailID uint, flagged bool) error {
	email, err := s.GetEmail(userID, emailID)
	if err != nil {
		return err
	}
	return s.db.Model(email).Update("is_flagged", flagged).Error
}

// DeleteEmail soft-deletes an email. The remote copy stays untouched.
func (s *EmailService) DeleteEmail(userID, emailID uint) error {
	email, err := s.GetEmail(userID, emailID)
	if err != nil {
		return err
	}
	if err := s.db.Model(email).Update("is_deleted", true).Error; err != nil {
		return err
	}
	// Counters drift until the next sync cycle recomputes them; fix the
	// visible ones now
	s.db.Model(&models.Folder{}).Where("id = ?", email.FolderID).
		UpdateColumn("total_count", gorm.Expr("total_count - 1"))
	if !email.IsRead {
		s.db.Model(&models.Folder{}).Where("id = ?", email.FolderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count - 1"))
	}
	return nil
}

func (s *EmailService) adjustFolderUnread(email *models.Email, nowRead bool) error {
	if email.IsRead == nowRead {
		return nil
	}
	delta := 1
	if nowRead {
		delta = -1
	}
	return s.db.Model(&models.Folder{}).Where("id = ?", email.FolderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", delta)).Error
}

// ListFolders returns the folders of one account owned by the user
func (s *EmailService) ListFolders(userID, accountID uint) ([]models.Folder, error) {
	if _, err := s.accountService.GetAccount(userID, accountID); err != nil {
		return nil, err
	}
	var folders []models.Folder
	err := s.db.Where("account_id = ?", accountID).Order("id ASC").Find(&folders).Error
	return folders, err
}
