package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// ErrSyncInProgress is returned when an account is already being synced
var ErrSyncInProgress = errors.New("sync already in progress for this account")

// SyncService runs the per-account sync job: pick an adapter, fetch the
// recent messages of the synced folders, persist the new ones and refresh
// the aggregate counters.
type SyncService struct {
	db             *gorm.DB
	accountService *AccountService
	settings       *SettingsService
	logService     *LogService

	imapAdapter  ProtocolAdapter
	graphAdapter ProtocolAdapter

	// FetchLimit caps the messages fetched per folder per cycle
	FetchLimit int

	// One mutex per account. Shared by the scheduler and on-demand
	// triggers so the same account never syncs twice concurrently.
	accountLocks sync.Map
}

// NewSyncService creates a new sync service
func NewSyncService(db *gorm.DB, accountService *AccountService, settings *SettingsService, tokenManager *TokenManager, logService *LogService, fetchLimit int) *SyncService {
	if fetchLimit <= 0 {
		fetchLimit = 50
	}
	return &SyncService{
		db:             db,
		accountService: accountService,
		settings:       settings,
		logService:     logService,
		imapAdapter:    NewIMAPAdapter(accountService, tokenManager, logService),
		graphAdapter:   NewGraphAdapter(tokenManager, logService),
		FetchLimit:     fetchLimit,
	}
}

// SyncResult summarizes one completed sync cycle
type SyncResult struct {
	AccountID   uint `json:"account_id"`
	NewMessages int  `json:"new_messages"`
	Folders     int  `json:"folders"`
}

// SyncAccount runs one sync cycle for an account. Concurrent calls for the
// same account return ErrSyncInProgress instead of queueing.
func (s *SyncService) SyncAccount(accountID uint) (*SyncResult, error) {
	muVal, _ := s.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	mu := muVal.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer mu.Unlock()

	account, err := s.accountService.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if !account.SyncEnabled || account.Status == models.AccountStatusDisabled {
		return &SyncResult{AccountID: accountID}, nil
	}

	if err := s.accountService.UpdateAccountStatus(accountID, models.AccountStatusSyncing, ""); err != nil {
		return nil, err
	}

	result, syncErr := s.runCycle(account)
	if syncErr != nil {
		status := models.AccountStatusError
		if errors.Is(syncErr, ErrAuth) {
			status = models.AccountStatusAuthRequired
		}
		_ = s.accountService.UpdateAccountStatus(accountID, status, syncErr.Error())
		s.logService.Error(account.UserID, models.LogModuleSync, "sync_failed",
			fmt.Sprintf("Sync failed for %s", account.EmailAddress),
			map[string]interface{}{"account_id": accountID, "error": syncErr.Error()})
		return nil, syncErr
	}

	now := time.Now()
	if err := s.accountService.UpdateLastSyncAt(accountID, now); err != nil {
		return nil, err
	}
	if err := s.RecomputeCounters(accountID); err != nil {
		log.Printf("[SyncService] Counter recompute failed for account %d: %v", accountID, err)
	}
	if err := s.accountService.UpdateAccountStatus(accountID, models.AccountStatusActive, ""); err != nil {
		return nil, err
	}

	if result.NewMessages > 0 {
		s.logService.Info(account.UserID, models.LogModuleSync, "sync_completed",
			fmt.Sprintf("Synced %d new messages for %s", result.NewMessages, account.EmailAddress),
			map[string]interface{}{"account_id": accountID, "new_messages": result.NewMessages})
	}
	return result, nil
}

// runCycle fetches and persists without touching account status
func (s *SyncService) runCycle(account *models.EmailAccount) (*SyncResult, error) {
	proxyURL, err := s.effectiveProxy(account)
	if err != nil {
		return nil, err
	}

	adapter := s.adapterFor(account)
	folders, err := adapter.Fetch(account, proxyURL, s.FetchLimit)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{AccountID: account.ID, Folders: len(folders)}
	reconciler := newFolderReconciler(s.db, account.ID)

	for _, syncFolder := range folders {
		folder, err := reconciler.ensure(syncFolder)
		if err != nil {
			return nil, err
		}
		saved, err := s.persistMessages(account.ID, folder.ID, syncFolder.Messages)
		if err != nil {
			return nil, err
		}
		result.NewMessages += saved
	}
	return result, nil
}

// effectiveProxy resolves the proxy for an account: its own URL wins,
// otherwise the global_proxy system setting, otherwise direct.
func (s *SyncService) effectiveProxy(account *models.EmailAccount) (string, error) {
	if account.ProxyURL != "" {
		return account.ProxyURL, nil
	}
	return s.settings.GetGlobalProxy()
}

// adapterFor is the protocol selection rule
func (s *SyncService) adapterFor(account *models.EmailAccount) ProtocolAdapter {
	if UsesGraphAPI(account.Provider, account.AuthType) {
		return s.graphAdapter
	}
	return s.imapAdapter
}

// persistMessages saves the messages that are not yet stored. Identity is
// the dedup key, so a message seen in two folders is stored once.
func (s *SyncService) persistMessages(accountID, folderID uint, messages []FetchedMessage) (int, error) {
	saved := 0
	for i := range messages {
		msg := &messages[i]
		key := msg.DedupKey(accountID)

		var count int64
		if err := s.db.Model(&models.Email{}).
			Where("account_id = ? AND message_id = ?", accountID, key).
			Count(&count).Error; err != nil {
			return saved, err
		}
		if count > 0 {
			continue
		}

		email := &models.Email{
			AccountID:   accountID,
			FolderID:    folderID,
			UID:         msg.UID,
			MessageID:   key,
			Subject:     msg.Subject,
			FromName:    msg.FromName,
			FromAddress: msg.FromAddress,
			ToAddresses: msg.ToAddresses,
			BodyText:    msg.BodyText,
			BodyHTML:    msg.BodyHTML,
			IsRead:      msg.IsRead,
			ReceivedAt:  msg.ReceivedAt,
		}
		if err := s.db.Create(email).Error; err != nil {
			// The unique index closes the race with a concurrent writer
			continue
		}
		saved++
	}
	return saved, nil
}

// RecomputeCounters rebuilds the folder and account aggregates from the
// emails table. Cheap enough to run after every cycle and always correct,
// unlike incremental bookkeeping.
func (s *SyncService) RecomputeCounters(accountID uint) error {
	var folders []models.Folder
	if err := s.db.Where("account_id = ?", accountID).Find(&folders).Error; err != nil {
		return err
	}

	for _, folder := range folders {
		var total, unread int64
		if err := s.db.Model(&models.Email{}).
			Where("account_id = ? AND folder_id = ? AND is_deleted = ?", accountID, folder.ID, false).
			Count(&total).Error; err != nil {
			return err
		}
		if err := s.db.Model(&models.Email{}).
			Where("account_id = ? AND folder_id = ? AND is_deleted = ? AND is_read = ?", accountID, folder.ID, false, false).
			Count(&unread).Error; err != nil {
			return err
		}
		if err := s.db.Model(&models.Folder{}).Where("id = ?", folder.ID).
			Updates(map[string]interface{}{"total_count": total, "unread_count": unread}).Error; err != nil {
			return err
		}
	}

	var accountTotal, accountUnread int64
	if err := s.db.Model(&models.Email{}).
		Where("account_id = ? AND is_deleted = ?", accountID, false).
		Count(&accountTotal).Error; err != nil {
		return err
	}
	if err := s.db.Model(&models.Email{}).
		Where("account_id = ? AND is_deleted = ? AND is_read = ?", accountID, false, false).
		Count(&accountUnread).Error; err != nil {
		return err
	}
	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"total_emails": accountTotal, "unread_count": accountUnread}).Error
}

// TriggerSync runs an on-demand sync for an account owned by the user
func (s *SyncService) TriggerSync(userID, accountID uint) (*SyncResult, error) {
	if _, err := s.accountService.GetAccount(userID, accountID); err != nil {
		return nil, err
	}
	return s.SyncAccount(accountID)
}
