package services

import (
	"errors"
	"fmt"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// folderReconciler maps provider folder paths to Folder rows, creating
// missing ones. One reconciler lives for a single sync cycle so the cache
// never goes stale across cycles.
type folderReconciler struct {
	db        *gorm.DB
	accountID uint
	cache     map[string]*models.Folder
}

func newFolderReconciler(db *gorm.DB, accountID uint) *folderReconciler {
	return &folderReconciler{
		db:        db,
		accountID: accountID,
		cache:     make(map[string]*models.Folder),
	}
}

// ensure returns the Folder row for a provider path, creating it on first
// sight. Idempotent: the (account_id, path) unique index backs it up when
// two cycles race.
func (r *folderReconciler) ensure(spec SyncFolder) (*models.Folder, error) {
	if folder, ok := r.cache[spec.Path]; ok {
		return folder, nil
	}

	var folder models.Folder
	err := r.db.Where("account_id = ? AND path = ?", r.accountID, spec.Path).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		folder = models.Folder{
			AccountID: r.accountID,
			Path:      spec.Path,
			Name:      spec.Name,
			Type:      spec.Type,
			IsSystem:  true,
		}
		if createErr := r.db.Create(&folder).Error; createErr != nil {
			// Lost the race, the row exists now
			if findErr := r.db.Where("account_id = ? AND path = ?", r.accountID, spec.Path).First(&folder).Error; findErr != nil {
				return nil, fmt.Errorf("reconcile folder %s: %w", spec.Path, createErr)
			}
		}
	} else if err != nil {
		return nil, err
	}

	r.cache[spec.Path] = &folder
	return &folder, nil
}
