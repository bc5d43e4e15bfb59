package services

import (
	"testing"
	"time"

	"github.com/mailbridge/core/internal/database/models"
)

func TestScheduler_TickSyncsDueAccounts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)

	// Never synced: due immediately
	due := createTestAccount(t, accountSvc, "due@example.com")
	// Just synced: debounced for a full interval
	fresh := createTestAccount(t, accountSvc, "fresh@example.com")
	if err := accountSvc.UpdateLastSyncAt(fresh.ID, time.Now()); err != nil {
		t.Fatalf("UpdateLastSyncAt error: %v", err)
	}

	adapter := &fakeAdapter{folders: inboxWith()}
	svc := newTestSyncService(t, db, accountSvc, adapter)
	scheduler := NewSyncScheduler(svc, accountSvc, 15*time.Second)

	scheduler.runTick()

	if got := adapter.callCount(); got != 1 {
		t.Errorf("adapter calls = %d, want 1 (only the due account)", got)
	}

	// The due account is now fresh, so another tick does nothing
	adapterCallsBefore := adapter.callCount()
	scheduler.runTick()
	if got := adapter.callCount(); got != adapterCallsBefore {
		t.Errorf("second tick synced %d accounts, want 0", got-adapterCallsBefore)
	}
	_ = due
}

func TestScheduler_DisabledAccountsNotListed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)

	account := createTestAccount(t, accountSvc, "disabled@example.com")
	if err := accountSvc.SetSyncEnabled(1, account.ID, false); err != nil {
		t.Fatalf("SetSyncEnabled error: %v", err)
	}

	adapter := &fakeAdapter{folders: inboxWith()}
	svc := newTestSyncService(t, db, accountSvc, adapter)
	scheduler := NewSyncScheduler(svc, accountSvc, 15*time.Second)

	scheduler.runTick()
	if got := adapter.callCount(); got != 0 {
		t.Errorf("adapter calls = %d, want 0", got)
	}
}

func TestScheduler_StopWaitsForTick(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	createTestAccount(t, accountSvc, "slow@example.com")

	adapter := &fakeAdapter{folders: inboxWith()}
	svc := newTestSyncService(t, db, accountSvc, adapter)
	scheduler := NewSyncScheduler(svc, accountSvc, 20*time.Millisecond)

	scheduler.Start()
	time.Sleep(60 * time.Millisecond)
	scheduler.Stop() // must not panic or leak; returns only after the loop exits

	calls := adapter.callCount()
	if calls == 0 {
		t.Error("scheduler never ticked")
	}

	// No more ticks after Stop
	time.Sleep(60 * time.Millisecond)
	if adapter.callCount() != calls {
		t.Error("scheduler kept ticking after Stop")
	}
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)

	adapter := &fakeAdapter{folders: inboxWith()}
	svc := newTestSyncService(t, db, accountSvc, adapter)
	scheduler := NewSyncScheduler(svc, accountSvc, time.Hour)

	scheduler.Start()
	scheduler.Start() // second Start is a no-op
	scheduler.Stop()
	scheduler.Stop() // second Stop is a no-op
}

func TestScheduler_SequentialWithinTick(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	createTestAccount(t, accountSvc, "one@example.com")
	createTestAccount(t, accountSvc, "two@example.com")
	createTestAccount(t, accountSvc, "three@example.com")

	adapter := &fakeAdapter{folders: inboxWith(testMessage("1", "", false))}
	svc := newTestSyncService(t, db, accountSvc, adapter)
	scheduler := NewSyncScheduler(svc, accountSvc, 15*time.Second)

	scheduler.runTick()

	if got := adapter.callCount(); got != 3 {
		t.Errorf("adapter calls = %d, want 3", got)
	}

	// Every account finished and is marked active
	var syncing int64
	db.Model(&models.EmailAccount{}).Where("status = ?", models.AccountStatusSyncing).Count(&syncing)
	if syncing != 0 {
		t.Errorf("%d accounts stuck in syncing after the tick", syncing)
	}
}
