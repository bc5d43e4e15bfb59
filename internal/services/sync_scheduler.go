package services

import (
	"errors"
	"log"
	"sync"
	"time"
)

// SyncScheduler drives periodic background sync. Every tick it walks the
// syncable accounts sequentially and syncs the ones whose last cycle is at
// least one interval old, so a slow tick delays the next accounts instead
// of piling up goroutines.
type SyncScheduler struct {
	syncService    *SyncService
	accountService *AccountService
	interval       time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(syncService *SyncService, accountService *AccountService, interval time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SyncScheduler{
		syncService:    syncService,
		accountService: accountService,
		interval:       interval,
	}
}

// Start launches the scheduler loop. Calling Start on a running scheduler
// is a no-op.
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	log.Printf("[SyncScheduler] Started with %s interval", s.interval)
}

// Stop halts the scheduler and waits for an in-flight tick to finish
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopChan, done := s.stopChan, s.done
	s.mu.Unlock()

	close(stopChan)
	<-done
	log.Printf("[SyncScheduler] Stopped")
}

func (s *SyncScheduler) loop(stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			s.runTick()
		}
	}
}

// runTick syncs every due account, one at a time
func (s *SyncScheduler) runTick() {
	accounts, err := s.accountService.ListSyncableAccounts()
	if err != nil {
		log.Printf("[SyncScheduler] Failed to list accounts: %v", err)
		return
	}

	now := time.Now()
	for _, account := range accounts {
		// Debounce: an account synced less than one interval ago waits
		if !account.LastSyncAt.IsZero() && now.Sub(account.LastSyncAt) < s.interval {
			continue
		}

		if _, err := s.syncService.SyncAccount(account.ID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				continue
			}
			log.Printf("[SyncScheduler] Sync failed for account %d: %v", account.ID, err)
		}
	}
}
