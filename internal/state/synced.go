// Package state keeps the shared SQLite database in an object store and
// brackets every local transaction with the remote lock and a download and
// upload of the file.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/storage"
)

// Phase is a step of the session state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLockAcquired
	PhaseDownloaded
	PhaseInTransaction
	PhaseCommitted
	PhaseUploaded
	PhaseFailed
	PhaseRolledBack
	PhaseUnlocked
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLockAcquired:
		return "lock_acquired"
	case PhaseDownloaded:
		return "downloaded"
	case PhaseInTransaction:
		return "in_transaction"
	case PhaseCommitted:
		return "committed"
	case PhaseUploaded:
		return "uploaded"
	case PhaseFailed:
		return "failed"
	case PhaseRolledBack:
		return "rolled_back"
	case PhaseUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Locker is the subset of *lock.RemoteFileLock a session needs.
type Locker interface {
	TryLock(ctx context.Context, timeout, retryInterval time.Duration) error
	Release(ctx context.Context) error
}

// SyncObserver receives transfer sizes.
type SyncObserver interface {
	ObserveSyncBytes(direction string, n int)
}

// Options configures a SyncedStore.
type Options struct {
	ObjectKey     string // remote database key
	LocalPath     string // scratch copy
	LockTimeout   time.Duration
	RetryInterval time.Duration
	Logger        *events.Logger
	Observer      SyncObserver
	OnPhase       func(Phase)
}

// SyncedStore is the database file held in a remote object store.
type SyncedStore struct {
	store         storage.ObjectStore
	locker        Locker
	objectKey     string
	localPath     string
	lockTimeout   time.Duration
	retryInterval time.Duration
	logger        *events.Logger
	observer      SyncObserver
	onPhase       func(Phase)

	// Serializes sessions inside one process; the remote lock only
	// excludes other processes.
	sessionMu sync.Mutex

	mu      sync.Mutex
	version string
	held    bool
}

// NewSyncedStore builds a store; locker must guard the same object store.
func NewSyncedStore(store storage.ObjectStore, locker Locker, opts Options) *SyncedStore {
	logger := opts.Logger
	if logger == nil {
		logger = events.Discard()
	}

	return &SyncedStore{
		store:         store,
		locker:        locker,
		objectKey:     opts.ObjectKey,
		localPath:     opts.LocalPath,
		lockTimeout:   opts.LockTimeout,
		retryInterval: opts.RetryInterval,
		logger:        logger.WithFields(map[string]interface{}{"component": "synced_store", "object_key": opts.ObjectKey}),
		observer:      opts.Observer,
		onPhase:       opts.OnPhase,
	}
}

// Version is the remote version last downloaded or uploaded, empty when
// the remote object did not exist yet.
func (s *SyncedStore) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// LocalPath returns the scratch file location.
func (s *SyncedStore) LocalPath() string { return s.localPath }

// SyncDown replaces the local copy with the remote object. When the remote
// object does not exist yet the local copy is removed so the session
// starts from an empty database. Callers must hold the lock.
func (s *SyncedStore) SyncDown(ctx context.Context) error {
	if !s.isHeld() {
		return errors.New("sync down: lock not held")
	}

	obj, err := s.store.Get(ctx, s.objectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Info("Remote database not found, starting empty")
		if err := removeLocal(s.localPath); err != nil {
			return fmt.Errorf("sync down: %w", err)
		}
		s.setVersion("")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync down: %w", err)
	}

	if err := writeFileAtomic(s.localPath, obj.Data); err != nil {
		return fmt.Errorf("sync down: %w", err)
	}
	// A journal left by a crashed process would be replayed against the
	// fresh copy.
	_ = os.Remove(s.localPath + "-journal")

	s.setVersion(obj.Version)
	s.observe("down", len(obj.Data))

	s.logger.WithFields(map[string]interface{}{
		"size":    len(obj.Data),
		"version": obj.Version,
	}).Debug("Database downloaded")

	return nil
}

// SyncUp overwrites the remote object with the local copy. Callers must
// hold the lock and have committed and closed the database.
func (s *SyncedStore) SyncUp(ctx context.Context) error {
	if !s.isHeld() {
		return errors.New("sync up: lock not held")
	}

	data, err := os.ReadFile(s.localPath)
	if err != nil {
		return fmt.Errorf("sync up: read local copy: %w", err)
	}

	attrs, err := s.store.Put(ctx, s.objectKey, data)
	if err != nil {
		return fmt.Errorf("sync up: %w", err)
	}

	s.setVersion(attrs.Version)
	s.observe("up", len(data))

	s.logger.WithFields(map[string]interface{}{
		"size":    len(data),
		"version": attrs.Version,
	}).Debug("Database uploaded")

	return nil
}

// Session runs fn in a local transaction bracketed by lock, download,
// upload and release. When fn or the commit fails the transaction is
// rolled back and the remote object is left untouched. The lock is
// released in every case. A busy lock yields an error wrapping
// models.ErrLocked before any local or remote state is touched.
func (s *SyncedStore) Session(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.run(ctx, false, fn)
}

// View is a read-only session: it never uploads.
func (s *SyncedStore) View(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SyncedStore) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	logger := s.logger
	if id := events.GetRunID(ctx); id != "" {
		logger = logger.WithField("run_id", id)
	}

	s.phase(PhaseIdle)

	if err := s.locker.TryLock(ctx, s.lockTimeout, s.retryInterval); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	s.setHeld(true)
	s.phase(PhaseLockAcquired)

	defer func() {
		s.setHeld(false)
		// Release even when ctx is already canceled.
		relErr := s.locker.Release(context.WithoutCancel(ctx))
		s.phase(PhaseUnlocked)
		if relErr != nil {
			logger.WithError(relErr).Error("Failed to release lock")
			if err == nil {
				err = relErr
			}
		}
	}()

	if err := s.SyncDown(ctx); err != nil {
		return err
	}
	s.phase(PhaseDownloaded)

	committed, err := s.transact(ctx, readOnly, fn)
	if err != nil {
		return err
	}
	if !committed || readOnly {
		return nil
	}

	if err := s.SyncUp(ctx); err != nil {
		logger.WithError(err).Error("Upload failed after local commit; remote keeps previous version")
		return err
	}
	s.phase(PhaseUploaded)

	return nil
}

// Snapshot copies the remote database to dest under the lock, for
// inspection. It reports false when no remote database exists yet.
func (s *SyncedStore) Snapshot(ctx context.Context, dest string) (bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if err := s.locker.TryLock(ctx, s.lockTimeout, s.retryInterval); err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).Error("Failed to release lock")
		}
	}()

	obj, err := s.store.Get(ctx, s.objectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}

	if err := writeFileAtomic(dest, obj.Data); err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	s.observe("down", len(obj.Data))
	return true, nil
}

// transact opens the scratch database, migrates it and runs fn. The
// database is closed before returning so the file is complete on disk.
func (s *SyncedStore) transact(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx *sql.Tx) error) (committed bool, err error) {
	if err := os.MkdirAll(filepath.Dir(s.localPath), 0700); err != nil {
		return false, fmt.Errorf("create scratch directory: %w", err)
	}

	db, err := OpenDB(s.localPath)
	if err != nil {
		return false, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close database: %w", cerr)
			committed = false
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	s.phase(PhaseInTransaction)

	done := false
	defer func() {
		if !done {
			// panic inside fn
			_ = tx.Rollback()
			s.phase(PhaseFailed)
			s.phase(PhaseRolledBack)
		}
	}()

	if err := Migrate(ctx, tx); err != nil {
		done = true
		s.rollback(tx)
		return false, err
	}

	if readOnly {
		if _, err := tx.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			done = true
			s.rollback(tx)
			return false, fmt.Errorf("enable read-only: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		done = true
		s.rollback(tx)
		return false, fmt.Errorf("session transaction: %w", err)
	}

	if readOnly {
		done = true
		_ = tx.Rollback()
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		done = true
		s.phase(PhaseFailed)
		s.phase(PhaseRolledBack)
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	done = true
	s.phase(PhaseCommitted)

	return true, nil
}

func (s *SyncedStore) rollback(tx *sql.Tx) {
	s.phase(PhaseFailed)
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WithError(err).Warn("Rollback failed")
	}
	s.phase(PhaseRolledBack)
}

func (s *SyncedStore) phase(p Phase) {
	if s.onPhase != nil {
		s.onPhase(p)
	}
}

func (s *SyncedStore) observe(direction string, n int) {
	if s.observer != nil {
		s.observer.ObserveSyncBytes(direction, n)
	}
}

func (s *SyncedStore) setVersion(v string) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *SyncedStore) setHeld(v bool) {
	s.mu.Lock()
	s.held = v
	s.mu.Unlock()
}

func (s *SyncedStore) isHeld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func removeLocal(path string) error {
	for _, p := range []string{path, path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale local copy: %w", err)
		}
	}
	return nil
}
