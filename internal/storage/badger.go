package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
)

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
	now func() time.Time
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
		now: time.Now,
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// Key layout:
//
//	thread:{id}
//	thread:{id}:upload:{uuid}
//	community:{id}:pinned
//	preview:{url}
func threadKey(threadID string) []byte {
	return []byte("thread:" + threadID)
}

func uploadPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":upload:")
}

func pinnedKey(communityID string) []byte {
	return []byte("community:" + communityID + ":pinned")
}

func previewKey(url string) []byte {
	return []byte("preview:" + url)
}

// SaveThread stores or replaces a thread.
func (r *BadgerRepository) SaveThread(ctx context.Context, thread domain.Thread) error {
	log := r.log.WithField("thread_id", thread.ID)
	if thread.ID == "" {
		return errors.New("thread id is required")
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = r.now()
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return putThread(txn, thread)
	})
	if err != nil {
		log.WithError(err).Error("Failed to save thread to BadgerDB")
		return fmt.Errorf("failed to save thread: %w", err)
	}
	log.Debug("Thread saved")
	return nil
}

// GetThread loads a thread by ID.
func (r *BadgerRepository) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	var thread domain.Thread
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		thread, err = getThread(txn, threadID)
		return err
	})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}
	return thread, nil
}

// updateThread applies fn to a stored thread inside one transaction.
func (r *BadgerRepository) updateThread(threadID string, fn func(txn *badger.Txn, t *domain.Thread) error) (domain.Thread, error) {
	var thread domain.Thread
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		thread, err = getThread(txn, threadID)
		if err != nil {
			return err
		}
		if err := fn(txn, &thread); err != nil {
			return err
		}
		return putThread(txn, thread)
	})
	return thread, err
}

// SetThreadLock locks or unlocks a thread's chat.
func (r *BadgerRepository) SetThreadLock(ctx context.Context, threadID string, value bool) (domain.Thread, error) {
	log := r.log.WithFields(logrus.Fields{"thread_id": threadID, "locked": value})
	thread, err := r.updateThread(threadID, func(_ *badger.Txn, t *domain.Thread) error {
		t.IsLocked = value
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to set thread lock")
		return domain.Thread{}, fmt.Errorf("failed to set lock on thread %s: %w", threadID, err)
	}
	log.Info("Thread lock updated")
	return thread, nil
}

// ToggleThreadNotifications flips the viewer's notification subscription.
func (r *BadgerRepository) ToggleThreadNotifications(ctx context.Context, threadID string) (domain.Thread, error) {
	thread, err := r.updateThread(threadID, func(_ *badger.Txn, t *domain.Thread) error {
		t.ReceiveNotifications = !t.ReceiveNotifications
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("thread_id", threadID).Error("Failed to toggle notifications")
		return domain.Thread{}, fmt.Errorf("failed to toggle notifications on thread %s: %w", threadID, err)
	}
	return thread, nil
}

// DeleteThread removes a thread, its uploads and any pin pointing at it.
func (r *BadgerRepository) DeleteThread(ctx context.Context, threadID string) error {
	log := r.log.WithField("thread_id", threadID)
	log.Info("Attempting to delete thread")

	err := r.db.Update(func(txn *badger.Txn) error {
		thread, err := getThread(txn, threadID)
		if err != nil {
			return err
		}
		if thread.IsPinned() {
			if err := txn.Delete(pinnedKey(thread.Community.ID)); err != nil {
				return err
			}
		}

		prefix := uploadPrefix(threadID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(threadKey(threadID))
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete thread from BadgerDB")
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}

	log.Info("Thread deleted successfully")
	return nil
}

type storedUpload struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	UploadedAt  time.Time `json:"uploaded_at"`
	// Index is the position within the edit that staged the upload.
	Index int `json:"index"`
}

// EditThread replaces the thread's content and attachments and stores any
// staged uploads alongside it.
func (r *BadgerRepository) EditThread(ctx context.Context, input domain.EditThreadInput) (*domain.Thread, error) {
	log := r.log.WithFields(logrus.Fields{
		"thread_id":   input.ThreadID,
		"attachments": len(input.Attachments),
		"uploads":     len(input.FilesToUpload),
	})

	now := r.now()
	thread, err := r.updateThread(input.ThreadID, func(txn *badger.Txn, t *domain.Thread) error {
		t.Content = input.Content
		t.Attachments = input.Attachments
		t.ModifiedAt = &now

		for i, f := range input.FilesToUpload {
			b, err := json.Marshal(storedUpload{Name: f.Name, ContentType: f.ContentType, Body: f.Body, UploadedAt: now, Index: i})
			if err != nil {
				return fmt.Errorf("failed to marshal upload %s: %w", f.Name, err)
			}
			key := append(uploadPrefix(input.ThreadID), []byte(uuid.NewString())...)
			if err := txn.Set(key, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to edit thread")
		return nil, fmt.Errorf("failed to edit thread %s: %w", input.ThreadID, err)
	}

	log.Info("Thread edited successfully")
	return &thread, nil
}

// GetUploads lists a thread's uploads, oldest edit first and in document
// order within an edit.
func (r *BadgerRepository) GetUploads(ctx context.Context, threadID string) ([]domain.FileUpload, error) {
	var stored []storedUpload
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := uploadPrefix(threadID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var u storedUpload
				if err := json.Unmarshal(val, &u); err != nil {
					return fmt.Errorf("failed to unmarshal upload for key %s: %w", string(it.Item().Key()), err)
				}
				stored = append(stored, u)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get uploads for thread %s: %w", threadID, err)
	}

	sort.SliceStable(stored, func(i, j int) bool {
		if !stored[i].UploadedAt.Equal(stored[j].UploadedAt) {
			return stored[i].UploadedAt.Before(stored[j].UploadedAt)
		}
		return stored[i].Index < stored[j].Index
	})
	uploads := make([]domain.FileUpload, len(stored))
	for i, u := range stored {
		uploads[i] = domain.FileUpload{Name: u.Name, ContentType: u.ContentType, Body: u.Body}
	}
	return uploads, nil
}

// PinThread sets or clears the community's pinned thread.
func (r *BadgerRepository) PinThread(ctx context.Context, threadID, communityID, value string) (domain.Community, error) {
	log := r.log.WithFields(logrus.Fields{
		"thread_id":    threadID,
		"community_id": communityID,
		"pinned":       value != "",
	})

	var community domain.Community
	err := r.db.Update(func(txn *badger.Txn) error {
		thread, err := getThread(txn, threadID)
		if err != nil {
			return err
		}
		if thread.Community.ID != communityID {
			return fmt.Errorf("thread %s does not belong to community %s", threadID, communityID)
		}
		if value == "" {
			err = txn.Delete(pinnedKey(communityID))
		} else {
			err = txn.Set(pinnedKey(communityID), []byte(value))
		}
		if err != nil {
			return err
		}
		community = thread.Community
		community.PinnedThreadID = value
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to pin thread")
		return domain.Community{}, fmt.Errorf("failed to pin thread %s: %w", threadID, err)
	}

	log.Info("Community pin updated")
	return community, nil
}

type cachedPreview struct {
	Preview   domain.LinkPreview `json:"preview"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// GetCachedPreview returns the cached preview for url; expired entries are
// dropped by badger's TTL.
func (r *BadgerRepository) GetCachedPreview(ctx context.Context, url string) (*domain.LinkPreview, error) {
	var entry *cachedPreview
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(previewKey(url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var c cachedPreview
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("failed to unmarshal cached preview: %w", err)
			}
			entry = &c
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read preview cache for %s: %w", url, err)
	}
	if entry == nil {
		return nil, nil
	}
	return &entry.Preview, nil
}

// SetCachedPreview stores p for url. A non-positive ttl stores it forever.
func (r *BadgerRepository) SetCachedPreview(ctx context.Context, url string, p domain.LinkPreview, ttl time.Duration) error {
	b, err := json.Marshal(cachedPreview{Preview: p, FetchedAt: r.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal preview: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(previewKey(url), b)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		r.log.WithError(err).WithField("url", url).Error("Failed to cache preview")
		return fmt.Errorf("failed to cache preview for %s: %w", url, err)
	}
	return nil
}

func getThread(txn *badger.Txn, threadID string) (domain.Thread, error) {
	item, err := txn.Get(threadKey(threadID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Thread{}, ErrNotFound
	}
	if err != nil {
		return domain.Thread{}, err
	}

	var thread domain.Thread
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &thread)
	})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("failed to unmarshal thread %s: %w", threadID, err)
	}

	thread.Community.PinnedThreadID = ""
	if thread.Community.ID != "" {
		pin, err := txn.Get(pinnedKey(thread.Community.ID))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return domain.Thread{}, err
		default:
			v, err := pin.ValueCopy(nil)
			if err != nil {
				return domain.Thread{}, err
			}
			thread.Community.PinnedThreadID = string(v)
		}
	}
	return thread, nil
}

func putThread(txn *badger.Txn, thread domain.Thread) error {
	// Pin state lives on the community key.
	thread.Community.PinnedThreadID = ""
	b, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	return txn.Set(threadKey(thread.ID), b)
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
