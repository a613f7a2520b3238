package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
)

// fakeStore is an in-memory UploadStore plus DeadLetterStore.
type fakeStore struct {
	mu       sync.Mutex
	uploads  map[uint]models.Upload
	failures map[uint]models.FailedDeletion
	nextID   uint

	listErr      error
	getErr       error
	deleteRowErr map[uint]error
	panicOnGet   map[uint]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploads:      map[uint]models.Upload{},
		failures:     map[uint]models.FailedDeletion{},
		deleteRowErr: map[uint]error{},
		panicOnGet:   map[uint]bool{},
		nextID:       1,
	}
}

func (f *fakeStore) addUpload(key string, deletionTime time.Time) models.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	u := models.Upload{
		ID:                 id,
		FileName:           key,
		StorageKey:         key,
		Status:             models.UploadStatusActive,
		CustomDeletionTime: &deletionTime,
	}
	f.uploads[id] = u
	return u
}

func (f *fakeStore) addFailure(fd models.FailedDeletion) models.FailedDeletion {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	fd.ID = id
	if fd.Status == "" {
		fd.Status = models.DeletionPending
	}
	f.failures[id] = fd
	return fd
}

func (f *fakeStore) ExpiredUploads(_ context.Context, now time.Time, limit int) ([]models.Upload, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Upload
	for _, u := range f.uploads {
		if u.Expired(now) {
			out = append(out, u)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetUpload(_ context.Context, id uint) (*models.Upload, error) {
	if f.panicOnGet[id] {
		panic("corrupt row")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return nil, ErrUploadNotFound
	}
	return &u, nil
}

func (f *fakeStore) DeleteUpload(_ context.Context, id uint) error {
	if err := f.deleteRowErr[id]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, id)
	return nil
}

func (f *fakeStore) CreateFailedDeletion(_ context.Context, fd *models.FailedDeletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd.ID = f.nextID
	f.nextID++
	f.failures[fd.ID] = *fd
	return nil
}

func (f *fakeStore) PendingDeletions(_ context.Context, maxRetries, limit int) ([]models.FailedDeletion, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FailedDeletion
	for _, fd := range f.failures {
		if fd.Status == models.DeletionPending && fd.RetryCount < maxRetries {
			out = append(out, fd)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateFailedDeletion(_ context.Context, fd *models.FailedDeletion) error {
	if !fd.Status.Valid() {
		return errors.New("invalid status")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[fd.ID] = *fd
	return nil
}

func (f *fakeStore) failure(id uint) models.FailedDeletion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[id]
}

func (f *fakeStore) uploadExists(id uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.uploads[id]
	return ok
}

// fakeDeleter fails deletion for keys listed in failing and records the order
// of operations.
type fakeDeleter struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
}

func newFakeDeleter(failingKeys ...string) *fakeDeleter {
	failing := map[string]bool{}
	for _, k := range failingKeys {
		failing[k] = true
	}
	return &fakeDeleter{failing: failing}
}

func (f *fakeDeleter) DeleteObject(_ context.Context, key string) storage.DeleteOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.failing[key] {
		return storage.DeleteOutcome{ErrName: "InternalError", ErrMessage: "simulated outage", StatusCode: 500}
	}
	return storage.DeleteOutcome{Deleted: true}
}

func (f *fakeDeleter) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

// fixedNow gives deterministic run timing.
func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
