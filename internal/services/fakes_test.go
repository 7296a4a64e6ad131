package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/scm"
	"github.com/mvpmarket/mvpmarket/internal/storage"
)

// ---- in-memory entry store --------------------------------------------------

// fakeEntryStore mimics EntryRepository semantics: not-found reads return
// (nil, nil), writes are revision-guarded, and status writes validate the
// transition table.
type fakeEntryStore struct {
	mu      sync.Mutex
	entries map[string]*models.Entry
	nextID  int

	getErr    error
	updateErr error
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: map[string]*models.Entry{}}
}

func cloneEntry(e *models.Entry) *models.Entry {
	c := *e
	c.VersionHistory = append(models.VersionHistory(nil), e.VersionHistory...)
	return &c
}

func (s *fakeEntryStore) seed(e *models.Entry) *models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		s.nextID++
		e.ID = fmt.Sprintf("entry-%d", s.nextID)
	}
	if e.Revision == 0 {
		e.Revision = 1
	}
	s.entries[e.ID] = cloneEntry(e)
	return e
}

func (s *fakeEntryStore) Create(ctx context.Context, e *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = fmt.Sprintf("entry-%d", s.nextID)
	e.Revision = 1
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (s *fakeEntryStore) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (s *fakeEntryStore) GetByRepo(ctx context.Context, owner, name string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.RepoOwner != nil && *e.RepoOwner == owner && e.RepoName != nil && *e.RepoName == name {
			return cloneEntry(e), nil
		}
	}
	return nil, nil
}

func (s *fakeEntryStore) Update(ctx context.Context, e *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored, ok := s.entries[e.ID]
	if !ok {
		return fmt.Errorf("entry not found")
	}
	if stored.Revision != e.Revision {
		return repositories.ErrRevisionConflict
	}
	if !stored.Status.CanTransitionTo(e.Status) {
		return fmt.Errorf("%w: %s -> %s", repositories.ErrInvalidTransition, stored.Status, e.Status)
	}
	e.Revision++
	e.UpdatedAt = time.Now()
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (s *fakeEntryStore) SetStatus(ctx context.Context, e *models.Entry, next models.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", repositories.ErrInvalidTransition, e.Status, next)
	}
	stored, ok := s.entries[e.ID]
	if !ok {
		return fmt.Errorf("entry not found")
	}
	if stored.Revision != e.Revision {
		return repositories.ErrRevisionConflict
	}
	e.Status = next
	e.Revision++
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

// mustGet reads an entry directly, bypassing error injection.
func (s *fakeEntryStore) mustGet(id string) *models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntry(s.entries[id])
}

// ---- in-memory storage backend ----------------------------------------------

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte

	uploadErr   error
	downloadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (m *memStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.files[path] = data
	m.mu.Unlock()
	return &storage.UploadResult{Path: path, Size: int64(len(data)), Checksum: sha256Hex(data)}, nil
}

func (m *memStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	m.mu.Lock()
	data, ok := m.files[path]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://cdn.test/" + path, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	_, ok := m.files[path]
	m.mu.Unlock()
	return ok, nil
}

func (m *memStorage) GetMetadata(ctx context.Context, path string) (*storage.FileMetadata, error) {
	m.mu.Lock()
	data, ok := m.files[path]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return &storage.FileMetadata{Path: path, Size: int64(len(data)), Checksum: sha256Hex(data)}, nil
}

// ---- pipeline step fakes ----------------------------------------------------

type fakeScanner struct {
	ok     bool
	reason string
	err    error

	gotEntryID string
	gotPath    string
}

func (f *fakeScanner) Scan(ctx context.Context, entryID, storagePath string) (bool, string, error) {
	f.gotEntryID = entryID
	f.gotPath = storagePath
	return f.ok, f.reason, f.err
}

type fakePinner struct {
	id     string
	err    error
	panics bool

	gotFileName string
	gotContent  []byte
}

func (f *fakePinner) Pin(ctx context.Context, fileName string, content io.Reader) (string, error) {
	if f.panics {
		panic("pinner exploded")
	}
	f.gotFileName = fileName
	f.gotContent, _ = io.ReadAll(content)
	return f.id, f.err
}

// ---- source-control fake ----------------------------------------------------

type fakeConnector struct {
	release    *scm.Release
	releaseErr error
	repo       *scm.Repository
	commit     *scm.Commit
	zipContent string

	downloads int
}

func (f *fakeConnector) FetchRepository(ctx context.Context, owner, name string) (*scm.Repository, error) {
	if f.repo == nil {
		return nil, scm.ErrRepositoryNotFound
	}
	return f.repo, nil
}

func (f *fakeConnector) FetchLatestRelease(ctx context.Context, owner, name string) (*scm.Release, error) {
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	if f.release == nil {
		return nil, scm.ErrNoReleases
	}
	return f.release, nil
}

func (f *fakeConnector) FetchLatestCommit(ctx context.Context, owner, name, branch string) (*scm.Commit, error) {
	if f.commit == nil {
		return nil, scm.ErrBranchNotFound
	}
	return f.commit, nil
}

func (f *fakeConnector) DownloadZipball(ctx context.Context, owner, name, ref string) (io.ReadCloser, error) {
	f.downloads++
	return io.NopCloser(bytes.NewReader([]byte(f.zipContent))), nil
}

// ---- shared wiring ----------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStoreWriter(archives, previews *memStorage) *StoreWriter {
	return NewStoreWriter(archives, previews, 15*time.Minute)
}
