package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- row builders -----------------------------------------------------------

var entryCols = []string{
	"id", "seller_id", "slug", "title", "tagline", "description", "features", "tech_stack",
	"category", "preview_images", "license_terms", "access_tier", "price_cents",
	"content_hash", "previous_content_hash", "original_file_name", "file_size",
	"version_number", "version_history", "changelog", "status", "last_processing_error",
	"repo_owner", "repo_name", "webhook_secret", "last_synced_commit_sha",
	"download_count", "average_rating", "revision", "created_at", "updated_at", "published_at",
}

func entryRow(id, sellerID, slug string, status models.EntryStatus) *sqlmock.Rows {
	return sqlmock.NewRows(entryCols).AddRow(
		id, sellerID, slug, "SaaS Kit", nil, nil, "{}", "{}",
		"saas", "{}", nil, nil, nil,
		"hash-abc", nil, "kit.zip", int64(4096),
		"1.0.0", []byte(`[]`), nil, string(status), nil,
		nil, nil, nil, nil,
		int64(7), nil, int64(1), time.Now(), time.Now(), nil,
	)
}

// ---- signing-only storage fake ----------------------------------------------

type urlStorage struct{}

func (urlStorage) Upload(ctx context.Context, path string, r io.Reader, size int64) (*storage.UploadResult, error) {
	return &storage.UploadResult{Path: path}, nil
}
func (urlStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (urlStorage) Delete(ctx context.Context, path string) error { return nil }
func (urlStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://signed.test/" + path + "?sig=abc", nil
}
func (urlStorage) Exists(ctx context.Context, path string) (bool, error) { return true, nil }
func (urlStorage) GetMetadata(ctx context.Context, path string) (*storage.FileMetadata, error) {
	return &storage.FileMetadata{Path: path}, nil
}

// ---- harness ----------------------------------------------------------------

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	entryRepo := repositories.NewEntryRepository(db)
	store := services.NewStoreWriter(urlStorage{}, urlStorage{}, 15*time.Minute)
	writer := services.NewEntryWriter(entryRepo, store)
	return NewHandler(entryRepo, writer, nil, nil, store), mock
}

// authSeller fakes an authenticated request by injecting the seller ID the way
// AuthMiddleware would.
func authSeller(sellerID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextSellerID, sellerID)
		c.Next()
	}
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

// ---- public browse ----------------------------------------------------------

func TestListEntries(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_entries`).
		WithArgs(models.StatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries").
		WithArgs(models.StatusApproved, 20, 0).
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusApproved))

	router := gin.New()
	router.GET("/v1/entries", h.ListEntries)
	w := doRequest(router, http.MethodGet, "/v1/entries")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []models.Entry `json:"entries"`
		Total   int            `json:"total"`
		Limit   int            `json:"limit"`
		Offset  int            `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 20, body.Limit)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "saas-kit-x1", body.Entries[0].Slug)
}

func TestListEntries_PageSizeClamped(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// limit=500 must be clamped to 100 before reaching the repository.
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries").
		WithArgs(models.StatusApproved, 100, 40).
		WillReturnRows(sqlmock.NewRows(entryCols))

	router := gin.New()
	router.GET("/v1/entries", h.ListEntries)
	w := doRequest(router, http.MethodGet, "/v1/entries?limit=500&offset=40")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntry_Approved(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE slug").
		WithArgs("saas-kit-x1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusApproved))

	router := gin.New()
	router.GET("/v1/entries/:slug", h.GetEntry)
	w := doRequest(router, http.MethodGet, "/v1/entries/saas-kit-x1")

	require.Equal(t, http.StatusOK, w.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "entry-1", entry.ID)
}

func TestGetEntry_PendingIsInvisible(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE slug").
		WithArgs("saas-kit-x1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusPendingReview))

	router := gin.New()
	router.GET("/v1/entries/:slug", h.GetEntry)
	w := doRequest(router, http.MethodGet, "/v1/entries/saas-kit-x1")

	// Unapproved entries 404 publicly, same as entries that do not exist.
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEntry_NotFound(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE slug").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(entryCols))

	router := gin.New()
	router.GET("/v1/entries/:slug", h.GetEntry)
	w := doRequest(router, http.MethodGet, "/v1/entries/ghost")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- download ---------------------------------------------------------------

func TestDownloadEntry(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE slug").
		WithArgs("saas-kit-x1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusApproved))
	// Asynchronous download-count bump; may or may not land before the test ends.
	mock.ExpectExec("UPDATE catalog_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := gin.New()
	router.GET("/v1/entries/:slug/download", h.DownloadEntry)
	w := doRequest(router, http.MethodGet, "/v1/entries/saas-kit-x1/download")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		DownloadURL string `json:"download_url"`
		FileName    string `json:"file_name"`
		FileSize    int64  `json:"file_size"`
		ContentHash string `json:"content_hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://signed.test/mvps/saas-kit-x1/kit.zip?sig=abc", body.DownloadURL)
	assert.Equal(t, "kit.zip", body.FileName)
	assert.Equal(t, int64(4096), body.FileSize)
	assert.Equal(t, "hash-abc", body.ContentHash)
}

func TestDownloadEntry_UnapprovedIs404(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE slug").
		WithArgs("saas-kit-x1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusScanFailed))

	router := gin.New()
	router.GET("/v1/entries/:slug/download", h.DownloadEntry)
	w := doRequest(router, http.MethodGet, "/v1/entries/saas-kit-x1/download")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- seller ownership -------------------------------------------------------

func TestGetOwnEntry(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE id").
		WithArgs("entry-1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusScanFailed))

	router := gin.New()
	router.GET("/api/v1/entries/:id", authSeller("seller-1"), h.GetOwnEntry)
	w := doRequest(router, http.MethodGet, "/api/v1/entries/entry-1")

	// Sellers see their entries in any status.
	require.Equal(t, http.StatusOK, w.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, models.StatusScanFailed, entry.Status)
}

func TestGetOwnEntry_OtherSeller(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE id").
		WithArgs("entry-1").
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusApproved))

	router := gin.New()
	router.GET("/api/v1/entries/:id", authSeller("seller-2"), h.GetOwnEntry)
	w := doRequest(router, http.MethodGet, "/api/v1/entries/entry-1")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetOwnEntry_Unauthenticated(t *testing.T) {
	h, _ := newTestHandler(t)

	router := gin.New()
	router.GET("/api/v1/entries/:id", h.GetOwnEntry)
	w := doRequest(router, http.MethodGet, "/api/v1/entries/entry-1")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOwnEntry_NotFound(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(entryCols))

	router := gin.New()
	router.GET("/api/v1/entries/:id", authSeller("seller-1"), h.GetOwnEntry)
	w := doRequest(router, http.MethodGet, "/api/v1/entries/ghost")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOwnEntries(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_entries`).
		WithArgs("seller-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM catalog_entries").
		WithArgs("seller-1", 20, 0).
		WillReturnRows(entryRow("entry-1", "seller-1", "saas-kit-x1", models.StatusPendingReview))

	router := gin.New()
	router.GET("/api/v1/entries", authSeller("seller-1"), h.ListOwnEntries)
	w := doRequest(router, http.MethodGet, "/api/v1/entries")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []models.Entry `json:"entries"`
		Total   int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, models.StatusPendingReview, body.Entries[0].Status)
}

// ---- service error mapping --------------------------------------------------

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &services.ValidationError{Reason: "archive is too small"}, http.StatusBadRequest},
		{"not found", services.ErrEntryNotFound, http.StatusNotFound},
		{"not linked", services.ErrNotLinked, http.StatusBadRequest},
		{"revision conflict", repositories.ErrRevisionConflict, http.StatusConflict},
		{"invalid transition", repositories.ErrInvalidTransition, http.StatusConflict},
		{"unknown", sql.ErrConnDone, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeServiceError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
