package job_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imagemill/backend/features/job"
	"imagemill/backend/internal/config"
)

const jobID = "123e4567-e89b-12d3-a456-426614174000"

func newTestRouter(repo *MockRepository, pub *MockTaskPublisher) http.Handler {
	h := job.NewHandler(job.NewService(repo, pub), 10)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", h.Upload)
	mux.HandleFunc("GET /api/status/{id}", h.Status)
	mux.HandleFunc("GET /api/download/{id}", h.Download)
	mux.HandleFunc("GET /api/download/{id}/file", h.DownloadFile)
	return mux
}

func multipartCSV(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandler_Upload(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockTaskPublisher)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*job.Job")).Run(func(args mock.Arguments) {
		args.Get(1).(*job.Job).ID = jobID
	}).Return(nil)
	pub.On("Publish", config.TopicJobStart, mock.Anything).Return(nil)

	body, contentType := multipartCSV(t, "products.csv", validCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestRouter(repo, pub).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, jobID, resp["request_id"])
}

func TestHandler_Upload_RejectsNonCSV(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockTaskPublisher)

	body, contentType := multipartCSV(t, "products.xlsx", validCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestRouter(repo, pub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Only CSV files are allowed")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandler_Upload_InvalidCSVBody(t *testing.T) {
	repo := new(MockRepository)
	pub := new(MockTaskPublisher)

	body, contentType := multipartCSV(t, "products.csv", "S. No.,Product Name\n1,SKU1\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestRouter(repo, pub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	assert.Contains(t, rec.Body.String(), "missing required column")
}

func TestHandler_Status(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, jobID).Return(&job.Job{
		ID:            jobID,
		Status:        job.StatusInProgress,
		CompletionPct: 50,
		Products: []job.Product{
			{SerialNumber: 1, Name: "SKU1", Outcome: job.OutcomeSuccess},
			{SerialNumber: 2, Name: "SKU2"},
		},
	}, nil)

	router := newTestRouter(repo, new(MockTaskPublisher))

	t.Run("Summary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/status/"+jobID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, job.StatusInProgress, resp["status"])
		assert.Equal(t, 50.0, resp["completion_percentage"])
		assert.NotContains(t, resp, "products")
	})

	t.Run("WithProducts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/status/"+jobID+"?include_products=true", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp["products"], 2)
	})
}

func TestHandler_Status_InvalidID(t *testing.T) {
	repo := new(MockRepository)
	req := httptest.NewRequest(http.MethodGet, "/api/status/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request ID format")
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestHandler_Status_NotFound(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, jobID).Return(nil, sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/status/"+jobID, nil)
	rec := httptest.NewRecorder()

	newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestHandler_Download(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, jobID).Return(&job.Job{
		ID:     jobID,
		Status: job.StatusCompleted,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+jobID, nil)
	rec := httptest.NewRecorder()

	newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/api/download/"+jobID+"/file", resp["download_url"])
}

func TestHandler_Download_NotCompleted(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, jobID).Return(&job.Job{
		ID:     jobID,
		Status: job.StatusInProgress,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+jobID, nil)
	rec := httptest.NewRecorder()

	newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_COMPLETED")
}

func TestHandler_DownloadFile(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Get", mock.Anything, jobID).Return(&job.Job{
		ID:     jobID,
		Status: job.StatusCompleted,
		Products: []job.Product{
			{SerialNumber: 1, Name: "SKU1", InputURLs: []string{"http://img/a.png"}, OutputURLs: []string{"http://out/a.jpg"}, Outcome: job.OutcomeSuccess},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+jobID+"/file", nil)
	rec := httptest.NewRecorder()

	newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), jobID)
	assert.Contains(t, rec.Body.String(), "http://out/a.jpg")
}

func TestHandler_DownloadFile_Errors(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, jobID).Return(nil, sql.ErrNoRows)

		req := httptest.NewRequest(http.MethodGet, "/api/download/"+jobID+"/file", nil)
		rec := httptest.NewRecorder()
		newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("RepoFailure", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, jobID).Return(nil, errors.New("connection reset"))

		req := httptest.NewRequest(http.MethodGet, "/api/download/"+jobID+"/file", nil)
		rec := httptest.NewRecorder()
		newTestRouter(repo, new(MockTaskPublisher)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})
}
