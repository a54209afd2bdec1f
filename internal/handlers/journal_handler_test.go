package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/coopledger/backoffice/internal/services"
)

func newTestRouter(t *testing.T) (*chi.Mux, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := services.NewReportCache(nil)
	handler := NewJournalHandler(
		services.NewPostingService(db, cache),
		services.NewReversalService(db, cache),
	)

	r := chi.NewRouter()
	r.Post("/journal-entries", handler.PostEntry)
	r.Delete("/journal-entries/{entryId}", handler.DeleteEntry)
	return r, mock
}

func TestJournalHandler_PostEntry(t *testing.T) {
	t.Run("malformed body is a bad request", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/journal-entries", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/journal-entries",
			strings.NewReader(`{"bogusField": true}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure lists field details", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/journal-entries", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "details")
	})

	t.Run("imbalanced entry is a bad request", func(t *testing.T) {
		r, _ := newTestRouter(t)

		body := `{
			"entryDate": "2025-03-01T00:00:00Z",
			"referenceName": "INV-001",
			"journalType": "generalJournal",
			"items": [
				{"accountId": "1010", "debit": "100", "credit": "0"},
				{"accountId": "4010", "debit": "0", "credit": "99"}
			]
		}`
		req := httptest.NewRequest(http.MethodPost, "/journal-entries", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "balance")
	})

	t.Run("balanced entry posts and returns 201", func(t *testing.T) {
		r, mock := newTestRouter(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO journal_entries").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO journal_items").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO journal_items").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT root_type FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"root_type"}).AddRow("Assets"))
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT root_type FROM accounts").
			WillReturnRows(sqlmock.NewRows([]string{"root_type"}).AddRow("Revenue"))
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body := `{
			"entryDate": "2025-03-01T00:00:00Z",
			"referenceName": "INV-001",
			"journalType": "generalJournal",
			"items": [
				{"accountId": "1010", "debit": "100", "credit": "0"},
				{"accountId": "4010", "debit": "0", "credit": "100"}
			]
		}`
		req := httptest.NewRequest(http.MethodPost, "/journal-entries", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":true`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestJournalHandler_DeleteEntry(t *testing.T) {
	t.Run("missing entry is a 404", func(t *testing.T) {
		r, mock := newTestRouter(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT entry_date FROM journal_entries").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		req := httptest.NewRequest(http.MethodDelete, "/journal-entries/nope", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
