// internal/services/application_service_test.go
package services

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kucash/kucash-backend/internal/config"
	"github.com/kucash/kucash-backend/internal/models"
)

func newTestService(t *testing.T) (*ApplicationService, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	storage, err := NewStorageService(&config.Config{})
	require.NoError(t, err)

	return NewApplicationService(gdb, storage, nil), mock
}

func validRequest() *SubmitApplicationRequest {
	return &SubmitApplicationRequest{
		FirstName:      "Devi",
		LastName:       "Sharma",
		Email:          "devi@example.com",
		Phone:          "9876543210",
		PAN:            "ABCDE1234F",
		Aadhaar:        "123412341234",
		CurrentAddress: "12 MG Road, Bengaluru",
		LoanType:       "personal",
		LoanAmount:     750_000,
	}
}

func expectLoanIDLookup(mock sqlmock.Sqlmock, existing ...string) {
	rows := sqlmock.NewRows([]string{"loan_id"})
	for _, id := range existing {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT "loan_id" FROM "loan_applications"`).WillReturnRows(rows)
}

func expectInsertSuccess(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()
}

func expectDocumentRefsUpdate(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "loan_applications"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// uploadableFile builds a file header with real backing content so
// Open() succeeds in tests.
func uploadableFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("doc", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File["doc"][0]
}

func TestSubmitWithoutReferral(t *testing.T) {
	svc, mock := newTestService(t)

	expectLoanIDLookup(mock)
	expectInsertSuccess(mock)

	app, err := svc.Submit(uuid.New(), validRequest(), &DocumentSet{}, RequestMeta{
		Source:    models.SubmissionSourceWebsite,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)

	assert.Len(t, app.LoanID, 8)
	assert.True(t, strings.HasSuffix(app.LoanID, "001"))
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Nil(t, app.AgentID)
	assert.Equal(t, int64(0), app.Commission)
	assert.Equal(t, models.SubmissionSourceWebsite, app.Source)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitWithActiveAgentReferral(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "status", "agent_code"}).
			AddRow(uuid.New(), "Agent Kumar", "kumar@kucash.in", "agent", "active", "KAXYZ123"))
	expectLoanIDLookup(mock)
	expectInsertSuccess(mock)

	req := validRequest()
	req.ReferralCode = "KAXYZ123"
	req.LoanAmount = 750_000

	app, err := svc.Submit(uuid.New(), req, &DocumentSet{}, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	require.NotNil(t, app.AgentID)
	assert.Equal(t, "KAXYZ123", *app.AgentID)
	assert.Equal(t, int64(3_000), app.Commission)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitUnknownReferralStillSucceeds(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(gorm.ErrRecordNotFound)
	expectLoanIDLookup(mock)
	expectInsertSuccess(mock)

	req := validRequest()
	req.ReferralCode = "NOSUCH"

	app, err := svc.Submit(uuid.New(), req, &DocumentSet{}, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	assert.Nil(t, app.AgentID)
	assert.Equal(t, int64(0), app.Commission)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsOverlongPAN(t *testing.T) {
	svc, mock := newTestService(t)

	req := validRequest()
	req.PAN = "ABCDE1234FXYZ" // 13 characters

	_, err := svc.Submit(uuid.New(), req, &DocumentSet{}, RequestMeta{})

	var vErr *ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Violations, 1)
	assert.Contains(t, strings.ToLower(vErr.Violations[0]), "pan")
	assert.Contains(t, vErr.Violations[0], "at most 12")

	// Validation failures never touch storage.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitCollectsAllViolations(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.PAN = strings.Repeat("X", 13)
	req.Phone = strings.Repeat("9", 16)
	req.Email = "not-an-email"

	_, err := svc.Submit(uuid.New(), req, &DocumentSet{}, RequestMeta{})

	var vErr *ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Violations, 3)
}

func TestSubmitRejectsOversizedDocument(t *testing.T) {
	svc, mock := newTestService(t)

	docs := &DocumentSet{
		PanCard: &multipart.FileHeader{Filename: "pan.pdf", Size: MaxDocumentBytes + 1},
	}

	_, err := svc.Submit(uuid.New(), validRequest(), docs, RequestMeta{})

	var vErr *ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Violations, 1)
	assert.Contains(t, vErr.Violations[0], "panCard")
	assert.Contains(t, vErr.Violations[0], "2097153 bytes")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitAcceptsDocumentAtSizeLimit(t *testing.T) {
	svc, mock := newTestService(t)

	expectLoanIDLookup(mock)
	expectInsertSuccess(mock)

	// Exactly at the limit passes validation. The synthetic header has no
	// backing file, so the upload itself fails and the slot degrades to a
	// null URL without failing the submission.
	docs := &DocumentSet{
		PanCard: &multipart.FileHeader{Filename: "pan.pdf", Size: MaxDocumentBytes},
	}

	app, err := svc.Submit(uuid.New(), validRequest(), docs, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	assert.Nil(t, app.PanCardURL)
	assert.Empty(t, app.DocumentKeys)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitStoresExtraDocuments(t *testing.T) {
	svc, mock := newTestService(t)

	expectLoanIDLookup(mock)
	expectInsertSuccess(mock)
	expectDocumentRefsUpdate(mock)

	docs := &DocumentSet{
		PanCard: uploadableFile(t, "pan.pdf", []byte("%PDF-1.4 pan")),
		Other: []NamedDocument{
			{Name: "bankStatement", File: uploadableFile(t, "statement.pdf", []byte("%PDF-1.4 stmt"))},
			{Name: "", File: uploadableFile(t, "unnamed.pdf", []byte("%PDF-1.4 skip"))},
		},
	}

	app, err := svc.Submit(uuid.New(), validRequest(), docs, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	require.NotNil(t, app.PanCardURL)

	// The named extra document lands in the JSONB map; the blank-named
	// one is skipped entirely.
	require.NotNil(t, app.OtherDocuments)
	url, ok := app.OtherDocuments["bankStatement"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, url)
	assert.Len(t, app.OtherDocuments, 1)

	require.Len(t, app.DocumentKeys, 2)
	for _, key := range app.DocumentKeys {
		assert.True(t, strings.HasPrefix(key, "loan-documents/"+app.LoanID+"/"), key)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitKeysDocumentsUnderPersistedLoanID(t *testing.T) {
	svc, mock := newTestService(t)

	prefix, err := loanIDPrefix("Devi", time.Now())
	require.NoError(t, err)

	// The first insert loses the identifier race; documents must end up
	// keyed under the identifier that was actually persisted.
	expectLoanIDLookup(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnError(&pgconn.PgError{
			Code:    "23505",
			Message: `duplicate key value violates unique constraint "idx_loan_applications_loan_id"`,
		})
	mock.ExpectRollback()

	expectLoanIDLookup(mock, prefix+"001")
	expectInsertSuccess(mock)
	expectDocumentRefsUpdate(mock)

	docs := &DocumentSet{
		PanCard: uploadableFile(t, "pan.pdf", []byte("%PDF-1.4 pan")),
	}

	app, err := svc.Submit(uuid.New(), validRequest(), docs, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	assert.Equal(t, prefix+"002", app.LoanID)
	require.Len(t, app.DocumentKeys, 1)
	assert.True(t, strings.HasPrefix(app.DocumentKeys[0], "loan-documents/"+prefix+"002/"), app.DocumentKeys[0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRetriesOnLoanIDConflict(t *testing.T) {
	svc, mock := newTestService(t)

	prefix, err := loanIDPrefix("Devi", time.Now())
	require.NoError(t, err)

	// First attempt: empty prefix scope, insert loses the race.
	expectLoanIDLookup(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnError(&pgconn.PgError{
			Code:    "23505",
			Message: `duplicate key value violates unique constraint "idx_loan_applications_loan_id"`,
		})
	mock.ExpectRollback()

	// Second attempt: the winner's row is visible now, so the sequence
	// advances past it.
	expectLoanIDLookup(mock, prefix+"001")
	expectInsertSuccess(mock)

	app, err := svc.Submit(uuid.New(), validRequest(), &DocumentSet{}, RequestMeta{Source: models.SubmissionSourceWebsite})
	require.NoError(t, err)

	assert.Equal(t, prefix+"002", app.LoanID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSurfacesPersistenceError(t *testing.T) {
	svc, mock := newTestService(t)

	expectLoanIDLookup(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnError(&pgconn.PgError{
			Code:    "23502",
			Message: `null value in column "email" violates not-null constraint`,
		})
	mock.ExpectRollback()

	_, err := svc.Submit(uuid.New(), validRequest(), &DocumentSet{}, RequestMeta{})

	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "23502", pErr.Code)
	assert.Contains(t, pErr.Message, "not-null constraint")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReferralLookupErrorDegrades(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(assert.AnError)

	agentCode, commission := svc.resolveReferral("KAXYZ123", 750_000)

	assert.Nil(t, agentCode)
	assert.Equal(t, int64(0), commission)
}
