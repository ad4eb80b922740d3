// internal/handlers/application_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kucash/kucash-backend/internal/config"
	"github.com/kucash/kucash-backend/internal/services"
)

var testUserID = uuid.New()

func setupIntakeRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	storage, err := services.NewStorageService(&config.Config{})
	require.NoError(t, err)

	handler := NewApplicationHandler(services.NewApplicationService(gdb, storage, nil))

	asCustomer := func(c *gin.Context) {
		c.Set("user_id", testUserID.String())
		c.Set("user_role", "customer")
	}
	asAgent := func(c *gin.Context) {
		c.Set("user_id", testUserID.String())
		c.Set("user_role", "agent")
		c.Set("agent_code", "KAXYZ123")
	}

	r := gin.New()
	r.POST("/api/v1/applications", asCustomer, handler.SubmitApplication)
	r.POST("/api/v1/assisted/applications", asAgent, handler.SubmitApplication)
	r.POST("/api/v1/anonymous/applications", handler.SubmitApplication)
	return r, mock
}

func intakeForm(t *testing.T, fields map[string]string, withPanCard bool) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if withPanCard {
		fw, err := w.CreateFormFile("panCard", "pan.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"firstName":      "Devi",
		"lastName":       "Sharma",
		"email":          "devi@example.com",
		"phone":          "9876543210",
		"pan":            "ABCDE1234F",
		"aadhaar":        "123412341234",
		"currentAddress": "12 MG Road, Bengaluru",
		"loanType":       "personal",
		"loanAmount":     "750000",
	}
}

func TestSubmitApplicationRequiresAuth(t *testing.T) {
	r, _ := setupIntakeRouter(t)

	body, contentType := intakeForm(t, validFields(), false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/anonymous/applications", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, "UNAUTHENTICATED", errObj["code"])
}

func TestSubmitApplicationSuccess(t *testing.T) {
	r, mock := setupIntakeRouter(t)

	mock.ExpectQuery(`SELECT "loan_id" FROM "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()
	// Uploaded document references are written after the insert.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "loan_applications"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, contentType := intakeForm(t, validFields(), true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	data := resp["data"].(map[string]interface{})
	appID := data["application_id"].(string)
	assert.Len(t, appID, 8)
	assert.True(t, strings.HasSuffix(appID, "001"))

	// Local storage mode still yields a document URL for the uploaded slot.
	app := data["application"].(map[string]interface{})
	assert.NotEmpty(t, app["pan_card_url"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitApplicationExtraDocuments(t *testing.T) {
	r, mock := setupIntakeRouter(t)

	mock.ExpectQuery(`SELECT "loan_id" FROM "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "loan_applications"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range validFields() {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.WriteField("otherDocCount", "2"))
	require.NoError(t, w.WriteField("otherDocName_0", "bankStatement"))
	fw, err := w.CreateFormFile("otherDocFile_0", "statement.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 stmt"))
	require.NoError(t, err)
	// A file without a name is ignored.
	require.NoError(t, w.WriteField("otherDocName_1", ""))
	fw, err = w.CreateFormFile("otherDocFile_1", "unnamed.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 skip"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	app := data["application"].(map[string]interface{})

	other := app["other_documents"].(map[string]interface{})
	assert.Len(t, other, 1)
	assert.NotEmpty(t, other["bankStatement"])

	keys := app["document_keys"].([]interface{})
	assert.Len(t, keys, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitApplicationAgentBranchSource(t *testing.T) {
	r, mock := setupIntakeRouter(t)

	mock.ExpectQuery(`SELECT "loan_id" FROM "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "loan_applications"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	body, contentType := intakeForm(t, validFields(), false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assisted/applications", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	app := data["application"].(map[string]interface{})
	assert.Equal(t, "branch", app["source"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitApplicationValidationFailure(t *testing.T) {
	r, mock := setupIntakeRouter(t)

	fields := validFields()
	fields["pan"] = "ABCDE1234FXYZ" // 13 characters
	fields["phone"] = strings.Repeat("9", 16)

	body, contentType := intakeForm(t, fields, false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_FAILED", errObj["code"])

	// Every violation is reported in one response.
	details := errObj["details"].([]interface{})
	assert.Len(t, details, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}
