// internal/services/application_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kucash/kucash-backend/internal/models"
	"github.com/kucash/kucash-backend/internal/utils"
)

// maxLoanIDAttempts bounds the insert retries when two submissions race to
// the same prefix-scoped sequence. Each retry re-reads the prefix, which by
// then includes the winner's row.
const maxLoanIDAttempts = 3

type ApplicationService struct {
	db            *gorm.DB
	storage       *StorageService
	notifications *NotificationService
}

func NewApplicationService(db *gorm.DB, storage *StorageService, notifications *NotificationService) *ApplicationService {
	return &ApplicationService{
		db:            db,
		storage:       storage,
		notifications: notifications,
	}
}

// SubmitApplicationRequest carries the scalar fields of the intake form.
// Fields are opaque to the pipeline and validated for presence and length
// only; underwriting interprets them later.
type SubmitApplicationRequest struct {
	FirstName        string  `form:"firstName" validate:"required,max=50"`
	LastName         string  `form:"lastName" validate:"max=50"`
	Email            string  `form:"email" validate:"required,email,max=255"`
	Phone            string  `form:"phone" validate:"required,max=15"`
	PAN              string  `form:"pan" validate:"required,max=12"`
	Aadhaar          string  `form:"aadhaar" validate:"required,max=12"`
	DateOfBirth      string  `form:"dateOfBirth" validate:"max=20"`
	Gender           string  `form:"gender" validate:"max=20"`
	MaritalStatus    string  `form:"maritalStatus" validate:"max=20"`
	CurrentAddress   string  `form:"currentAddress" validate:"required,max=500"`
	PermanentAddress string  `form:"permanentAddress" validate:"max=500"`
	City             string  `form:"city" validate:"max=100"`
	State            string  `form:"state" validate:"max=100"`
	Pincode          string  `form:"pincode" validate:"max=10"`
	EmploymentType   string  `form:"employmentType" validate:"max=20"`
	CompanyName      string  `form:"companyName" validate:"max=200"`
	Designation      string  `form:"designation" validate:"max=100"`
	MonthlyIncome    float64 `form:"monthlyIncome" validate:"min=0"`
	WorkExperience   string  `form:"workExperience" validate:"max=50"`
	LoanType         string  `form:"loanType" validate:"required,max=20"`
	LoanAmount       int64   `form:"loanAmount" validate:"required,min=1"`
	TenureMonths     int     `form:"tenureMonths" validate:"min=0"`
	Purpose          string  `form:"purpose" validate:"max=500"`
	ReferralCode     string  `form:"referralCode" validate:"max=20"`
}

type NamedDocument struct {
	Name string
	File *multipart.FileHeader
}

// DocumentSet holds the four well-known document slots plus any extra
// caller-named documents.
type DocumentSet struct {
	PanCard      *multipart.FileHeader
	AadhaarCard  *multipart.FileHeader
	IncomeProof  *multipart.FileHeader
	AddressProof *multipart.FileHeader
	Other        []NamedDocument
}

type RequestMeta struct {
	Source    string
	IPAddress string
	UserAgent string
}

// ValidationFailedError aggregates every violated constraint so the
// applicant can fix everything in one round trip.
type ValidationFailedError struct {
	Violations []string
}

func (e *ValidationFailedError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// PersistenceError surfaces the storage diagnostic verbatim for operator
// triage.
type PersistenceError struct {
	Code    string
	Message string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %s", e.Code, e.Message)
}

// Submit runs the intake pipeline: validate, resolve the referral, assign
// a loan identifier, persist exactly one row, then upload and attach the
// documents. Referral misses and individual document-upload failures
// degrade silently; only validation and the insert can fail the
// submission.
func (s *ApplicationService) Submit(userID uuid.UUID, req *SubmitApplicationRequest, docs *DocumentSet, meta RequestMeta) (*models.LoanApplication, error) {
	if violations := validateSubmission(req, docs); len(violations) > 0 {
		return nil, &ValidationFailedError{Violations: violations}
	}

	agentCode, commission := s.resolveReferral(req.ReferralCode, req.LoanAmount)

	app := &models.LoanApplication{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		PAN:              req.PAN,
		Aadhaar:          req.Aadhaar,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		MaritalStatus:    req.MaritalStatus,
		CurrentAddress:   req.CurrentAddress,
		PermanentAddress: req.PermanentAddress,
		City:             req.City,
		State:            req.State,
		Pincode:          req.Pincode,
		EmploymentType:   req.EmploymentType,
		CompanyName:      req.CompanyName,
		Designation:      req.Designation,
		MonthlyIncome:    req.MonthlyIncome,
		WorkExperience:   req.WorkExperience,
		LoanType:         req.LoanType,
		LoanAmount:       req.LoanAmount,
		TenureMonths:     req.TenureMonths,
		Purpose:          req.Purpose,
		AgentID:          agentCode,
		Commission:       commission,
		Status:           models.ApplicationStatusPending,
		UserID:           userID,
		Source:           meta.Source,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
	}

	var lastErr error
	for attempt := 0; attempt < maxLoanIDAttempts; attempt++ {
		app.LoanID = s.generateLoanID(req.FirstName, time.Now())

		err := s.db.Create(app).Error
		if err == nil {
			// Documents wait for the insert so their object keys reference
			// the identifier that actually won, not an abandoned attempt.
			s.uploadDocuments(app, docs)
			s.persistDocumentRefs(app)
			if s.notifications != nil {
				go s.notifications.ApplicationSubmitted(app)
			}
			return app, nil
		}

		if isUniqueViolation(err) {
			logrus.WithField("loan_id", app.LoanID).
				Warn("Loan ID conflict on insert, regenerating sequence")
			lastErr = err
			continue
		}

		return nil, newPersistenceError(err)
	}

	return nil, newPersistenceError(lastErr)
}

// validateSubmission collects every field and file-size violation before
// any storage is contacted.
func validateSubmission(req *SubmitApplicationRequest, docs *DocumentSet) []string {
	var violations []string

	if err := utils.ValidateStruct(req); err != nil {
		for _, v := range utils.GetValidationErrors(err) {
			violations = append(violations, v.Message)
		}
	}

	for _, doc := range docs.slots() {
		if doc.File == nil {
			continue
		}
		if doc.File.Size > MaxDocumentBytes {
			violations = append(violations, fmt.Sprintf(
				"%s exceeds the %d byte document limit (%d bytes)",
				doc.Name, MaxDocumentBytes, doc.File.Size))
		}
	}

	return violations
}

// resolveReferral maps a referral code to an active agent and the slab
// commission. A missing or invalid code is never a hard failure; the
// submission proceeds unattributed.
func (s *ApplicationService) resolveReferral(code string, loanAmount int64) (*string, int64) {
	if code == "" {
		return nil, 0
	}

	var agent models.User
	err := s.db.
		Where("role = ? AND status = ? AND agent_code = ?",
			models.UserRoleAgent, models.UserStatusActive, code).
		First(&agent).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithField("referral_code", code).
				Warn("Agent lookup failed, continuing without attribution")
		}
		return nil, 0
	}

	return agent.AgentCode, CommissionFor(loanAmount)
}

// uploadDocuments pushes each present document to object storage. A single
// failed upload leaves that slot's URL null and never aborts the
// submission.
func (s *ApplicationService) uploadDocuments(app *models.LoanApplication, docs *DocumentSet) {
	slots := []struct {
		docType string
		header  *multipart.FileHeader
		target  **string
	}{
		{"pan_card", docs.PanCard, &app.PanCardURL},
		{"aadhaar_card", docs.AadhaarCard, &app.AadhaarCardURL},
		{"income_proof", docs.IncomeProof, &app.IncomeProofURL},
		{"address_proof", docs.AddressProof, &app.AddressProofURL},
	}

	for _, slot := range slots {
		if slot.header == nil {
			continue
		}
		result, err := s.uploadOne(slot.docType, app.LoanID, slot.header)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"loan_id":  app.LoanID,
				"doc_type": slot.docType,
			}).Warn("Document upload failed, continuing without URL")
			continue
		}
		url := result.URL
		*slot.target = &url
		app.DocumentKeys = append(app.DocumentKeys, result.Key)
	}

	for i, doc := range docs.Other {
		if doc.File == nil || doc.Name == "" {
			continue
		}
		result, err := s.uploadOne(fmt.Sprintf("other_%d", i), app.LoanID, doc.File)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"loan_id":  app.LoanID,
				"doc_name": doc.Name,
			}).Warn("Extra document upload failed, continuing without URL")
			continue
		}
		if app.OtherDocuments == nil {
			app.OtherDocuments = make(models.JSONB)
		}
		app.OtherDocuments[doc.Name] = result.URL
		app.DocumentKeys = append(app.DocumentKeys, result.Key)
	}
}

// persistDocumentRefs writes the URLs and keys gathered by the uploads
// onto the already-inserted row. A failure here degrades like a failed
// upload: logged, never surfaced to the applicant.
func (s *ApplicationService) persistDocumentRefs(app *models.LoanApplication) {
	updates := map[string]interface{}{}
	if app.PanCardURL != nil {
		updates["pan_card_url"] = *app.PanCardURL
	}
	if app.AadhaarCardURL != nil {
		updates["aadhaar_card_url"] = *app.AadhaarCardURL
	}
	if app.IncomeProofURL != nil {
		updates["income_proof_url"] = *app.IncomeProofURL
	}
	if app.AddressProofURL != nil {
		updates["address_proof_url"] = *app.AddressProofURL
	}
	if app.OtherDocuments != nil {
		updates["other_documents"] = app.OtherDocuments
	}
	if len(app.DocumentKeys) > 0 {
		updates["document_keys"] = app.DocumentKeys
	}
	if len(updates) == 0 {
		return
	}

	if err := s.db.Model(app).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("loan_id", app.LoanID).
			Warn("Failed to persist document references")
	}
}

func (s *ApplicationService) uploadOne(docType, loanID string, header *multipart.FileHeader) (*UploadResult, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer file.Close()

	return s.storage.UploadDocument(file, header, docType, loanID)
}

func (d *DocumentSet) slots() []NamedDocument {
	named := []NamedDocument{
		{Name: "panCard", File: d.PanCard},
		{Name: "aadhaarCard", File: d.AadhaarCard},
		{Name: "incomeProof", File: d.IncomeProof},
		{Name: "addressProof", File: d.AddressProof},
	}
	return append(named, d.Other...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}

func newPersistenceError(err error) *PersistenceError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &PersistenceError{Code: pgErr.Code, Message: pgErr.Message}
	}
	return &PersistenceError{Code: "UNKNOWN", Message: err.Error()}
}

// GetApplication loads one application with its applicant. Access control
// is the handler's concern.
func (s *ApplicationService) GetApplication(id uuid.UUID) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := s.db.Preload("User").First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("application not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &app, nil
}

func (s *ApplicationService) ListForUser(userID uuid.UUID, params utils.PaginationParams) ([]models.LoanApplication, int64, error) {
	return s.list(s.db.Where("user_id = ?", userID), params)
}

func (s *ApplicationService) ListForAgent(agentCode string, params utils.PaginationParams) ([]models.LoanApplication, int64, error) {
	return s.list(s.db.Where("agent_id = ?", agentCode), params)
}

func (s *ApplicationService) list(query *gorm.DB, params utils.PaginationParams) ([]models.LoanApplication, int64, error) {
	query = query.Model(&models.LoanApplication{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	var apps []models.LoanApplication
	query = utils.ApplySort(query, params, []string{"created_at", "loan_amount", "status", "loan_id"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}

	return apps, total, nil
}

// AgentDashboardStats summarizes an agent's referred pipeline.
type AgentDashboardStats struct {
	TotalReferrals    int64 `json:"total_referrals"`
	PendingReferrals  int64 `json:"pending_referrals"`
	ApprovedReferrals int64 `json:"approved_referrals"`
	RejectedReferrals int64 `json:"rejected_referrals"`
	TotalCommission   int64 `json:"total_commission"`
	EarnedCommission  int64 `json:"earned_commission"`
}

func (s *ApplicationService) AgentStats(agentCode string) (*AgentDashboardStats, error) {
	stats := &AgentDashboardStats{}
	base := s.db.Model(&models.LoanApplication{}).Where("agent_id = ?", agentCode)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalReferrals).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	base.Session(&gorm.Session{}).Where("status = ?", models.ApplicationStatusPending).Count(&stats.PendingReferrals)
	base.Session(&gorm.Session{}).Where("status = ?", models.ApplicationStatusApproved).Count(&stats.ApprovedReferrals)
	base.Session(&gorm.Session{}).Where("status = ?", models.ApplicationStatusRejected).Count(&stats.RejectedReferrals)

	base.Session(&gorm.Session{}).Select("COALESCE(SUM(commission), 0)").Scan(&stats.TotalCommission)
	base.Session(&gorm.Session{}).Where("status = ?", models.ApplicationStatusApproved).
		Select("COALESCE(SUM(commission), 0)").Scan(&stats.EarnedCommission)

	return stats, nil
}
