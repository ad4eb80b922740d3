// internal/services/admin_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kucash/kucash-backend/internal/database"
	"github.com/kucash/kucash-backend/internal/models"
	"github.com/kucash/kucash-backend/internal/utils"
)

type AdminService struct {
	db            *gorm.DB
	storage       *StorageService
	notifications *NotificationService
}

func NewAdminService(db *gorm.DB, storage *StorageService, notifications *NotificationService) *AdminService {
	return &AdminService{db: db, storage: storage, notifications: notifications}
}

// DashboardStats is the back-office overview.
type DashboardStats struct {
	TotalApplications     int64 `json:"total_applications"`
	PendingApplications   int64 `json:"pending_applications"`
	ApprovedApplications  int64 `json:"approved_applications"`
	RejectedApplications  int64 `json:"rejected_applications"`
	ApplicationsThisMonth int64 `json:"applications_this_month"`
	TotalCustomers        int64 `json:"total_customers"`
	ActiveAgents          int64 `json:"active_agents"`
	ApprovedLoanAmount    int64 `json:"approved_loan_amount"`
	CommissionLiability   int64 `json:"commission_liability"`
}

func (s *AdminService) GetDashboardStats() (*DashboardStats, error) {
	stats := &DashboardStats{}
	apps := func() *gorm.DB { return s.db.Model(&models.LoanApplication{}) }

	if err := apps().Count(&stats.TotalApplications).Error; err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	apps().Where("status = ?", models.ApplicationStatusPending).Count(&stats.PendingApplications)
	apps().Where("status = ?", models.ApplicationStatusApproved).Count(&stats.ApprovedApplications)
	apps().Where("status = ?", models.ApplicationStatusRejected).Count(&stats.RejectedApplications)

	monthStart := time.Now().AddDate(0, 0, 1-time.Now().Day()).Truncate(24 * time.Hour)
	apps().Where("created_at >= ?", monthStart).Count(&stats.ApplicationsThisMonth)

	s.db.Model(&models.User{}).Where("role = ?", models.UserRoleCustomer).Count(&stats.TotalCustomers)
	s.db.Model(&models.User{}).
		Where("role = ? AND status = ?", models.UserRoleAgent, models.UserStatusActive).
		Count(&stats.ActiveAgents)

	apps().Where("status = ?", models.ApplicationStatusApproved).
		Select("COALESCE(SUM(loan_amount), 0)").Scan(&stats.ApprovedLoanAmount)
	apps().Where("status = ? AND agent_id IS NOT NULL", models.ApplicationStatusApproved).
		Select("COALESCE(SUM(commission), 0)").Scan(&stats.CommissionLiability)

	return stats, nil
}

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyDecided      = errors.New("application has already been decided")
	ErrDocumentsRetained   = errors.New("documents can only be purged from rejected applications")
)

// DocumentLink pairs a stored object key with a URL the back office can
// open to review the document.
type DocumentLink struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

const documentReviewTTL = 15 * time.Minute

// ApplicationDocuments returns review links for every stored document of
// one application. Keys that cannot be signed are skipped, not fatal.
func (s *AdminService) ApplicationDocuments(id uuid.UUID) ([]DocumentLink, error) {
	var app models.LoanApplication
	if err := s.db.First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	links := make([]DocumentLink, 0, len(app.DocumentKeys))
	for _, key := range app.DocumentKeys {
		url, err := s.storage.ReviewURL(key, documentReviewTTL)
		if err != nil {
			logrus.WithError(err).WithField("key", key).
				Warn("Failed to sign document review URL")
			continue
		}
		links = append(links, DocumentLink{Key: key, URL: url})
	}

	return links, nil
}

// PurgeApplicationDocuments deletes a rejected application's stored
// documents and clears the row's references. Pending and approved
// applications keep their documents.
func (s *AdminService) PurgeApplicationDocuments(id uuid.UUID) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := s.db.First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if app.Status != models.ApplicationStatusRejected {
		return nil, ErrDocumentsRetained
	}

	for _, key := range app.DocumentKeys {
		if err := s.storage.DeleteFile(key); err != nil {
			logrus.WithError(err).WithField("key", key).
				Warn("Failed to delete document object")
		}
	}

	updates := map[string]interface{}{
		"pan_card_url":      nil,
		"aadhaar_card_url":  nil,
		"income_proof_url":  nil,
		"address_proof_url": nil,
		"other_documents":   nil,
		"document_keys":     nil,
	}
	if err := s.db.Model(&app).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to clear document references: %w", err)
	}

	app.PanCardURL = nil
	app.AadhaarCardURL = nil
	app.IncomeProofURL = nil
	app.AddressProofURL = nil
	app.OtherDocuments = nil
	app.DocumentKeys = nil
	return &app, nil
}

// UpdateApplicationStatus records an approve or reject decision. Only
// pending applications can be decided, and a decision is final.
func (s *AdminService) UpdateApplicationStatus(id, reviewerID uuid.UUID, status models.ApplicationStatus, note string) (*models.LoanApplication, error) {
	if status != models.ApplicationStatusApproved && status != models.ApplicationStatusRejected {
		return nil, fmt.Errorf("invalid target status: %s", status)
	}

	var app models.LoanApplication
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&app, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		if app.Status != models.ApplicationStatusPending {
			return ErrAlreadyDecided
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":     status,
			"decided_by": reviewerID,
			"decided_at": now,
		}
		if note != "" {
			updates["decision_note"] = note
		}

		if err := tx.Model(&app).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}

		app.Status = status
		app.DecidedBy = &reviewerID
		app.DecidedAt = &now
		if note != "" {
			app.DecisionNote = &note
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifications != nil {
		go s.notifications.ApplicationDecided(&app)
	}

	return &app, nil
}

type CreateAgentRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"max=15"`
	Password  string `json:"password" validate:"required,strong_password"`
	AgentCode string `json:"agent_code" validate:"max=20"`
}

// CreateAgent provisions an agent account with a referral code. A blank
// code gets a generated one; the unique index rejects duplicates.
func (s *AdminService) CreateAgent(req *CreateAgentRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	code := req.AgentCode
	if code == "" {
		var err error
		code, err = utils.GenerateAgentCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate agent code: %w", err)
		}
	}

	agent := &models.User{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      models.UserRoleAgent,
		Status:    models.UserStatusActive,
		AgentCode: &code,
	}
	if err := agent.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.Create(agent).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, errors.New("email or agent code already in use")
		}
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	if s.notifications != nil {
		go s.notifications.AgentCredentials(agent, req.Password)
	}

	return agent, nil
}

// UpdateUserStatus activates or deactivates an account. Deactivated agents
// stop receiving referral attribution immediately.
func (s *AdminService) UpdateUserStatus(id uuid.UUID, status models.UserStatus) (*models.User, error) {
	if status != models.UserStatusActive && status != models.UserStatusInactive {
		return nil, fmt.Errorf("invalid target status: %s", status)
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.db.Model(&user).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}

	user.Status = status
	return &user, nil
}

func (s *AdminService) ListUsers(role string, params utils.PaginationParams) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	query = utils.ApplySort(query, params, []string{"created_at", "name", "email", "role"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// ListApplications is the admin-wide listing with optional agent filter
// and search across applicant identity fields and the loan identifier.
func (s *AdminService) ListApplications(agentCode string, params utils.PaginationParams) ([]models.LoanApplication, int64, error) {
	query := s.db.Model(&models.LoanApplication{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if agentCode != "" {
		query = query.Where("agent_id = ?", agentCode)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where(
			"loan_id ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR phone ILIKE ?",
			like, like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	var apps []models.LoanApplication
	query = utils.ApplySort(query, params, []string{"created_at", "loan_amount", "status", "loan_id"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("User").Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}

	return apps, total, nil
}
