// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// LoanApplication is one loan request. The row is created exactly once by
// the intake pipeline; back-office status updates are the only later writes.
type LoanApplication struct {
	BaseModel
	// LoanID is the human-readable identifier (e.g. KC25D001), immutable
	// once assigned.
	LoanID string `json:"loan_id" gorm:"uniqueIndex;size:8;not null"`

	// Applicant
	FirstName        string  `json:"first_name" gorm:"size:50;not null"`
	LastName         string  `json:"last_name" gorm:"size:50"`
	Email            string  `json:"email" gorm:"size:255;not null"`
	Phone            string  `json:"phone" gorm:"size:15;not null"`
	PAN              string  `json:"pan" gorm:"size:12"`
	Aadhaar          string  `json:"aadhaar" gorm:"size:12"`
	DateOfBirth      string  `json:"date_of_birth" gorm:"size:20"`
	Gender           string  `json:"gender" gorm:"size:20"`
	MaritalStatus    string  `json:"marital_status" gorm:"size:20"`
	CurrentAddress   string  `json:"current_address" gorm:"size:500"`
	PermanentAddress string  `json:"permanent_address" gorm:"size:500"`
	City             string  `json:"city" gorm:"size:100"`
	State            string  `json:"state" gorm:"size:100"`
	Pincode          string  `json:"pincode" gorm:"size:10"`
	EmploymentType   string  `json:"employment_type" gorm:"size:20"`
	CompanyName      string  `json:"company_name" gorm:"size:200"`
	Designation      string  `json:"designation" gorm:"size:100"`
	MonthlyIncome    float64 `json:"monthly_income"`
	WorkExperience   string  `json:"work_experience" gorm:"size:50"`

	// Loan terms requested
	LoanType     string `json:"loan_type" gorm:"size:20;not null"`
	LoanAmount   int64  `json:"loan_amount" gorm:"not null"`
	TenureMonths int    `json:"tenure_months"`
	Purpose      string `json:"purpose" gorm:"size:500"`

	// Attribution. AgentID is the matched agent's referral code; commission
	// is computed at creation and frozen thereafter.
	AgentID    *string `json:"agent_id,omitempty" gorm:"size:20;index"`
	Commission int64   `json:"commission" gorm:"default:0"`

	Status ApplicationStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	// Documents
	PanCardURL      *string        `json:"pan_card_url,omitempty" gorm:"size:500"`
	AadhaarCardURL  *string        `json:"aadhaar_card_url,omitempty" gorm:"size:500"`
	IncomeProofURL  *string        `json:"income_proof_url,omitempty" gorm:"size:500"`
	AddressProofURL *string        `json:"address_proof_url,omitempty" gorm:"size:500"`
	OtherDocuments  JSONB          `json:"other_documents,omitempty" gorm:"type:jsonb"`
	DocumentKeys    pq.StringArray `json:"document_keys,omitempty" gorm:"type:text[]"`

	// Provenance
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Source    string    `json:"source" gorm:"size:20"`
	IPAddress string    `json:"ip_address" gorm:"size:45"`
	UserAgent string    `json:"user_agent" gorm:"size:500"`

	// Back-office decision
	DecisionNote *string    `json:"decision_note,omitempty" gorm:"size:500"`
	DecidedBy    *uuid.UUID `json:"decided_by,omitempty" gorm:"type:uuid"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
