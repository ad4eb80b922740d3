// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Name         string     `json:"name" gorm:"size:100;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Phone        string     `json:"phone" gorm:"size:15"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'customer'"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	// AgentCode is the referral code agents hand out; null for non-agents.
	AgentCode   *string    `json:"agent_code,omitempty" gorm:"uniqueIndex;size:20"`
	ProfileData JSONB      `json:"profile_data,omitempty" gorm:"type:jsonb"`
	LastLoginAt *time.Time `json:"last_login_at"`

	// Relationships
	Applications []LoanApplication `json:"applications,omitempty" gorm:"foreignKey:UserID"`
	Referrals    []LoanApplication `json:"referrals,omitempty" gorm:"foreignKey:AgentID;references:AgentCode"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// IsActiveAgent reports whether this user can receive referral attribution.
func (u *User) IsActiveAgent() bool {
	return u.Role == UserRoleAgent && u.Status == UserStatusActive && u.AgentCode != nil
}
