package models

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a registered community participant's contact record.
// Rows are created once by registration and never updated or removed.
type Member struct {
	ID       string  `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	FullName string  `gorm:"column:full_name;not null" json:"full_name"`
	Email    string  `gorm:"column:email;not null" json:"email"`
	Phone    *string `gorm:"column:phone" json:"phone"`

	// EmailNormalized backs the case-insensitive uniqueness of Email.
	EmailNormalized string `gorm:"column:email_normalized;not null;uniqueIndex:idx_members_email_normalized" json:"-"`

	BaseModel
}

// TableName sets the table name for GORM
func (Member) TableName() string {
	return "members"
}

// BeforeCreate assigns the identifier and the normalized email
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.EmailNormalized = NormalizeEmail(m.Email)
	return m.BaseModel.BeforeCreate(tx)
}

// MemberInsert is the normalized record handed to storage on registration
type MemberInsert struct {
	FullName string  `json:"full_name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
}

// ToMember converts the insert payload into a persistable Member
func (i *MemberInsert) ToMember() *Member {
	return &Member{
		FullName: i.FullName,
		Email:    i.Email,
		Phone:    i.Phone,
	}
}

// NormalizeEmail folds an email address for comparisons
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
