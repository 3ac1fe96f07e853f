package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Domain struct {
	ID                   string `gorm:"primarykey;size:36"`
	DomainName           string `gorm:"uniqueIndex;size:255"`
	OwnerType            string `gorm:"index:idx_owner,priority:1;size:16"`
	OwnerID              string `gorm:"index:idx_owner,priority:2;size:64"`
	Status               string `gorm:"size:16"`
	VerificationToken    string `gorm:"uniqueIndex;size:64"`
	CnameTarget          string `gorm:"size:255"`
	SslStatus            string `gorm:"size:16"`
	SslProvider          string `gorm:"size:32"`
	SslCertificateID     string `gorm:"size:128"`
	VerificationAttempts int
	VerificationError    string `gorm:"size:512"`
	ReservedUntil        *time.Time
	TotalRedirects       int64
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Transfers []OwnershipTransfer `gorm:"constraint:OnDelete:CASCADE"`
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// OwnershipTransfer rows are append-only: one row per transfer, recording
// the owner that was active immediately before the transfer happened.
type OwnershipTransfer struct {
	ID                uint   `gorm:"primarykey"`
	DomainID          string `gorm:"index;size:36"`
	PreviousOwnerType string `gorm:"size:16"`
	PreviousOwnerID   string `gorm:"size:64"`
	Reason            string `gorm:"size:255"`
	CreatedAt         time.Time
}

// ShortLink is the redirect target store. The pair (short_code, domain) is
// the identity key; a null domain means the platform's default domain for
// rows created before the multi-tenant migration.
type ShortLink struct {
	ID           uint    `gorm:"primarykey"`
	ShortCode    string  `gorm:"index:idx_code_domain,priority:1;size:64"`
	Domain       *string `gorm:"index:idx_code_domain,priority:2;size:255"`
	OriginalURL  string  `gorm:"type:text"`
	IsActive     bool    `gorm:"default:true"`
	ExpiresAt    *time.Time
	MaxClicks    int64 // 0 means unlimited
	TotalClicks  int64
	PasswordHash string `gorm:"size:128"` // empty means not protected
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (l *ShortLink) PasswordProtected() bool {
	return l.PasswordHash != ""
}
