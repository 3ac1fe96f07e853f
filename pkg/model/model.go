package model

import (
	"fmt"
	"time"
)

const (
	OwnerTypeUser OwnerType = "USER"
	OwnerTypeTeam OwnerType = "TEAM"
)

type OwnerType string

func (ot OwnerType) IsValid() error {
	switch ot {
	case OwnerTypeUser, OwnerTypeTeam:
		return nil
	}

	return fmt.Errorf("invalid owner type")
}

// Owner is the composite owner reference. It is not a foreign key into
// anything this service stores, just an indexed pair.
type Owner struct {
	Type OwnerType `json:"ownerType"`
	ID   string    `json:"ownerId"`
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Type, o.ID)
}

const (
	DomainStatusReserved DomainStatus = "RESERVED"
	DomainStatusPending  DomainStatus = "PENDING"
	DomainStatusVerified DomainStatus = "VERIFIED"
	DomainStatusError    DomainStatus = "ERROR"
)

type DomainStatus string

func (ds DomainStatus) IsValid() error {
	switch ds {
	case DomainStatusReserved, DomainStatusPending, DomainStatusVerified, DomainStatusError:
		return nil
	}

	return fmt.Errorf("invalid domain status")
}

const (
	SslStatusNone    SslStatus = "NONE"
	SslStatusPending SslStatus = "PENDING"
	SslStatusActive  SslStatus = "ACTIVE"
	SslStatusFailed  SslStatus = "FAILED"
)

type SslStatus string

func (ss SslStatus) IsValid() error {
	switch ss {
	case SslStatusNone, SslStatusPending, SslStatusActive, SslStatusFailed:
		return nil
	}

	return fmt.Errorf("invalid ssl status")
}

type CreateDomainRequest struct {
	DomainName string    `json:"domainName"`
	OwnerType  OwnerType `json:"ownerType,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
}

type TransferRequest struct {
	OwnerType OwnerType `json:"ownerType"`
	OwnerID   string    `json:"ownerId"`
	Reason    string    `json:"reason,omitempty"`
}

type DNSInstructions struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Target string `json:"target"`
	TTL    int64  `json:"ttl"`
}

// DomainResponse is the public projection of a domain record. The
// verification token is only populated in the response to the creation
// request and never again.
type DomainResponse struct {
	ID                   string           `json:"id"`
	DomainName           string           `json:"domainName"`
	OwnerType            OwnerType        `json:"ownerType"`
	OwnerID              string           `json:"ownerId"`
	Status               DomainStatus     `json:"status"`
	SslStatus            SslStatus        `json:"sslStatus"`
	SslProvider          string           `json:"sslProvider,omitempty"`
	VerificationAttempts int              `json:"verificationAttempts"`
	VerificationError    string           `json:"verificationError,omitempty"`
	ReservedUntil        *time.Time       `json:"reservedUntil,omitempty"`
	TotalRedirects       int64            `json:"totalRedirects"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	OwnershipHistory     []OwnershipEntry `json:"ownershipHistory,omitempty"`
	VerificationToken    string           `json:"verificationToken,omitempty"`
	DNSInstructions      *DNSInstructions `json:"dnsInstructions,omitempty"`
	VerificationURL      string           `json:"verificationUrl,omitempty"`
}

type OwnershipEntry struct {
	PreviousOwnerType OwnerType `json:"previousOwnerType"`
	PreviousOwnerID   string    `json:"previousOwnerId"`
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type VerifyResponse struct {
	Verified          bool         `json:"verified"`
	Status            DomainStatus `json:"status"`
	SslStatus         SslStatus    `json:"sslStatus"`
	VerificationError string       `json:"verificationError,omitempty"`
}

type SslStatusResponse struct {
	DomainName string    `json:"domainName"`
	SslStatus  SslStatus `json:"sslStatus"`
	Provider   string    `json:"provider,omitempty"`
}

type UnlockRequest struct {
	Password string `json:"password"`
}

type UnlockResponse struct {
	URL string `json:"url,omitempty"`
}

type ErrorResponse struct {
	Status  int         `json:"status,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"msg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
