package db

import "time"

type Database interface {
	// Domains
	ReserveDomain(domain *Domain) error
	GetDomainByID(id string) (Domain, error)
	GetDomainByName(name string) (Domain, error)
	ListDomainsByOwner(ownerType, ownerID string) ([]Domain, error)
	CountVerifiedDomains(ownerType, ownerID string) (int64, error)
	UpdateDomainFields(id string, fields map[string]interface{}) error
	TransferDomainOwner(id string, prevType, prevID, newType, newID, reason string) error
	ListOwnershipTransfers(domainID string) ([]OwnershipTransfer, error)
	DeleteDomain(id string) error
	IncrementRedirects(domainID string) error
	PurgeExpiredReservations(now time.Time) (int64, error)

	// Short links
	GetLink(shortCode string, domain *string) (ShortLink, error)
	GetLinkAnyDomain(shortCode string) (ShortLink, error)
	CreateLink(link *ShortLink) error
	IncrementClicks(linkID uint) error
}
