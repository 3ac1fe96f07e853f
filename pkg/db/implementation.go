package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type database struct {
	db *gorm.DB
}

// New creates a new database connection
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	if dialect == "sqlite" {
		db, err = gorm.Open(sqlite.Open(dsn), config)
	} else if dialect == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), config)
	} else {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&Domain{},
		&OwnershipTransfer{},
		&ShortLink{},
	); err != nil {
		return nil, err
	}

	d := &database{
		db: db,
	}
	return d, nil
}

// ReserveDomain inserts a new RESERVED row. The unique index on domain_name
// is the actual correctness mechanism against concurrent claims; the
// transaction only exists so that reclaiming a lapsed reservation and
// inserting the fresh one happen together.
func (d *database) ReserveDomain(domain *Domain) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var existing Domain
		sql := tx.Where("domain_name = ?", domain.DomainName).Limit(1).Find(&existing)
		if sql.Error != nil {
			return sql.Error
		}
		if existing.ID != "" {
			if !reclaimable(existing) {
				return model.NewDuplicateDomainError(domain.DomainName)
			}
			// A lapsed reservation counts as "does not exist" for a fresh
			// attempt. Remove it so the unique index accepts the new row.
			if sql := tx.Delete(&Domain{}, "id = ?", existing.ID); sql.Error != nil {
				return sql.Error
			}
		}

		// A concurrent reservation can slip in between the check and the
		// insert; the index rejects it, and that loss is still a duplicate,
		// not an internal failure.
		if sql := tx.Create(domain); sql.Error != nil {
			if isDuplicateKey(sql.Error) {
				return model.NewDuplicateDomainError(domain.DomainName)
			}
			return sql.Error
		}
		return nil
	})
}

// isDuplicateKey recognizes the unique-violation errors of both supported
// dialects; gorm at this version does not translate them.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql 1062
}

func reclaimable(domain Domain) bool {
	return domain.Status == string(model.DomainStatusReserved) &&
		domain.ReservedUntil != nil &&
		domain.ReservedUntil.Before(time.Now())
}

func (d *database) GetDomainByID(id string) (Domain, error) {
	domain := Domain{}
	sql := d.db.Where("id = ?", id).Limit(1).Find(&domain)
	return domain, sql.Error
}

func (d *database) GetDomainByName(name string) (Domain, error) {
	domain := Domain{}
	sql := d.db.Where("domain_name = ?", name).Limit(1).Find(&domain)
	return domain, sql.Error
}

func (d *database) ListDomainsByOwner(ownerType, ownerID string) ([]Domain, error) {
	var domains []Domain
	sql := d.db.Where("owner_type = ? and owner_id = ?", ownerType, ownerID).Find(&domains)
	return domains, sql.Error
}

func (d *database) CountVerifiedDomains(ownerType, ownerID string) (int64, error) {
	var count int64
	sql := d.db.Model(&Domain{}).
		Where("owner_type = ? and owner_id = ? and status = ?", ownerType, ownerID, string(model.DomainStatusVerified)).
		Count(&count)
	return count, sql.Error
}

func (d *database) UpdateDomainFields(id string, fields map[string]interface{}) error {
	sql := d.db.Model(&Domain{}).Where("id = ?", id).Updates(fields)
	return sql.Error
}

// TransferDomainOwner appends exactly one history row capturing the
// pre-transfer owner, then mutates the owner fields, in one transaction.
func (d *database) TransferDomainOwner(id string, prevType, prevID, newType, newID, reason string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		entry := OwnershipTransfer{
			DomainID:          id,
			PreviousOwnerType: prevType,
			PreviousOwnerID:   prevID,
			Reason:            reason,
		}
		if sql := tx.Create(&entry); sql.Error != nil {
			return sql.Error
		}

		sql := tx.Model(&Domain{}).Where("id = ?", id).Updates(map[string]interface{}{
			"owner_type": newType,
			"owner_id":   newID,
		})
		return sql.Error
	})
}

func (d *database) ListOwnershipTransfers(domainID string) ([]OwnershipTransfer, error) {
	var transfers []OwnershipTransfer
	sql := d.db.Where("domain_id = ?", domainID).Order("id asc").Find(&transfers)
	return transfers, sql.Error
}

func (d *database) DeleteDomain(id string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if sql := tx.Delete(&OwnershipTransfer{}, "domain_id = ?", id); sql.Error != nil {
			return sql.Error
		}
		sql := tx.Delete(&Domain{}, "id = ?", id)
		return sql.Error
	})
}

// IncrementRedirects is best-effort: a single atomic column bump, no
// read-modify-write. Lost updates under race are acceptable here.
func (d *database) IncrementRedirects(domainID string) error {
	sql := d.db.Model(&Domain{}).Where("id = ?", domainID).
		UpdateColumn("total_redirects", gorm.Expr("total_redirects + 1"))
	return sql.Error
}

func (d *database) PurgeExpiredReservations(now time.Time) (int64, error) {
	sql := d.db.Where("status = ? and reserved_until < ?", string(model.DomainStatusReserved), now).
		Delete(&Domain{})
	return sql.RowsAffected, sql.Error
}

func (d *database) GetLink(shortCode string, domain *string) (ShortLink, error) {
	link := ShortLink{}
	q := d.db.Where("short_code = ?", shortCode)
	if domain == nil {
		q = q.Where("domain IS NULL")
	} else {
		q = q.Where("domain = ?", *domain)
	}
	sql := q.Limit(1).Find(&link)
	return link, sql.Error
}

func (d *database) GetLinkAnyDomain(shortCode string) (ShortLink, error) {
	link := ShortLink{}
	sql := d.db.Where("short_code = ?", shortCode).Order("id asc").Limit(1).Find(&link)
	return link, sql.Error
}

func (d *database) CreateLink(link *ShortLink) error {
	sql := d.db.Create(link)
	return sql.Error
}

func (d *database) IncrementClicks(linkID uint) error {
	sql := d.db.Model(&ShortLink{}).Where("id = ?", linkID).
		UpdateColumn("total_clicks", gorm.Expr("total_clicks + 1"))
	return sql.Error
}
