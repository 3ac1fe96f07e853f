package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/db"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/lnkr-io/lnkr-domains/pkg/rand"
	"github.com/lnkr-io/lnkr-domains/pkg/ssl"
	"github.com/sirupsen/logrus"
)

const (
	tokenLength = 32

	actionReserve = "domain-add"
	actionVerify  = "domain-verify"
)

func ownerCacheKey(owner model.Owner) string {
	return fmt.Sprintf("domains:owner:%s:%s", owner.Type, owner.ID)
}

func (b *backend) ReserveDomain(ctx context.Context, req model.CreateDomainRequest, requester model.Owner) (model.DomainResponse, error) {
	owner := requester
	if req.OwnerType != "" {
		owner = model.Owner{Type: req.OwnerType, ID: req.OwnerID}
	}
	if err := owner.Type.IsValid(); err != nil {
		return model.DomainResponse{}, model.NewValidationError("invalid owner type %q", owner.Type)
	}
	if owner.ID == "" {
		return model.DomainResponse{}, model.NewValidationError("owner id must be provided")
	}

	name := strings.ToLower(strings.TrimSpace(req.DomainName))

	if !b.limiter.Allow(ctx, actionReserve, owner.String(), b.cfg.ReserveLimit, b.cfg.ReserveLimitWindow) {
		return model.DomainResponse{}, model.NewRateLimitedError(actionReserve)
	}
	if err := b.validator.CheckQuota(ctx, owner); err != nil {
		return model.DomainResponse{}, err
	}
	if err := b.validator.CheckSafety(name); err != nil {
		return model.DomainResponse{}, err
	}

	reservedUntil := time.Now().Add(b.cfg.ReservationTTL)
	domain := db.Domain{
		DomainName:        name,
		OwnerType:         string(owner.Type),
		OwnerID:           owner.ID,
		Status:            string(model.DomainStatusReserved),
		VerificationToken: rand.VerificationToken(tokenLength),
		CnameTarget:       b.cfg.CnameTarget,
		SslStatus:         string(model.SslStatusNone),
		ReservedUntil:     &reservedUntil,
	}

	if err := b.db.ReserveDomain(&domain); err != nil {
		return model.DomainResponse{}, err
	}

	b.cache.Invalidate(ctx, ownerCacheKey(owner))

	logrus.Infof("reserved domain %v for %v until %v", name, owner, reservedUntil.Format(time.RFC3339))

	resp := b.projection(domain, nil)
	// The token is part of the creation response and never shown again.
	resp.VerificationToken = domain.VerificationToken
	resp.DNSInstructions = &model.DNSInstructions{
		Type:   "CNAME",
		Name:   name,
		Target: b.cfg.CnameTarget,
		TTL:    300,
	}
	resp.VerificationURL = fmt.Sprintf("%s/v1/domains/%s/verify", b.cfg.VerificationBaseURL, domain.ID)
	return resp, nil
}

func (b *backend) VerifyDomain(ctx context.Context, domainID string, requester model.Owner) (model.VerifyResponse, error) {
	domain, err := b.loadAuthorized(ctx, domainID, requester)
	if err != nil {
		return model.VerifyResponse{}, err
	}

	// Re-running verify on an already verified domain is a no-op success,
	// not an error: clients poll this endpoint.
	if domain.Status == string(model.DomainStatusVerified) {
		return model.VerifyResponse{
			Verified:  true,
			Status:    model.DomainStatus(domain.Status),
			SslStatus: model.SslStatus(domain.SslStatus),
		}, nil
	}

	if !b.limiter.Allow(ctx, actionVerify, domain.ID, b.cfg.VerifyLimit, b.cfg.VerifyLimitWindow) {
		return model.VerifyResponse{}, model.NewRateLimitedError(actionVerify)
	}

	if domain.Status == string(model.DomainStatusReserved) &&
		domain.ReservedUntil != nil && domain.ReservedUntil.Before(time.Now()) {
		return model.VerifyResponse{}, model.NewReservationExpiredError(domain.DomainName)
	}

	attempts := domain.VerificationAttempts + 1
	fields := map[string]interface{}{
		"verification_attempts": attempts,
	}

	ok, reason := b.dns.Verify(ctx, domain.DomainName)
	if !ok {
		fields["status"] = string(model.DomainStatusPending)
		fields["verification_error"] = reason
		if err := b.db.UpdateDomainFields(domain.ID, fields); err != nil {
			return model.VerifyResponse{}, err
		}
		b.invalidateDomainCaches(ctx, domain)
		return model.VerifyResponse{
			Verified:          false,
			Status:            model.DomainStatusPending,
			SslStatus:         model.SslStatus(domain.SslStatus),
			VerificationError: reason,
		}, nil
	}

	certID, sslStatus, sslErr := b.provisioner.Provision(ctx, domain.DomainName)
	if sslErr != nil {
		// DNS checked out but the hostname isn't servable yet. A transient
		// provider failure keeps the domain PENDING and re-running verify
		// retries; the provider's hostname limit is not fixable by retrying,
		// so it parks the domain in ERROR until support intervenes.
		status := model.DomainStatusPending
		verificationError := fmt.Sprintf("ssl provisioning failed: %v", sslErr)
		if errors.Is(sslErr, ssl.ErrHostnameLimit) {
			status = model.DomainStatusError
			verificationError = "ssl provider hostname limit reached, contact support"
		}
		fields["status"] = string(status)
		fields["verification_error"] = verificationError
		fields["ssl_status"] = string(model.SslStatusFailed)
		if err := b.db.UpdateDomainFields(domain.ID, fields); err != nil {
			return model.VerifyResponse{}, err
		}
		b.invalidateDomainCaches(ctx, domain)
		return model.VerifyResponse{
			Verified:          false,
			Status:            status,
			SslStatus:         model.SslStatusFailed,
			VerificationError: verificationError,
		}, nil
	}

	fields["status"] = string(model.DomainStatusVerified)
	fields["verification_error"] = ""
	fields["ssl_status"] = string(sslStatus)
	fields["ssl_provider"] = b.provisioner.Name()
	fields["ssl_certificate_id"] = certID
	fields["reserved_until"] = nil
	if err := b.db.UpdateDomainFields(domain.ID, fields); err != nil {
		return model.VerifyResponse{}, err
	}
	b.invalidateDomainCaches(ctx, domain)

	logrus.Infof("domain %v verified after %d attempts, ssl %v via %v",
		domain.DomainName, attempts, sslStatus, b.provisioner.Name())

	return model.VerifyResponse{
		Verified:  true,
		Status:    model.DomainStatusVerified,
		SslStatus: sslStatus,
	}, nil
}

// PollSslStatus asks the provisioner for the certificate's current state
// and persists it only when it changed. Safe to call repeatedly.
func (b *backend) PollSslStatus(ctx context.Context, domainID string) (model.SslStatusResponse, error) {
	domain, err := b.db.GetDomainByID(domainID)
	if err != nil {
		return model.SslStatusResponse{}, err
	}
	if domain.ID == "" {
		return model.SslStatusResponse{}, model.NewNotFoundError("domain")
	}

	current := model.SslStatus(domain.SslStatus)
	if current != model.SslStatusPending {
		return model.SslStatusResponse{DomainName: domain.DomainName, SslStatus: current, Provider: domain.SslProvider}, nil
	}

	status, err := b.provisioner.Status(ctx, domain.DomainName, domain.SslCertificateID)
	if err != nil {
		logrus.Warnf("ssl status check for %v failed: %v", domain.DomainName, err)
		return model.SslStatusResponse{DomainName: domain.DomainName, SslStatus: current, Provider: domain.SslProvider}, nil
	}

	if status != current {
		if err := b.db.UpdateDomainFields(domain.ID, map[string]interface{}{
			"ssl_status": string(status),
		}); err != nil {
			return model.SslStatusResponse{}, err
		}
		b.invalidateDomainCaches(ctx, domain)
	}

	return model.SslStatusResponse{DomainName: domain.DomainName, SslStatus: status, Provider: domain.SslProvider}, nil
}

func (b *backend) GetDomain(ctx context.Context, domainID string, requester model.Owner) (model.DomainResponse, error) {
	domain, err := b.loadAuthorized(ctx, domainID, requester)
	if err != nil {
		return model.DomainResponse{}, err
	}

	transfers, err := b.db.ListOwnershipTransfers(domain.ID)
	if err != nil {
		return model.DomainResponse{}, err
	}
	return b.projection(domain, transfers), nil
}

// ListDomains returns the owner's domains. Listing an owner other than the
// requester is only allowed for a team the requester is a member of, the
// same membership rule loadAuthorized applies per domain.
func (b *backend) ListDomains(ctx context.Context, owner model.Owner, requester model.Owner) ([]model.DomainResponse, error) {
	if owner != requester {
		if owner.Type != model.OwnerTypeTeam || requester.Type != model.OwnerTypeUser {
			return nil, model.NewUnauthorizedError()
		}
		member, err := b.teams.IsMember(ctx, owner.ID, requester.ID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, model.NewUnauthorizedError()
		}
	}

	key := ownerCacheKey(owner)

	var cached []model.DomainResponse
	if b.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	domains, err := b.db.ListDomainsByOwner(string(owner.Type), owner.ID)
	if err != nil {
		return nil, err
	}

	out := make([]model.DomainResponse, 0, len(domains))
	for _, d := range domains {
		out = append(out, b.projection(d, nil))
	}

	b.cache.Set(ctx, key, out, 5*time.Minute)
	return out, nil
}

func (b *backend) TransferOwnership(ctx context.Context, domainID string, req model.TransferRequest, requester model.Owner) (model.DomainResponse, error) {
	if err := req.OwnerType.IsValid(); err != nil {
		return model.DomainResponse{}, model.NewValidationError("invalid owner type %q", req.OwnerType)
	}
	if req.OwnerID == "" {
		return model.DomainResponse{}, model.NewValidationError("owner id must be provided")
	}

	domain, err := b.loadAuthorized(ctx, domainID, requester)
	if err != nil {
		return model.DomainResponse{}, err
	}

	newOwner := model.Owner{Type: req.OwnerType, ID: req.OwnerID}
	oldOwner := model.Owner{Type: model.OwnerType(domain.OwnerType), ID: domain.OwnerID}

	if err := b.validator.CheckQuota(ctx, newOwner); err != nil {
		return model.DomainResponse{}, err
	}

	// One history row per transfer, always recording the pre-transfer
	// owner, appended before the owner fields change.
	if err := b.db.TransferDomainOwner(domain.ID,
		domain.OwnerType, domain.OwnerID,
		string(newOwner.Type), newOwner.ID, req.Reason); err != nil {
		return model.DomainResponse{}, err
	}

	b.cache.Invalidate(ctx, ownerCacheKey(oldOwner), ownerCacheKey(newOwner))

	if err := b.notifier.DomainTransferred(ctx, domain.DomainName, oldOwner, newOwner); err != nil {
		logrus.Warnf("transfer notification for %v failed: %v", domain.DomainName, err)
	}

	updated, err := b.db.GetDomainByID(domain.ID)
	if err != nil {
		return model.DomainResponse{}, err
	}
	transfers, err := b.db.ListOwnershipTransfers(domain.ID)
	if err != nil {
		return model.DomainResponse{}, err
	}
	return b.projection(updated, transfers), nil
}

func (b *backend) DeleteDomain(ctx context.Context, domainID string, requester model.Owner) error {
	domain, err := b.loadAuthorized(ctx, domainID, requester)
	if err != nil {
		return err
	}

	// Remove the edge registration first so traffic stops before the
	// record disappears. Best-effort: a dangling edge route is cleanable,
	// a record deleted under live routing is not.
	if domain.Status == string(model.DomainStatusVerified) {
		if err := b.provisioner.Deprovision(ctx, domain.DomainName); err != nil {
			logrus.Warnf("failed to deregister %v from edge routing: %v", domain.DomainName, err)
		}
	}

	if err := b.db.DeleteDomain(domain.ID); err != nil {
		return err
	}

	b.invalidateDomainCaches(ctx, domain)
	logrus.Infof("deleted domain %v", domain.DomainName)
	return nil
}

// loadAuthorized fetches the domain and runs the ordered ownership checks:
// direct owner match first, then team membership for team-owned domains.
func (b *backend) loadAuthorized(ctx context.Context, domainID string, requester model.Owner) (db.Domain, error) {
	domain, err := b.db.GetDomainByID(domainID)
	if err != nil {
		return db.Domain{}, err
	}
	if domain.ID == "" {
		return db.Domain{}, model.NewNotFoundError("domain")
	}

	for _, check := range b.ownershipChecks() {
		ok, err := check(ctx, domain, requester)
		if err != nil {
			return db.Domain{}, err
		}
		if ok {
			return domain, nil
		}
	}
	return db.Domain{}, model.NewUnauthorizedError()
}

type ownershipCheck func(ctx context.Context, domain db.Domain, requester model.Owner) (bool, error)

func (b *backend) ownershipChecks() []ownershipCheck {
	return []ownershipCheck{
		func(_ context.Context, domain db.Domain, requester model.Owner) (bool, error) {
			return domain.OwnerType == string(requester.Type) && domain.OwnerID == requester.ID, nil
		},
		func(ctx context.Context, domain db.Domain, requester model.Owner) (bool, error) {
			if domain.OwnerType != string(model.OwnerTypeTeam) || requester.Type != model.OwnerTypeUser {
				return false, nil
			}
			return b.teams.IsMember(ctx, domain.OwnerID, requester.ID)
		},
	}
}

func (b *backend) invalidateDomainCaches(ctx context.Context, domain db.Domain) {
	owner := model.Owner{Type: model.OwnerType(domain.OwnerType), ID: domain.OwnerID}
	// Bumping the generation key makes every cached (code, domain) lookup
	// for this domain unreachable; the stale entries age out by TTL.
	b.cache.Invalidate(ctx,
		ownerCacheKey(owner),
		linkGenKey(domain.DomainName),
	)
}

func (b *backend) projection(domain db.Domain, transfers []db.OwnershipTransfer) model.DomainResponse {
	resp := model.DomainResponse{
		ID:                   domain.ID,
		DomainName:           domain.DomainName,
		OwnerType:            model.OwnerType(domain.OwnerType),
		OwnerID:              domain.OwnerID,
		Status:               model.DomainStatus(domain.Status),
		SslStatus:            model.SslStatus(domain.SslStatus),
		SslProvider:          domain.SslProvider,
		VerificationAttempts: domain.VerificationAttempts,
		VerificationError:    domain.VerificationError,
		ReservedUntil:        domain.ReservedUntil,
		TotalRedirects:       domain.TotalRedirects,
		CreatedAt:            domain.CreatedAt,
		UpdatedAt:            domain.UpdatedAt,
	}
	for _, t := range transfers {
		resp.OwnershipHistory = append(resp.OwnershipHistory, model.OwnershipEntry{
			PreviousOwnerType: model.OwnerType(t.PreviousOwnerType),
			PreviousOwnerID:   t.PreviousOwnerID,
			Reason:            t.Reason,
			Timestamp:         t.CreatedAt,
		})
	}
	return resp
}
