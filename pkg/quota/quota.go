package quota

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
)

// PlanLookup is the external billing/subscription collaborator. Only the
// plan id is consumed here.
type PlanLookup interface {
	PlanFor(ctx context.Context, owner model.Owner) (string, error)
}

// NoPlanLookup treats every owner as having no plan, i.e. the free tier.
// Injected when the billing service is not deployed.
type NoPlanLookup struct{}

func (NoPlanLookup) PlanFor(context.Context, model.Owner) (string, error) {
	return model.PlanFree, nil
}

// DomainCounter is the slice of the registry the validator needs.
type DomainCounter interface {
	CountVerifiedDomains(ownerType, ownerID string) (int64, error)
}

// reservedLiterals are hosts that must never be claimable. This guards the
// redirect feature against being pointed at internal hosts, so it is a
// security boundary, not input polish.
var reservedLiterals = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
}

type Validator struct {
	plans     PlanLookup
	table     model.PlanTable
	counter   DomainCounter
	blacklist map[string]bool
	validate  *validator.Validate
}

func NewValidator(plans PlanLookup, table model.PlanTable, counter DomainCounter, blacklist []string) *Validator {
	bl := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		bl[strings.ToLower(strings.TrimSpace(b))] = true
	}
	return &Validator{
		plans:     plans,
		table:     table,
		counter:   counter,
		blacklist: bl,
		validate:  validator.New(),
	}
}

// CheckQuota fails with QuotaExceeded once the owner's verified-domain
// count has reached the plan cap.
func (v *Validator) CheckQuota(ctx context.Context, owner model.Owner) error {
	planID, err := v.plans.PlanFor(ctx, owner)
	if err != nil {
		return err
	}
	plan := v.table.Get(planID)

	count, err := v.counter.CountVerifiedDomains(string(owner.Type), owner.ID)
	if err != nil {
		return err
	}
	if count >= int64(plan.MaxDomains) {
		return model.NewQuotaExceededError(plan.ID, plan.MaxDomains)
	}
	return nil
}

// CheckSafety rejects blacklisted, reserved and malformed domain names.
func (v *Validator) CheckSafety(domainName string) error {
	name := strings.ToLower(strings.TrimSpace(domainName))
	if name == "" {
		return model.NewValidationError("domain name must be provided")
	}
	if reservedLiterals[name] {
		return model.NewValidationError("domain name %s is not allowed", name)
	}
	if v.blacklist[name] {
		return model.NewValidationError("domain name %s is not allowed", name)
	}
	if err := v.validate.Var(name, "required,fqdn"); err != nil {
		return model.NewValidationError("domain name %s is not a valid hostname", name)
	}
	return nil
}
