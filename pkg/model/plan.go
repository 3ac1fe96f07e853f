package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Plan holds the per-tier limits. The numbers are policy data, not logic:
// they ship with defaults and can be overridden from configuration without
// touching any control flow.
type Plan struct {
	ID         string
	MaxDomains int
	MaxMembers int
	MaxFiles   int
}

type PlanTable map[string]Plan

func DefaultPlanTable() PlanTable {
	return PlanTable{
		PlanFree:     {ID: PlanFree, MaxDomains: 0, MaxMembers: 1, MaxFiles: 25},
		PlanPro:      {ID: PlanPro, MaxDomains: 1, MaxMembers: 5, MaxFiles: 500},
		PlanBusiness: {ID: PlanBusiness, MaxDomains: 3, MaxMembers: 25, MaxFiles: 5000},
	}
}

// Get resolves a plan id to its limits. Unknown or empty plans fall back to
// the free tier, which allows no custom domains.
func (t PlanTable) Get(planID string) Plan {
	if p, ok := t[strings.ToLower(planID)]; ok {
		return p
	}
	return t[PlanFree]
}

// ApplyDomainCapOverrides parses "free=0,pro=1,business=3" style overrides
// into the table.
func (t PlanTable) ApplyDomainCapOverrides(overrides string) error {
	if overrides == "" {
		return nil
	}
	for _, part := range strings.Split(overrides, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid plan cap override %q", part)
		}
		maxDomains, err := strconv.Atoi(kv[1])
		if err != nil || maxDomains < 0 {
			return fmt.Errorf("invalid plan cap override %q", part)
		}
		id := strings.ToLower(kv[0])
		p := t[id]
		p.ID = id
		p.MaxDomains = maxDomains
		t[id] = p
	}
	return nil
}
