package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanTable_Defaults(t *testing.T) {
	table := DefaultPlanTable()

	require.Equal(t, 0, table.Get(PlanFree).MaxDomains)
	require.Equal(t, 1, table.Get(PlanPro).MaxDomains)
	require.Equal(t, 3, table.Get(PlanBusiness).MaxDomains)

	// Unknown and empty plans are the free tier.
	require.Equal(t, 0, table.Get("enterprise-trial").MaxDomains)
	require.Equal(t, 0, table.Get("").MaxDomains)
}

func TestPlanTable_ApplyDomainCapOverrides(t *testing.T) {
	table := DefaultPlanTable()
	require.NoError(t, table.ApplyDomainCapOverrides("pro=2, business=10,enterprise=50"))

	require.Equal(t, 2, table.Get("PRO").MaxDomains)
	require.Equal(t, 10, table.Get(PlanBusiness).MaxDomains)
	require.Equal(t, 50, table.Get("enterprise").MaxDomains)

	require.Error(t, table.ApplyDomainCapOverrides("pro=lots"))
	require.Error(t, table.ApplyDomainCapOverrides("pro"))
	require.Error(t, table.ApplyDomainCapOverrides("pro=-1"))
}
