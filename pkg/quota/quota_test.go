package quota

import (
	"context"
	"testing"

	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/stretchr/testify/require"
)

type staticPlans struct {
	plan string
}

func (s staticPlans) PlanFor(context.Context, model.Owner) (string, error) { return s.plan, nil }

type staticCounter struct {
	count int64
}

func (s staticCounter) CountVerifiedDomains(string, string) (int64, error) { return s.count, nil }

var owner = model.Owner{Type: model.OwnerTypeUser, ID: "u1"}

func TestCheckQuota(t *testing.T) {
	cases := []struct {
		plan     string
		verified int64
		wantErr  bool
	}{
		{model.PlanFree, 0, true},
		{model.PlanPro, 0, false},
		{model.PlanPro, 1, true},
		{model.PlanBusiness, 2, false},
		{model.PlanBusiness, 3, true},
		{"unknown-tier", 0, true}, // unknown plans fall back to free
	}

	for _, tc := range cases {
		v := NewValidator(staticPlans{plan: tc.plan}, model.DefaultPlanTable(), staticCounter{count: tc.verified}, nil)
		err := v.CheckQuota(context.Background(), owner)
		if tc.wantErr {
			var ce *model.CodedError
			require.ErrorAs(t, err, &ce, "plan %s with %d verified", tc.plan, tc.verified)
			require.Equal(t, model.CodeQuotaExceeded, ce.Code)
		} else {
			require.NoError(t, err, "plan %s with %d verified", tc.plan, tc.verified)
		}
	}
}

func TestCheckQuota_TableIsPolicyData(t *testing.T) {
	table := model.DefaultPlanTable()
	require.NoError(t, table.ApplyDomainCapOverrides("free=2"))

	v := NewValidator(staticPlans{plan: model.PlanFree}, table, staticCounter{count: 1}, nil)
	require.NoError(t, v.CheckQuota(context.Background(), owner))
}

func TestCheckSafety(t *testing.T) {
	v := NewValidator(staticPlans{plan: model.PlanPro}, model.DefaultPlanTable(), staticCounter{}, []string{"evil.example.com"})

	require.NoError(t, v.CheckSafety("go.example.com"))
	require.NoError(t, v.CheckSafety("GO.Example.COM"))

	for _, name := range []string{
		"",
		"localhost",
		"127.0.0.1",
		"0.0.0.0",
		"evil.example.com",
		"not a hostname",
		"-bad.example.com",
	} {
		err := v.CheckSafety(name)
		var ce *model.CodedError
		require.ErrorAs(t, err, &ce, "name %q", name)
		require.Equal(t, model.CodeValidation, ce.Code, "name %q", name)
	}
}
