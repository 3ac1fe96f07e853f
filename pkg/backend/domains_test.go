package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/cache"
	"github.com/lnkr-io/lnkr-domains/pkg/db"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/lnkr-io/lnkr-domains/pkg/quota"
	"github.com/lnkr-io/lnkr-domains/pkg/ratelimit"
	"github.com/lnkr-io/lnkr-domains/pkg/ssl"
	"github.com/stretchr/testify/require"
)

type fakeDNS struct {
	ok     bool
	reason string
	calls  int
}

func (f *fakeDNS) Verify(context.Context, string) (bool, string) {
	f.calls++
	return f.ok, f.reason
}

type fakeProvisioner struct {
	status        model.SslStatus
	err           error
	deprovisioned []string
}

func (f *fakeProvisioner) Name() string { return "fake" }

func (f *fakeProvisioner) Provision(_ context.Context, name string) (string, model.SslStatus, error) {
	if f.err != nil {
		return "", model.SslStatusFailed, f.err
	}
	return "cert-" + name, f.status, nil
}

func (f *fakeProvisioner) Status(context.Context, string, string) (model.SslStatus, error) {
	return f.status, nil
}

func (f *fakeProvisioner) Deprovision(_ context.Context, name string) error {
	f.deprovisioned = append(f.deprovisioned, name)
	return nil
}

type fakePlans struct {
	plan string
}

func (f fakePlans) PlanFor(context.Context, model.Owner) (string, error) { return f.plan, nil }

type fakeTeams struct {
	members map[string][]string
}

func (f fakeTeams) IsMember(_ context.Context, teamID, userID string) (bool, error) {
	for _, m := range f.members[teamID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) DomainTransferred(context.Context, string, model.Owner, model.Owner) error {
	n.calls++
	return errors.New("smtp down")
}

type env struct {
	backend  Backend
	db       db.Database
	dns      *fakeDNS
	prov     *fakeProvisioner
	notifier *failingNotifier
}

func newTestEnv(t *testing.T, plan string) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := db.New(context.Background(), "sqlite", dsn, nil)
	require.NoError(t, err)

	validator := quota.NewValidator(fakePlans{plan: plan}, model.DefaultPlanTable(), database, nil)
	dns := &fakeDNS{ok: true}
	prov := &fakeProvisioner{status: model.SslStatusPending}
	notifier := &failingNotifier{}
	teams := fakeTeams{members: map[string][]string{"t1": {"member1"}}}

	b, err := NewBackend(Config{
		CnameTarget:         "custom.lnkr.to",
		CanonicalDomain:     "lnkr.to",
		InfraHostFragments:  []string{"onrender.com"},
		VerificationBaseURL: "https://api.lnkr.to",
	}, database, ratelimit.NewLimiter(ratelimit.NewMemoryStore()), validator, dns, prov,
		cache.NewNoop(), teams, notifier, nil)
	require.NoError(t, err)

	return &env{backend: b, db: database, dns: dns, prov: prov, notifier: notifier}
}

var u1 = model.Owner{Type: model.OwnerTypeUser, ID: "u1"}

func reserve(t *testing.T, e *env, name string, owner model.Owner) model.DomainResponse {
	t.Helper()
	resp, err := e.backend.ReserveDomain(context.Background(),
		model.CreateDomainRequest{DomainName: name, OwnerType: owner.Type, OwnerID: owner.ID}, owner)
	require.NoError(t, err)
	return resp
}

func TestReserveDomain(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)

	resp := reserve(t, e, "Go.Example.Com", u1)
	require.Equal(t, model.DomainStatusReserved, resp.Status)
	require.Equal(t, "go.example.com", resp.DomainName)
	require.NotEmpty(t, resp.VerificationToken)
	require.NotNil(t, resp.DNSInstructions)
	require.Equal(t, "CNAME", resp.DNSInstructions.Type)
	require.Equal(t, "custom.lnkr.to", resp.DNSInstructions.Target)
	require.Contains(t, resp.VerificationURL, resp.ID)
	require.NotNil(t, resp.ReservedUntil)

	// The token never shows up again on reads.
	got, err := e.backend.GetDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.Empty(t, got.VerificationToken)
}

func TestReserveDomain_Duplicate(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	reserve(t, e, "go.example.com", u1)

	u2 := model.Owner{Type: model.OwnerTypeUser, ID: "u2"}
	_, err := e.backend.ReserveDomain(context.Background(),
		model.CreateDomainRequest{DomainName: "go.example.com", OwnerType: u2.Type, OwnerID: u2.ID}, u2)
	require.ErrorIs(t, err, model.NewDuplicateDomainError("go.example.com"))
}

func TestReserveDomain_FreePlanHasNoDomains(t *testing.T) {
	e := newTestEnv(t, model.PlanFree)

	_, err := e.backend.ReserveDomain(context.Background(),
		model.CreateDomainRequest{DomainName: "go.example.com", OwnerType: u1.Type, OwnerID: u1.ID}, u1)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeQuotaExceeded, ce.Code)
	require.Contains(t, ce.Message, model.PlanFree)
}

func TestReserveDomain_BusinessPlanCap(t *testing.T) {
	e := newTestEnv(t, model.PlanBusiness)

	for i, name := range []string{"a.example.com", "b.example.com"} {
		resp := reserve(t, e, name, u1)
		require.NoError(t, e.db.UpdateDomainFields(resp.ID, map[string]interface{}{
			"status": string(model.DomainStatusVerified),
		}), "domain %d", i)
	}

	// 2 verified: a 3rd reservation fits the business cap of 3.
	resp := reserve(t, e, "c.example.com", u1)
	require.NoError(t, e.db.UpdateDomainFields(resp.ID, map[string]interface{}{
		"status": string(model.DomainStatusVerified),
	}))

	// 3 verified: the 4th does not.
	_, err := e.backend.ReserveDomain(context.Background(),
		model.CreateDomainRequest{DomainName: "d.example.com", OwnerType: u1.Type, OwnerID: u1.ID}, u1)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeQuotaExceeded, ce.Code)
}

func TestVerifyDomain_DnsFailureStaysPendingAndCountsAttempts(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	e.dns.ok = false
	e.dns.reason = "no CNAME record found"

	resp := reserve(t, e, "go.example.com", u1)

	for i := 1; i <= 3; i++ {
		vr, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
		require.NoError(t, err)
		require.False(t, vr.Verified)
		require.Equal(t, model.DomainStatusPending, vr.Status)
		require.Equal(t, "no CNAME record found", vr.VerificationError)

		got, err := e.backend.GetDomain(context.Background(), resp.ID, u1)
		require.NoError(t, err)
		require.Equal(t, i, got.VerificationAttempts)
	}
}

func TestVerifyDomain_SuccessIsForwardOnly(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	resp := reserve(t, e, "go.example.com", u1)

	vr, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.True(t, vr.Verified)
	require.Equal(t, model.DomainStatusVerified, vr.Status)
	require.Equal(t, model.SslStatusPending, vr.SslStatus)

	// A later DNS wobble never demotes a verified domain.
	e.dns.ok = false
	vr, err = e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.True(t, vr.Verified)
	require.Equal(t, model.DomainStatusVerified, vr.Status)

	got, err := e.backend.GetDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.Equal(t, 1, got.VerificationAttempts)
}

func TestVerifyDomain_SslLimitReachedParksDomainInError(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	e.prov.err = ssl.ErrHostnameLimit

	resp := reserve(t, e, "go.example.com", u1)

	vr, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.False(t, vr.Verified)
	require.Equal(t, model.DomainStatusError, vr.Status)
	require.Equal(t, model.SslStatusFailed, vr.SslStatus)
	require.Contains(t, vr.VerificationError, "hostname limit")

	got, err := e.backend.GetDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.Equal(t, model.DomainStatusError, got.Status)

	// Once support raises the provider's limit, verify recovers the domain.
	e.prov.err = nil
	vr, err = e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.True(t, vr.Verified)
	require.Equal(t, model.DomainStatusVerified, vr.Status)
}

func TestVerifyDomain_SslFailureIsRetriable(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	e.prov.err = errors.New("provider 500")

	resp := reserve(t, e, "go.example.com", u1)

	vr, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.False(t, vr.Verified)
	require.Equal(t, model.DomainStatusPending, vr.Status)

	e.prov.err = nil
	vr, err = e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)
	require.True(t, vr.Verified)
}

func TestVerifyDomain_ReservationExpired(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	resp := reserve(t, e, "go.example.com", u1)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, e.db.UpdateDomainFields(resp.ID, map[string]interface{}{
		"reserved_until": past,
	}))

	_, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeReservationExpired, ce.Code)
}

func TestVerifyDomain_RateLimited(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	e.dns.ok = false
	e.dns.reason = "nope"

	resp := reserve(t, e, "go.example.com", u1)

	for i := 0; i < 5; i++ {
		_, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
		require.NoError(t, err)
	}

	_, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeRateLimited, ce.Code)
}

func TestVerifyDomain_Authorization(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)

	team := model.Owner{Type: model.OwnerTypeTeam, ID: "t1"}
	resp := reserve(t, e, "go.example.com", team)

	stranger := model.Owner{Type: model.OwnerTypeUser, ID: "stranger"}
	_, err := e.backend.VerifyDomain(context.Background(), resp.ID, stranger)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeUnauthorized, ce.Code)

	member := model.Owner{Type: model.OwnerTypeUser, ID: "member1"}
	vr, err := e.backend.VerifyDomain(context.Background(), resp.ID, member)
	require.NoError(t, err)
	require.True(t, vr.Verified)
}

func TestPollSslStatus(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	resp := reserve(t, e, "go.example.com", u1)

	_, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)

	e.prov.status = model.SslStatusActive
	sr, err := e.backend.PollSslStatus(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, model.SslStatusActive, sr.SslStatus)

	// Once no longer pending, polling is a read with no provider call.
	e.prov.status = model.SslStatusFailed
	sr, err = e.backend.PollSslStatus(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, model.SslStatusActive, sr.SslStatus)
}

func TestTransferOwnership(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	resp := reserve(t, e, "go.example.com", u1)

	got, err := e.backend.TransferOwnership(context.Background(), resp.ID,
		model.TransferRequest{OwnerType: model.OwnerTypeTeam, OwnerID: "t1", Reason: "joined team"}, u1)
	require.NoError(t, err)
	require.Equal(t, model.OwnerTypeTeam, got.OwnerType)
	require.Equal(t, "t1", got.OwnerID)
	require.Len(t, got.OwnershipHistory, 1)
	require.Equal(t, model.OwnerTypeUser, got.OwnershipHistory[0].PreviousOwnerType)
	require.Equal(t, "u1", got.OwnershipHistory[0].PreviousOwnerID)

	// The notifier blew up, and the transfer stuck anyway.
	require.Equal(t, 1, e.notifier.calls)
}

func TestDeleteDomain_DeregistersEdgeFirst(t *testing.T) {
	e := newTestEnv(t, model.PlanPro)
	resp := reserve(t, e, "go.example.com", u1)

	_, err := e.backend.VerifyDomain(context.Background(), resp.ID, u1)
	require.NoError(t, err)

	require.NoError(t, e.backend.DeleteDomain(context.Background(), resp.ID, u1))
	require.Equal(t, []string{"go.example.com"}, e.prov.deprovisioned)

	_, err = e.backend.GetDomain(context.Background(), resp.ID, u1)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeNotFound, ce.Code)
}

func TestListDomains(t *testing.T) {
	e := newTestEnv(t, model.PlanBusiness)
	reserve(t, e, "a.example.com", u1)
	reserve(t, e, "b.example.com", u1)

	out, err := e.backend.ListDomains(context.Background(), u1, u1)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestListDomains_Authorization(t *testing.T) {
	e := newTestEnv(t, model.PlanBusiness)
	reserve(t, e, "a.example.com", u1)
	team := model.Owner{Type: model.OwnerTypeTeam, ID: "t1"}
	reserve(t, e, "b.example.com", team)

	// Another user's domains are never listable, requester type regardless.
	u2 := model.Owner{Type: model.OwnerTypeUser, ID: "u2"}
	_, err := e.backend.ListDomains(context.Background(), u1, u2)
	var ce *model.CodedError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeUnauthorized, ce.Code)

	// A team's domains require membership.
	_, err = e.backend.ListDomains(context.Background(), team, u2)
	require.ErrorAs(t, err, &ce)
	require.Equal(t, model.CodeUnauthorized, ce.Code)

	member := model.Owner{Type: model.OwnerTypeUser, ID: "member1"}
	out, err := e.backend.ListDomains(context.Background(), team, member)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "b.example.com", out[0].DomainName)
}
