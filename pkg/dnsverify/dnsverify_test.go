package dnsverify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	cnames map[string]string
	hosts  map[string][]string
}

func (f fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if c, ok := f.cnames[host]; ok {
		return c, nil
	}
	return "", errors.New("no such host")
}

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if a, ok := f.hosts[host]; ok {
		return a, nil
	}
	return nil, errors.New("no such host")
}

func newVerifier(r Resolver) *Verifier {
	return New("custom.lnkr.to", "lnkr-redirector.onrender.com", []string{"workers.dev"}, time.Second).WithResolver(r)
}

func TestVerify_CnameNamesBackendHost(t *testing.T) {
	v := newVerifier(fakeResolver{cnames: map[string]string{
		"go.example.com": "lnkr-redirector.onrender.com.",
	}})

	ok, reason := v.Verify(context.Background(), "go.example.com")
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestVerify_CnameCarriesEdgeFragment(t *testing.T) {
	v := newVerifier(fakeResolver{cnames: map[string]string{
		"go.example.com": "lnkr-prod.workers.dev.",
	}})

	ok, _ := v.Verify(context.Background(), "go.example.com")
	require.True(t, ok)
}

func TestVerify_CnameExactTarget(t *testing.T) {
	v := newVerifier(fakeResolver{cnames: map[string]string{
		"go.example.com": "CUSTOM.LNKR.TO.",
	}})

	ok, _ := v.Verify(context.Background(), "go.example.com")
	require.True(t, ok)
}

func TestVerify_FlattenedCnameCorroboratedByAddressOverlap(t *testing.T) {
	// A flattening resolver answers with final addresses; the overlap with
	// the expected target's addresses is the accepted evidence.
	v := newVerifier(fakeResolver{
		cnames: map[string]string{},
		hosts: map[string][]string{
			"go.example.com": {"203.0.113.7", "203.0.113.8"},
			"custom.lnkr.to": {"203.0.113.8"},
		},
	})

	ok, _ := v.Verify(context.Background(), "go.example.com")
	require.True(t, ok)
}

func TestVerify_MissIsAReasonNotAnError(t *testing.T) {
	v := newVerifier(fakeResolver{})

	ok, reason := v.Verify(context.Background(), "go.example.com")
	require.False(t, ok)
	require.Contains(t, reason, "no CNAME record found")
	require.Contains(t, reason, "custom.lnkr.to")
}

func TestVerify_WrongCnameReportsWhatWasFound(t *testing.T) {
	v := newVerifier(fakeResolver{cnames: map[string]string{
		"go.example.com": "parking.registrar.example.",
	}})

	ok, reason := v.Verify(context.Background(), "go.example.com")
	require.False(t, ok)
	require.Contains(t, reason, "parking.registrar.example")
}
