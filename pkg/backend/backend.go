package backend

import (
	"context"
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/cache"
	"github.com/lnkr-io/lnkr-domains/pkg/db"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/lnkr-io/lnkr-domains/pkg/quota"
	"github.com/lnkr-io/lnkr-domains/pkg/ratelimit"
	"github.com/lnkr-io/lnkr-domains/pkg/ssl"
)

type Backend interface {
	ReserveDomain(ctx context.Context, req model.CreateDomainRequest, requester model.Owner) (model.DomainResponse, error)
	VerifyDomain(ctx context.Context, domainID string, requester model.Owner) (model.VerifyResponse, error)
	PollSslStatus(ctx context.Context, domainID string) (model.SslStatusResponse, error)
	GetDomain(ctx context.Context, domainID string, requester model.Owner) (model.DomainResponse, error)
	ListDomains(ctx context.Context, owner model.Owner, requester model.Owner) ([]model.DomainResponse, error)
	TransferOwnership(ctx context.Context, domainID string, req model.TransferRequest, requester model.Owner) (model.DomainResponse, error)
	DeleteDomain(ctx context.Context, domainID string, requester model.Owner) error

	ResolveRedirect(ctx context.Context, shortCode string, hosts HostCandidates) (db.ShortLink, error)
	UnlockLink(ctx context.Context, shortCode string, hosts HostCandidates, password string) (db.ShortLink, error)

	StartReclaimDaemon(done <-chan struct{})
}

// HostCandidates carries the inbound host signals the resolver picks the
// effective domain from.
type HostCandidates struct {
	ForwardedHost string // X-Forwarded-Host
	OriginalHost  string // X-Original-Host
	ServerName    string // the raw request host
}

// DNSVerifier decides whether a domain's DNS points at the platform.
type DNSVerifier interface {
	Verify(ctx context.Context, domainName string) (ok bool, reason string)
}

// TeamMembership is the external team-CRUD collaborator, consumed only to
// answer "is this user in that team".
type TeamMembership interface {
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
}

// Notifier sends best-effort user-facing notifications. Failures are
// logged, never propagated.
type Notifier interface {
	DomainTransferred(ctx context.Context, domainName string, from, to model.Owner) error
}

// Analytics is the external click-recording collaborator.
type Analytics interface {
	RecordClick(ctx context.Context, link db.ShortLink, host string) error
}

// Degraded-mode collaborators. Injecting these makes "the service is not
// deployed" an explicit configuration instead of nil checks in the flow.
type (
	NoTeamMembership struct{}
	NoNotifier       struct{}
	NoAnalytics      struct{}
)

func (NoTeamMembership) IsMember(context.Context, string, string) (bool, error) { return false, nil }
func (NoNotifier) DomainTransferred(context.Context, string, model.Owner, model.Owner) error {
	return nil
}
func (NoAnalytics) RecordClick(context.Context, db.ShortLink, string) error { return nil }

// Config holds deployment-fixed knobs for the orchestrator and resolver.
type Config struct {
	// CnameTarget is the hostname tenants must point their CNAME at.
	CnameTarget string
	// CanonicalDomain is the platform's default short-link domain.
	CanonicalDomain string
	// InfraHostFragments mark proxy/render hostnames that are routing
	// noise, not custom-domain signals.
	InfraHostFragments []string
	// VerificationBaseURL prefixes the verification URL handed back on
	// reservation.
	VerificationBaseURL string

	ReservationTTL time.Duration

	ReserveLimit        int64
	ReserveLimitWindow  time.Duration
	VerifyLimit         int64
	VerifyLimitWindow   time.Duration
	ReclaimIntervalSecs int64
}

func (c *Config) applyDefaults() {
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = 15 * time.Minute
	}
	if c.ReserveLimit <= 0 {
		c.ReserveLimit = 20
	}
	if c.ReserveLimitWindow <= 0 {
		c.ReserveLimitWindow = 24 * time.Hour
	}
	if c.VerifyLimit <= 0 {
		c.VerifyLimit = 5
	}
	if c.VerifyLimitWindow <= 0 {
		c.VerifyLimitWindow = time.Hour
	}
	if c.ReclaimIntervalSecs <= 0 {
		c.ReclaimIntervalSecs = 300
	}
}

type backend struct {
	cfg         Config
	db          db.Database
	limiter     *ratelimit.Limiter
	validator   *quota.Validator
	dns         DNSVerifier
	provisioner ssl.Provisioner
	cache       cache.Cache
	teams       TeamMembership
	notifier    Notifier
	analytics   Analytics
}

func NewBackend(cfg Config, database db.Database, limiter *ratelimit.Limiter, validator *quota.Validator,
	dns DNSVerifier, provisioner ssl.Provisioner, c cache.Cache,
	teams TeamMembership, notifier Notifier, analytics Analytics) (Backend, error) {
	cfg.applyDefaults()

	if c == nil {
		c = cache.NewNoop()
	}
	if teams == nil {
		teams = NoTeamMembership{}
	}
	if notifier == nil {
		notifier = NoNotifier{}
	}
	if analytics == nil {
		analytics = NoAnalytics{}
	}
	if provisioner == nil {
		provisioner = ssl.Noop{}
	}

	return &backend{
		cfg:         cfg,
		db:          database,
		limiter:     limiter,
		validator:   validator,
		dns:         dns,
		provisioner: provisioner,
		cache:       c,
		teams:       teams,
		notifier:    notifier,
		analytics:   analytics,
	}, nil
}
