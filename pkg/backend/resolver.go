package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/db"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const linkCacheTTL = time.Minute

func linkGenKey(domain string) string {
	return "linkgen:" + domain
}

func linkCacheKey(gen, shortCode string, domain *string) string {
	d := "_default"
	if domain != nil {
		d = *domain
	}
	return fmt.Sprintf("link:%s:%s:%s", gen, d, shortCode)
}

// ResolveRedirect maps an inbound (host, short code) pair onto a short
// link, walking a deterministic fallback chain so pre-migration rows with
// ambiguous domain tagging still resolve. After a hit the link-validity
// checks run in a fixed order, each failure carrying its own outcome so the
// edge layer can render the right page.
func (b *backend) ResolveRedirect(ctx context.Context, shortCode string, hosts HostCandidates) (db.ShortLink, error) {
	link, host, err := b.lookupLink(ctx, shortCode, hosts)
	if err != nil {
		return db.ShortLink{}, err
	}

	if err := checkLinkValidity(link); err != nil {
		return link, err
	}

	b.recordHit(ctx, link, host)
	return link, nil
}

// UnlockLink resolves a password-protected link and checks the supplied
// password against the stored hash.
func (b *backend) UnlockLink(ctx context.Context, shortCode string, hosts HostCandidates, password string) (db.ShortLink, error) {
	link, host, err := b.lookupLink(ctx, shortCode, hosts)
	if err != nil {
		return db.ShortLink{}, err
	}

	if err := checkLinkValidity(link); err != nil && !errors.Is(err, model.ErrPasswordRequired) {
		return link, err
	}
	if !link.PasswordProtected() {
		return db.ShortLink{}, model.NewValidationError("link is not password protected")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
		return db.ShortLink{}, model.NewUnauthorizedError()
	}

	b.recordHit(ctx, link, host)
	return link, nil
}

func (b *backend) lookupLink(ctx context.Context, shortCode string, hosts HostCandidates) (db.ShortLink, string, error) {
	if shortCode == "" {
		return db.ShortLink{}, "", model.NewNotFoundError("short link")
	}

	host := b.effectiveHost(hosts)
	gen := b.linkGeneration(ctx, host)
	key := linkCacheKey(gen, shortCode, &host)

	var cached db.ShortLink
	if b.cache.Get(ctx, key, &cached) && cached.ID != 0 {
		return cached, host, nil
	}

	link, err := b.findLink(shortCode, host)
	if err != nil {
		return db.ShortLink{}, "", err
	}
	if link.ID == 0 {
		return db.ShortLink{}, "", model.NewNotFoundError("short link")
	}

	b.cache.Set(ctx, key, link, linkCacheTTL)
	return link, host, nil
}

// findLink is the ordered fallback chain, stopping at the first hit:
// exact (code, host) match, then the legacy null-domain row when the host
// is the canonical default domain, then the code alone against any domain
// as the last resort against inconsistent domain tagging.
func (b *backend) findLink(shortCode, host string) (db.ShortLink, error) {
	link, err := b.db.GetLink(shortCode, &host)
	if err != nil || link.ID != 0 {
		return link, err
	}

	if host == b.cfg.CanonicalDomain {
		link, err = b.db.GetLink(shortCode, nil)
		if err != nil || link.ID != 0 {
			return link, err
		}
	}

	return b.db.GetLinkAnyDomain(shortCode)
}

// effectiveHost picks the domain the request was really addressed to.
// Proxy headers win when they carry a genuine custom domain; infra
// hostnames (the render/edge host, the platform's own front end) are
// routing noise and normalize to the canonical default domain.
func (b *backend) effectiveHost(hosts HostCandidates) string {
	for _, candidate := range []string{hosts.ForwardedHost, hosts.OriginalHost} {
		h := normalizeHost(candidate)
		if h == "" || b.isInfraHost(h) || h == b.cfg.CanonicalDomain {
			continue
		}
		return h
	}

	h := normalizeHost(hosts.ServerName)
	if h == "" || b.isInfraHost(h) {
		return b.cfg.CanonicalDomain
	}
	return h
}

func (b *backend) isInfraHost(host string) bool {
	for _, fragment := range b.cfg.InfraHostFragments {
		if fragment != "" && strings.Contains(host, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func checkLinkValidity(link db.ShortLink) error {
	if !link.IsActive {
		return model.ErrLinkInactive
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(time.Now()) {
		return model.ErrLinkExpired
	}
	if link.MaxClicks > 0 && link.TotalClicks >= link.MaxClicks {
		return model.ErrLinkClickLimit
	}
	if link.PasswordProtected() {
		return model.ErrPasswordRequired
	}
	return nil
}

// recordHit bumps the best-effort counters and fires the analytics call.
// None of this may block or fail the redirect.
func (b *backend) recordHit(ctx context.Context, link db.ShortLink, host string) {
	if err := b.db.IncrementClicks(link.ID); err != nil {
		logrus.Warnf("click counter bump for link %d failed: %v", link.ID, err)
	}

	if link.Domain != nil {
		if domain, err := b.db.GetDomainByName(*link.Domain); err == nil && domain.ID != "" {
			if err := b.db.IncrementRedirects(domain.ID); err != nil {
				logrus.Warnf("redirect counter bump for domain %v failed: %v", *link.Domain, err)
			}
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.analytics.RecordClick(ctx, link, host); err != nil {
			logrus.Warnf("analytics record for link %d failed: %v", link.ID, err)
		}
	}()
}

// linkGeneration returns the cache generation for a domain, minting one
// from the clock when absent so invalidation only ever needs to delete the
// generation key.
func (b *backend) linkGeneration(ctx context.Context, domain string) string {
	key := linkGenKey(domain)
	var gen string
	if b.cache.Get(ctx, key, &gen) && gen != "" {
		return gen
	}
	gen = strconv.FormatInt(time.Now().UnixNano(), 10)
	b.cache.Set(ctx, key, gen, time.Hour)
	return gen
}
