package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AddSuppressedDomain records a domain in the explicit denylist. source
// identifies why it was added (e.g. "customer" or "denylist");
// recently-contacted domains are derived and not stored here.
func (s *Store) AddSuppressedDomain(ctx context.Context, domain, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppressed_domains (domain, source) VALUES (lower($1), $2)
		ON CONFLICT (domain) DO NOTHING`, domain, source)
	if err != nil {
		return fmt.Errorf("adding suppressed domain: %w", err)
	}
	return nil
}

// RemoveSuppressedDomain removes a domain from the explicit denylist.
func (s *Store) RemoveSuppressedDomain(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM suppressed_domains WHERE domain = lower($1)`, domain)
	if err != nil {
		return fmt.Errorf("removing suppressed domain: %w", err)
	}
	return nil
}

// ListSuppressedDomains returns every explicitly denylisted domain, lowercased.
func (s *Store) ListSuppressedDomains(ctx context.Context) ([]string, error) {
	var domains []string
	if err := s.db.SelectContext(ctx, &domains, `SELECT domain FROM suppressed_domains ORDER BY domain`); err != nil {
		return nil, fmt.Errorf("listing suppressed domains: %w", err)
	}
	return domains, nil
}

// RecentlyContactedDomains returns, lowercased, every company domain across
// ALL runs whose contact candidates reached a ready status within window of
// now. This feeds the Suppression Oracle's "recently contacted" clause so a
// prior run's delivered leads are not re-discovered immediately.
func (s *Store) RecentlyContactedDomains(ctx context.Context, window time.Duration) ([]string, error) {
	var domains []string
	err := s.db.SelectContext(ctx, &domains, `
		SELECT DISTINCT lower(cc.domain)
		FROM company_candidates cc
		JOIN contact_candidates k ON k.run_id = cc.run_id AND k.company_id = cc.id
		WHERE k.status IN ('validated','promoted') AND k.created_at >= $1`,
		time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("listing recently contacted domains: %w", err)
	}
	return domains, nil
}

// SuppressedDomainSet is the materialized union the Suppression Oracle checks
// company candidates against during discovery ingest.
type SuppressedDomainSet map[string]struct{}

// Contains reports whether domain (any case) is in the set.
func (set SuppressedDomainSet) Contains(domain string) bool {
	_, ok := set[strings.ToLower(domain)]
	return ok
}

// LoadSuppressedDomainSet materializes the full suppression union: the
// explicit denylist plus every domain contacted within recentWindow.
func (s *Store) LoadSuppressedDomainSet(ctx context.Context, recentWindow time.Duration) (SuppressedDomainSet, error) {
	denylist, err := s.ListSuppressedDomains(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentlyContactedDomains(ctx, recentWindow)
	if err != nil {
		return nil, err
	}

	set := make(SuppressedDomainSet, len(denylist)+len(recent))
	for _, d := range denylist {
		set[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range recent {
		set[strings.ToLower(d)] = struct{}{}
	}
	return set, nil
}
