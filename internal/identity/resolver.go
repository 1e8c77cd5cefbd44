// Package identity wraps the external user directory. The engine only ever
// needs two things from it: a profile snapshot by id, and a name search when
// the user starts a new conversation.
package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

type Resolver interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SearchProfiles(ctx context.Context, term string) ([]*models.Profile, error)
}

// searchVariants returns the case variants a prefix search is issued for. The
// directory stores display names as typed, so a single range query would miss
// "anna" when the user types "Anna"; querying each variant and deduplicating
// by id tolerates the mismatch.
func searchVariants(term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	lower := strings.ToLower(term)
	runes := []rune(lower)
	title := strings.ToUpper(string(runes[:1])) + string(runes[1:])
	variants := []string{term, lower, strings.ToUpper(term), title}
	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func dedupeProfiles(in []*models.Profile) []*models.Profile {
	seen := make(map[string]struct{}, len(in))
	out := make([]*models.Profile, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// StaticResolver serves profiles from memory. It pairs with the in-memory
// store for local runs and tests.
type StaticResolver struct {
	mu       sync.RWMutex
	profiles map[string]*models.Profile
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{profiles: make(map[string]*models.Profile)}
}

func (r *StaticResolver) Add(p *models.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

func (r *StaticResolver) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (r *StaticResolver) SearchProfiles(ctx context.Context, term string) ([]*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*models.Profile
	for _, v := range searchVariants(term) {
		for _, p := range r.profiles {
			if strings.HasPrefix(p.DisplayName, v) {
				matches = append(matches, p)
			}
		}
	}
	return dedupeProfiles(matches), nil
}
