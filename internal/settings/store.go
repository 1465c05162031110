// Package settings implements the category scoped settings store.
//
// Nested settings are flattened into dotted paths for storage by a Repository,
// merged with defaults on read and cached in process. The cache is an
// optimization only: GetCategoryTimeUpdated always reads through to the repository
// to detect writes made by other processes.
package settings

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

type slotState uint8

// A category without a cache item is unloaded.
const (
	slotAbsent slotState = iota + 1
	slotLoaded
)

type slot struct {
	state  slotState
	record *Record
}

type (
	// Store is the public read/write API for settings.
	Store struct {
		repo     Repository
		defaults map[string]Settings
		cacheTTL time.Duration
		inTx     func(ctx context.Context) bool
		cache    *ttlcache.Cache[string, slot]

		// generations counts the writes and evictions per category. A load or save
		// only fills the cache if no other write happened while it ran.
		mu          sync.Mutex
		generations map[string]uint64
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithDefaults registers default settings per category.
func WithDefaults(defaults map[string]Settings) Option {
	return func(s *Store) {
		s.defaults = defaults
	}
}

// WithCacheTTL sets how long loaded categories are cached. Zero keeps them until invalidated.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.cacheTTL = ttl
	}
}

// WithTxDetector sets the function reporting whether ctx carries an ambient transaction.
// Nothing read or written inside an ambient transaction is cached, as the outer
// transaction may still roll back. Saves evict the category instead.
func WithTxDetector(inTx func(ctx context.Context) bool) Option {
	return func(s *Store) {
		s.inTx = inTx
	}
}

// New creates a Store on top of repo.
func New(repo Repository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	s := &Store{repo: repo, generations: map[string]uint64{}}

	for _, opt := range opts {
		opt(s)
	}

	defaults := make(map[string]Settings, len(s.defaults))

	for category, values := range s.defaults {
		normalized, err := Normalize(values)
		if err != nil {
			return nil, err
		}

		defaults[category] = normalized
	}

	s.defaults = defaults
	s.cache = ttlcache.New[string, slot](
		ttlcache.WithTTL[string, slot](s.cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, slot](),
	)

	return s, nil
}

// GetSettings returns the settings of category merged over its defaults.
// A category without persisted settings and defaults returns an empty mapping.
func (s *Store) GetSettings(ctx context.Context, category string) (Settings, error) {
	sl, err := s.slot(ctx, category)
	if err != nil {
		return nil, err
	}

	var persisted Settings
	if sl.state == slotLoaded {
		persisted = sl.record.Settings
	}

	return Merge(s.defaults[category], persisted), nil
}

// GetSetting returns a single value of category. A dotted key addresses nested values.
func (s *Store) GetSetting(ctx context.Context, category, key string) (any, bool, error) {
	values, err := s.GetSettings(ctx, category)
	if err != nil {
		return nil, false, err
	}

	v, ok := Lookup(values, key)

	return v, ok, nil
}

// GetCategoryTimeUpdated reloads category and returns the time of its last write.
// The second return value is false if nothing is stored for category.
func (s *Store) GetCategoryTimeUpdated(ctx context.Context, category string) (time.Time, bool, error) {
	s.evict(category)

	sl, err := s.load(ctx, category)
	if err != nil {
		return time.Time{}, false, err
	}

	if sl.state == slotAbsent {
		return time.Time{}, false, nil
	}

	return sl.record.UpdatedAt, true, nil
}

// SaveSettings replaces all persisted settings of category with values.
// Saving empty values deletes the category. Saving empty values for an unknown
// category does not touch the repository at all.
func (s *Store) SaveSettings(ctx context.Context, category string, values Settings) error {
	entries, err := Flatten(values)
	if err != nil {
		return err
	}

	sl, err := s.slot(ctx, category)
	if err != nil {
		return err
	}

	if sl.state == slotAbsent && len(entries) == 0 {
		log.Debug().Str("category", category).Msg("nothing to save for unknown settings category")
		return nil
	}

	generation := s.generation(category)

	err = s.repo.Replace(ctx, category, values, true)
	observeBackend("replace", err)

	if err != nil {
		s.evict(category)
		log.Error().Err(err).Str("category", category).Msg("failed to save settings")

		return err
	}

	log.Info().Str("category", category).Int("entries", len(entries)).Msg("settings saved")

	if s.inTransaction(ctx) {
		s.evict(category)
		return nil
	}

	saved, ok := slot{state: slotAbsent}, true
	if len(entries) > 0 {
		saved, ok = s.savedSlot(category, entries)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a concurrent write may have committed after ours, only a reload can tell
	if !ok || s.generations[category] != generation {
		s.generations[category]++
		s.cache.Delete(category)

		return nil
	}

	s.generations[category]++
	s.cache.Set(category, saved, ttlcache.DefaultTTL)

	return nil
}

// savedSlot returns what a reload of the saved entries would return.
// The update time stays unknown until the next GetCategoryTimeUpdated.
func (s *Store) savedSlot(category string, entries []Entry) (slot, bool) {
	expanded, err := Expand(entries)
	if err == nil {
		expanded, err = Normalize(expanded)
	}

	if err != nil {
		return slot{}, false
	}

	return slot{
		state:  slotLoaded,
		record: &Record{Category: category, Settings: expanded},
	}, true
}

// DeleteSettings removes the named settings of category, or the whole category if no names are given.
func (s *Store) DeleteSettings(ctx context.Context, category string, names ...string) error {
	err := s.repo.DeleteByNames(ctx, category, names)
	observeBackend("delete", err)

	s.evict(category)

	if err != nil {
		log.Error().Err(err).Str("category", category).Strs("names", names).Msg("failed to delete settings")
		return err
	}

	log.Info().Str("category", category).Strs("names", names).Msg("settings deleted")

	return nil
}

// Invalidate drops the cached state of category.
func (s *Store) Invalidate(category string) {
	s.evict(category)
}

// Categories returns the sorted names of all categories with registered defaults.
func (s *Store) Categories() []string {
	categories := make([]string, 0, len(s.defaults))
	for category := range s.defaults {
		categories = append(categories, category)
	}

	sort.Strings(categories)

	return categories
}

// Defaults returns a copy of the registered defaults of category.
func (s *Store) Defaults(category string) Settings {
	return Clone(s.defaults[category])
}

func (s *Store) slot(ctx context.Context, category string) (slot, error) {
	if item := s.cache.Get(category); item != nil {
		sl := item.Value()
		if sl.state == slotAbsent {
			cacheLookups.WithLabelValues(lookupAbsent).Inc()
		} else {
			cacheLookups.WithLabelValues(lookupHit).Inc()
		}

		return sl, nil
	}

	cacheLookups.WithLabelValues(lookupMiss).Inc()

	return s.load(ctx, category)
}

func (s *Store) load(ctx context.Context, category string) (slot, error) {
	generation := s.generation(category)

	record, err := s.repo.Load(ctx, category)

	var sl slot

	switch {
	case errors.Is(err, ErrCategoryNotFound):
		observeBackend("load", nil)

		sl = slot{state: slotAbsent}
	case err != nil:
		observeBackend("load", err)
		s.evict(category)
		log.Error().Err(err).Str("category", category).Msg("failed to load settings")

		return slot{}, err
	default:
		observeBackend("load", nil)

		sl = slot{state: slotLoaded, record: record}
	}

	log.Debug().Str("category", category).Bool("absent", sl.state == slotAbsent).Msg("settings loaded")

	if s.inTransaction(ctx) {
		return sl, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[category] == generation {
		s.cache.Set(category, sl, ttlcache.DefaultTTL)
	}

	return sl, nil
}

func (s *Store) inTransaction(ctx context.Context) bool {
	return s.inTx != nil && s.inTx(ctx)
}

func (s *Store) generation(category string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generations[category]
}

// evict drops the cached state of category and discards the results of
// loads and saves still in flight.
func (s *Store) evict(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[category]++
	s.cache.Delete(category)
}
