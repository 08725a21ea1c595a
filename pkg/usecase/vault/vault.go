package vault

import (
	"context"
	"errors"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/repository"
	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// DefaultRecallLimit is used when Recall is called with limit <= 0
	DefaultRecallLimit = 20
	// SearchLimit caps the number of records returned by Search
	SearchLimit = 10
	// DefaultEmotionLimit is used when EmotionalContext is called with limit <= 0
	DefaultEmotionLimit = 5
)

// Vault is the per-user path to durable memory. Every read and write is
// scoped to the owner given at construction.
type Vault struct {
	repo  repository.Repository
	owner model.UserID
	cache *ristretto.Cache
	now   func() time.Time
}

type Option func(*Vault)

// WithCache shares a read-through record cache keyed by record ID. The cache
// may be shared between vaults of different owners.
func WithCache(cache *ristretto.Cache) Option {
	return func(v *Vault) {
		v.cache = cache
	}
}

// WithClock replaces the clock used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// New creates a Vault bound to owner
func New(repo repository.Repository, owner model.UserID, opts ...Option) (*Vault, error) {
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if owner == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "owner user ID is required")
	}

	v := &Vault{
		repo:  repo,
		owner: owner,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewCache creates a record cache sized for roughly maxRecords entries
func NewCache(maxRecords int64) (*ristretto.Cache, error) {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxRecords * 10,
		MaxCost:     maxRecords,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory cache", goerr.V("max_records", maxRecords))
	}
	return cache, nil
}

// Owner returns the user this vault is bound to
func (v *Vault) Owner() model.UserID {
	return v.owner
}

// RememberOptions holds optional attributes for Remember. A nil value uses
// the defaults.
type RememberOptions struct {
	Importance      *model.Importance // nil means model.ImportanceDefault
	EmotionContext  model.Emotion
	RelatedEntities []string
	ExpiresAt       *time.Time
}

// Remember validates and stores a new memory for the owner
func (v *Vault) Remember(ctx context.Context, memoryType model.MemoryType, content map[string]any, opts *RememberOptions) (*model.MemoryRecord, error) {
	if opts == nil {
		opts = &RememberOptions{}
	}

	if err := memoryType.Validate(); err != nil {
		return nil, err
	}
	importance := model.ImportanceDefault
	if opts.Importance != nil {
		importance = *opts.Importance
	}
	if err := importance.Validate(); err != nil {
		return nil, err
	}
	if opts.EmotionContext != "" {
		if err := opts.EmotionContext.Validate(); err != nil {
			return nil, err
		}
	}

	record := &model.MemoryRecord{
		UserID:          v.owner,
		Type:            memoryType,
		Content:         content,
		Importance:      importance,
		EmotionContext:  opts.EmotionContext,
		RelatedEntities: opts.RelatedEntities,
		ExpiresAt:       opts.ExpiresAt,
	}
	if record.Content == nil {
		record.Content = map[string]any{}
	}
	if record.RelatedEntities == nil {
		record.RelatedEntities = []string{}
	}

	if err := v.repo.PutMemory(ctx, record); err != nil {
		return nil, storeError(err, "failed to insert memory", goerr.V("user_id", v.owner), goerr.V("type", memoryType))
	}

	v.cacheSet(record)
	return record.Clone(), nil
}

// Recall returns the owner's live memories, most important and most recent
// first. An empty memoryType matches every type.
func (v *Vault) Recall(ctx context.Context, memoryType model.MemoryType, limit int) ([]*model.MemoryRecord, error) {
	if memoryType != "" {
		if err := memoryType.Validate(); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	return v.list(ctx, &repository.MemoryQuery{
		UserID: v.owner,
		Type:   memoryType,
		Limit:  limit,
	})
}

// Search returns at most SearchLimit live memories tagged with exactly tag
func (v *Vault) Search(ctx context.Context, tag string) ([]*model.MemoryRecord, error) {
	if tag == "" {
		return []*model.MemoryRecord{}, nil
	}

	return v.list(ctx, &repository.MemoryQuery{
		UserID: v.owner,
		Entity: tag,
		Limit:  SearchLimit,
	})
}

func (v *Vault) list(ctx context.Context, query *repository.MemoryQuery) ([]*model.MemoryRecord, error) {
	query.ActiveAt = v.now()

	records, err := v.repo.ListMemories(ctx, query)
	if err != nil {
		return nil, storeError(err, "failed to select memories",
			goerr.V("user_id", v.owner), goerr.V("type", query.Type), goerr.V("entity", query.Entity))
	}
	if records == nil {
		records = []*model.MemoryRecord{}
	}
	return records, nil
}

// Get returns one of the owner's live memories. Records owned by another
// user or already expired are reported as not found. The store is always
// consulted so records removed behind this vault's back are never served
// from the cache.
func (v *Vault) Get(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	notFound := goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))

	// ownership never changes, so a cached foreign record is a safe rejection
	if cached := v.cacheGet(id); cached != nil && cached.UserID != v.owner {
		return nil, notFound
	}

	record, err := v.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil || record.UserID != v.owner || record.Expired(v.now()) {
		return nil, notFound
	}
	return record, nil
}

// lookup reads through the cache and returns nil when the record is absent
// or not owned by this vault's owner
func (v *Vault) lookup(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	record := v.cacheGet(id)
	if record == nil {
		var err error
		if record, err = v.load(ctx, id); err != nil || record == nil {
			return nil, err
		}
	}
	if record.UserID != v.owner {
		return nil, nil
	}
	return record, nil
}

// load reads id from the store, refreshing the cache on a hit and evicting
// it on a miss
func (v *Vault) load(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	record, err := v.repo.GetMemory(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrMemoryNotFound) {
			v.cacheDel(id)
			return nil, nil
		}
		return nil, storeError(err, "failed to get memory", goerr.V("memory_id", id))
	}

	v.cacheSet(record)
	return record, nil
}

// Forget deletes one of the owner's memories. It returns false without
// deleting anything when the record does not exist or belongs to another
// user.
func (v *Vault) Forget(ctx context.Context, id model.MemoryID) (bool, error) {
	record, err := v.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	deleted, err := v.repo.DeleteMemory(ctx, v.owner, id)
	if err != nil {
		return false, storeError(err, "failed to delete memory", goerr.V("memory_id", id))
	}
	v.cacheDel(id)
	return deleted, nil
}

// Preferences folds every live preference record into one map. Records are
// applied from lowest to highest rank so the most important, most recent
// record wins each key.
func (v *Vault) Preferences(ctx context.Context) (map[string]any, error) {
	records, err := v.list(ctx, &repository.MemoryQuery{
		UserID: v.owner,
		Type:   model.MemoryTypePreference,
	})
	if err != nil {
		return nil, err
	}

	prefs := make(map[string]any)
	for i := len(records) - 1; i >= 0; i-- {
		for key, value := range records[i].Content {
			prefs[key] = value
		}
	}
	return prefs, nil
}

// EmotionalContext returns the emotions of the owner's top emotion records,
// skipping records that carry none
func (v *Vault) EmotionalContext(ctx context.Context, limit int) ([]model.Emotion, error) {
	if limit <= 0 {
		limit = DefaultEmotionLimit
	}

	records, err := v.Recall(ctx, model.MemoryTypeEmotion, limit)
	if err != nil {
		return nil, err
	}

	emotions := make([]model.Emotion, 0, len(records))
	for _, record := range records {
		if record.EmotionContext == "" {
			continue
		}
		emotions = append(emotions, record.EmotionContext)
	}
	return emotions, nil
}

// DiaryOptions holds optional attributes for AddDiaryEntry
type DiaryOptions struct {
	EmotionDetected model.Emotion
	Importance      *model.Importance // nil means model.ImportanceDefault
	Tags            []string
}

// Diary entry content keys
const (
	DiaryKeyEntryType = "entry_type"
	DiaryKeyTags      = "tags"
	DiaryKeyText      = "text"
)

// AddDiaryEntry stores free text as an emotion memory. The tags double as
// related entities so diary entries are reachable through Search.
func (v *Vault) AddDiaryEntry(ctx context.Context, text, entryType string, opts *DiaryOptions) (*model.MemoryRecord, error) {
	if opts == nil {
		opts = &DiaryOptions{}
	}
	if text == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "diary text is required")
	}

	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}
	content := map[string]any{
		DiaryKeyEntryType: entryType,
		DiaryKeyTags:      tags,
		DiaryKeyText:      text,
	}

	return v.Remember(ctx, model.MemoryTypeEmotion, content, &RememberOptions{
		Importance:      opts.Importance,
		EmotionContext:  opts.EmotionDetected,
		RelatedEntities: tags,
	})
}

// ClearAll irreversibly deletes every memory owned by the owner and returns
// how many were removed
func (v *Vault) ClearAll(ctx context.Context) (int, error) {
	var cached []*model.MemoryRecord
	if v.cache != nil {
		records, err := v.repo.ListMemories(ctx, &repository.MemoryQuery{UserID: v.owner})
		if err != nil {
			return 0, storeError(err, "failed to list memories for eviction", goerr.V("user_id", v.owner))
		}
		cached = records
	}

	n, err := v.repo.DeleteMemoriesByUser(ctx, v.owner)
	if err != nil {
		return 0, storeError(err, "failed to delete memories", goerr.V("user_id", v.owner))
	}

	// evicted after the delete; entries cached in between are caught by Get
	for _, record := range cached {
		v.cacheDel(record.ID)
	}
	return n, nil
}

func (v *Vault) cacheGet(id model.MemoryID) *model.MemoryRecord {
	if v.cache == nil {
		return nil
	}
	value, ok := v.cache.Get(string(id))
	if !ok {
		return nil
	}
	record, ok := value.(*model.MemoryRecord)
	if !ok {
		return nil
	}
	return record.Clone()
}

func (v *Vault) cacheSet(record *model.MemoryRecord) {
	if v.cache == nil {
		return
	}
	v.cache.Set(string(record.ID), record.Clone(), 1)
}

func (v *Vault) cacheDel(id model.MemoryID) {
	if v.cache == nil {
		return
	}
	v.cache.Del(string(id))
}

// storeError marks err as a durable store failure
func storeError(err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(errors.Join(model.ErrStoreUnavailable, err), msg, opts...)
}
