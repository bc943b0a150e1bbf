package store

import "time"

// FactCategory classifies what aspect of the user a fact describes.
type FactCategory string

// Fact categories.
const (
	CategoryBiographical   FactCategory = "biographical"
	CategoryWorkContext    FactCategory = "work_context"
	CategoryRelationship   FactCategory = "relationship"
	CategoryUserPreference FactCategory = "user_preference"
	CategoryLearning       FactCategory = "learning"
)

// Categories lists all valid fact categories.
func Categories() []FactCategory {
	return []FactCategory{
		CategoryBiographical,
		CategoryWorkContext,
		CategoryRelationship,
		CategoryUserPreference,
		CategoryLearning,
	}
}

// IsValid reports whether c is a known category.
func (c FactCategory) IsValid() bool {
	switch c {
	case CategoryBiographical, CategoryWorkContext, CategoryRelationship,
		CategoryUserPreference, CategoryLearning:
		return true
	}
	return false
}

// Supersedable reports whether facts in this category occupy single-value
// slots: a new fact in the same (category, slot_hint) slot supersedes the
// previous one.
func (c FactCategory) Supersedable() bool {
	switch c {
	case CategoryBiographical, CategoryWorkContext, CategoryRelationship:
		return true
	}
	return false
}

// TemporalState tags whether a fact describes the user's current, past,
// future, or recurring condition.
type TemporalState string

// Temporal states.
const (
	TemporalCurrent   TemporalState = "current"
	TemporalPast      TemporalState = "past"
	TemporalFuture    TemporalState = "future"
	TemporalRecurring TemporalState = "recurring"
)

// IsValid reports whether t is a known temporal state.
func (t TemporalState) IsValid() bool {
	switch t {
	case TemporalCurrent, TemporalPast, TemporalFuture, TemporalRecurring:
		return true
	}
	return false
}

// SlotHintProfileSummary is the reserved slot for the consolidated profile
// summary fact.
const SlotHintProfileSummary = "profile_summary"

// Fact is an atomic, typed statement about a user extracted from
// conversation. A fact is active iff SupersededBy and ExpiresAt are both
// nil. Supersession forms a forward-edge DAG; deletion is soft via
// ExpiresAt.
type Fact struct {
	ID              string
	UserID          string
	Category        FactCategory
	Content         string
	Confidence      float64
	SlotHint        *string
	TemporalState   TemporalState
	IsEssential     bool
	SourceMessageID *string
	SupersededBy    *string
	ExpiresAt       *time.Time
	LastRefreshedTs time.Time
	CreatedTs       time.Time
	Embedding       []float32 // nil when no embedding is stored
}

// Active reports whether the fact is neither superseded nor expired.
func (f *Fact) Active() bool {
	return f.SupersededBy == nil && f.ExpiresAt == nil
}

// FactOrder selects the ordering of fact list results.
type FactOrder int

// Fact orderings.
const (
	// OrderCreatedDesc orders by created_ts descending (most recent first).
	OrderCreatedDesc FactOrder = iota
	// OrderSalience orders by (is_essential desc, confidence desc, created_ts desc).
	OrderSalience
	// OrderConfidenceDesc orders by confidence descending.
	OrderConfidenceDesc
)

// FindFact specifies the conditions for finding facts.
// The zero value matches everything, including superseded and expired rows.
type FindFact struct {
	ID             *string
	UserID         *string
	Categories     []FactCategory
	SlotHint       *string
	IsEssential    *bool
	NotSuperseded  bool
	NotExpired     bool
	HasEmbedding   bool
	ExcludeStates  []TemporalState
	MinConfidence  *float64
	CreatedAfter   *time.Time
	RefreshedAfter *time.Time
	ExcludeIDs     []string
	Order          FactOrder
	Limit          int
	Offset         int
}

// FactVectorSearch specifies a cosine nearest-neighbour search over fact
// embeddings. MaxDistance bounds the cosine distance (1 - similarity);
// results come back ordered by distance ascending.
type FactVectorSearch struct {
	UserID        string
	Vector        []float32
	MaxDistance   float64
	Categories    []FactCategory
	NotSuperseded bool
	ExcludeStates []TemporalState
	CreatedAfter  *time.Time
	Limit         int
}

// FactWithDistance pairs a fact with its cosine distance to the query vector.
type FactWithDistance struct {
	Fact     *Fact
	Distance float64
}

// UpdateFact specifies the fields to update on a fact.
type UpdateFact struct {
	ID              string
	Confidence      *float64
	IsEssential     *bool
	LastRefreshedTs *time.Time
	SupersededBy    *string
	ExpiresAt       *time.Time
}

// FactRefresh records a duplicate detection: the existing row's
// last_refreshed_ts advances and confidence is raised to the max of the two.
type FactRefresh struct {
	ID              string
	Confidence      float64
	LastRefreshedTs time.Time
}

// FactSupersession points an existing fact at the fact that replaces it.
type FactSupersession struct {
	FactID       string
	SupersededBy string
}

// ExtractionCommit is everything one extraction run writes, applied in a
// single transaction: new rows, supersession pointers, and duplicate
// refreshes.
type ExtractionCommit struct {
	Inserts       []*Fact
	Supersessions []FactSupersession
	Refreshes     []FactRefresh
}

// ConsolidationCommit is everything one consolidation run writes, applied
// in a single transaction. SummaryUpsert, when set, replaces the user's
// profile-summary fact in place (matched on category + slot_hint).
type ConsolidationCommit struct {
	Supersessions []FactSupersession
	Promotions    []string // fact IDs to mark essential
	SummaryUpsert *Fact
}
