package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/utils"
)

var (
	// ErrEmptyBatch is returned when confirming a batch with no candidates.
	ErrEmptyBatch = errors.New("import batch is empty")
	// ErrUnresolvedInvalid is returned when confirming while any candidate is
	// still invalid.
	ErrUnresolvedInvalid = errors.New("import batch has unresolved invalid candidates")
	// ErrNotDuplicate is returned when setting a decision on a candidate that
	// does not collide with a stored recipe.
	ErrNotDuplicate = errors.New("candidate is not a duplicate")
	// ErrInvalidDecision is returned for decisions outside update/skip/keep-both.
	ErrInvalidDecision = errors.New("decision must be update, skip or keep-both")
	// ErrIndexOutOfRange is returned for a candidate index outside the batch.
	ErrIndexOutOfRange = errors.New("candidate index out of range")
)

// Store is the persistence boundary the reconciler needs.
//
// UpsertRecipes writes records in order, each atomically, and skips any record
// whose stored copy has UpdatedAt >= the incoming UpdatedAt. On error it
// returns the outcomes of the records already processed.
type Store interface {
	ListRecipes(ctx context.Context) ([]domain.Recipe, error)
	UpsertRecipes(ctx context.Context, recipes []domain.Recipe) ([]domain.UpsertOutcome, error)
}

// Status is the preview classification of a candidate.
type Status string

const (
	StatusNew       Status = "new"
	StatusInvalid   Status = "invalid"
	StatusDuplicate Status = "duplicate"
)

// Decision is the user's resolution of a duplicate.
type Decision string

const (
	DecisionUpdate   Decision = "update"
	DecisionSkip     Decision = "skip"
	DecisionKeepBoth Decision = "keep-both"
)

// ParseDecision validates s as a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionUpdate, DecisionSkip, DecisionKeepBoth:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// Item is one classified candidate. Invalid candidates may also carry a
// Duplicate match; Status reports invalid first.
type Item struct {
	Index     int               `json:"index"`
	Status    Status            `json:"status"`
	Name      string            `json:"name,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Salvage   Candidate         `json:"salvage,omitempty"`
	Duplicate *Match            `json:"duplicate,omitempty"`
	Decision  Decision          `json:"decision,omitempty"`

	recipe *domain.Recipe
	pinned pinned
}

// pinned holds the values Plan generates for an item. They are drawn once so
// that planning again after a failed Apply targets the same records.
type pinned struct {
	id   string    // generated id for id-less and keep-both candidates
	slug string    // keep-both slug
	at   time.Time // default createdAt/updatedAt
}

// Summary counts items by status.
type Summary struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// Preview is the classified batch awaiting decisions. It is not safe for
// concurrent use; callers serialize access (see services.ImportService).
type Preview struct {
	Items []*Item `json:"items"`

	index *existingIndex
}

// Summary counts the preview's items by status.
func (p *Preview) Summary() Summary {
	s := Summary{Total: len(p.Items)}
	for _, it := range p.Items {
		switch it.Status {
		case StatusNew:
			s.New++
		case StatusInvalid:
			s.Invalid++
		case StatusDuplicate:
			s.Duplicates++
		}
	}
	return s
}

// Item returns the item at index.
func (p *Preview) Item(index int) (*Item, error) {
	if index < 0 || index >= len(p.Items) {
		return nil, ErrIndexOutOfRange
	}
	return p.Items[index], nil
}

// SetDecision records the resolution for a duplicate candidate.
func (p *Preview) SetDecision(index int, d Decision) error {
	it, err := p.Item(index)
	if err != nil {
		return err
	}
	if _, err := ParseDecision(string(d)); err != nil {
		return err
	}
	if it.Duplicate == nil {
		return ErrNotDuplicate
	}
	it.Decision = d
	return nil
}

// SetAllDecisions applies d to every duplicate and returns how many changed.
func (p *Preview) SetAllDecisions(d Decision) (int, error) {
	if _, err := ParseDecision(string(d)); err != nil {
		return 0, err
	}
	n := 0
	for _, it := range p.Items {
		if it.Duplicate != nil && it.Decision != d {
			it.Decision = d
			n++
		}
	}
	return n, nil
}

// Correct replaces the candidate at index and classifies it again against
// the snapshot taken at preview time. A previous decision is kept when the
// corrected candidate is still a duplicate.
func (p *Preview) Correct(index int, c Candidate) (*Item, error) {
	old, err := p.Item(index)
	if err != nil {
		return nil, err
	}
	it := classify(index, c, p.index)
	if it.Duplicate != nil && old.Duplicate != nil && old.Decision != "" {
		it.Decision = old.Decision
	}
	it.pinned = old.pinned
	if it.Name != old.Name {
		it.pinned.slug = ""
	}
	p.Items[index] = it
	return it, nil
}

// CanConfirm reports why the batch cannot be applied, or nil.
func (p *Preview) CanConfirm() error {
	if len(p.Items) == 0 {
		return ErrEmptyBatch
	}
	if n := p.Summary().Invalid; n > 0 {
		return fmt.Errorf("%w: %d remaining", ErrUnresolvedInvalid, n)
	}
	return nil
}

func classify(index int, c Candidate, ix *existingIndex) *Item {
	it := &Item{Index: index, Name: c.String("name")}
	res := Validate(c)
	it.Duplicate = ix.detect(c)
	if it.Duplicate != nil {
		it.Decision = DecisionUpdate
	}
	switch {
	case !res.OK():
		it.Status = StatusInvalid
		it.Errors = res.Partial.Errors
		it.Salvage = res.Partial.Salvage
	case it.Duplicate != nil:
		it.Status = StatusDuplicate
		it.recipe = res.Recipe
	default:
		it.Status = StatusNew
		it.recipe = res.Recipe
	}
	return it
}

// Reconciler classifies import batches and applies them through Store.
// Now and NewID default to time.Now and uuid.NewString.
type Reconciler struct {
	Store Store
	Now   func() time.Time
	NewID func() string
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Preview validates every candidate and checks it for duplicates against the
// current store contents. Nothing is written.
func (r *Reconciler) Preview(ctx context.Context, cands []Candidate) (*Preview, error) {
	existing, err := r.Store.ListRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing recipes: %w", err)
	}
	ix := newExistingIndex(existing)
	p := &Preview{Items: make([]*Item, 0, len(cands)), index: ix}
	for i, c := range cands {
		it := classify(i, c, ix)
		previewedCandidates.WithLabelValues(string(it.Status)).Inc()
		p.Items = append(p.Items, it)
	}
	return p, nil
}

// Action is what the plan does with a candidate.
type Action string

const (
	ActionInsert   Action = "insert"
	ActionUpdate   Action = "update"
	ActionKeepBoth Action = "keep-both"
	ActionSkip     Action = "skip"
)

// PlanEntry is one candidate's planned mutation. Recipe is nil for skips.
type PlanEntry struct {
	Index  int            `json:"index"`
	Action Action         `json:"action"`
	Recipe *domain.Recipe `json:"recipe,omitempty"`
}

// Plan turns a confirmable preview into the ordered list of records to
// upsert. Keep-both slugs are checked against the live store and the batch.
// Generated ids, keep-both slugs and default timestamps are kept on the item,
// so a retry after a partial Apply sees its own earlier writes as stale.
func (r *Reconciler) Plan(ctx context.Context, p *Preview) ([]PlanEntry, error) {
	if err := p.CanConfirm(); err != nil {
		return nil, err
	}
	existing, err := r.Store.ListRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing recipes: %w", err)
	}
	live := newExistingIndex(existing)
	taken := make(map[string]struct{})
	now := r.now()

	plan := make([]PlanEntry, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Duplicate != nil && it.Decision == DecisionSkip {
			plan = append(plan, PlanEntry{Index: it.Index, Action: ActionSkip})
			continue
		}

		rec := cloneRecipe(it.recipe)
		pin := &it.pinned
		if pin.at.IsZero() {
			pin.at = now
		}
		action := ActionInsert
		switch {
		case it.Duplicate != nil && it.Decision == DecisionKeepBoth:
			action = ActionKeepBoth
			if pin.id == "" {
				pin.id = r.newID()
			}
			if pin.slug == "" {
				pin.slug = uniqueSuffixedSlug(baseSlug(rec), live, taken)
			}
			rec.ID, rec.Slug = pin.id, pin.slug
			for i := range rec.Images {
				rec.Images[i].ID = ""
			}
		case it.Duplicate != nil:
			action = ActionUpdate
			rec.ID = it.Duplicate.Existing.ID
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = it.Duplicate.Existing.CreatedAt
			}
		case rec.ID == "":
			if pin.id == "" {
				pin.id = r.newID()
			}
			rec.ID = pin.id
		}
		if rec.Slug != "" {
			taken[rec.Slug] = struct{}{}
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = pin.at
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = pin.at
		}
		assignChildIDs(rec)
		plan = append(plan, PlanEntry{Index: it.Index, Action: action, Recipe: rec})
	}
	return plan, nil
}

// Outcome is the per-candidate result of Apply.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeStale    Outcome = "stale"
)

// ItemResult reports what Apply did with one candidate.
type ItemResult struct {
	Index   int     `json:"index"`
	ID      string  `json:"id,omitempty"`
	Slug    string  `json:"slug,omitempty"`
	Action  Action  `json:"action"`
	Outcome Outcome `json:"outcome"`
}

// Report is the result of applying a batch.
type Report struct {
	Inserted int          `json:"inserted"`
	Updated  int          `json:"updated"`
	Skipped  int          `json:"skipped"`
	Stale    int          `json:"stale"`
	Warnings []string     `json:"warnings"`
	Results  []ItemResult `json:"results"`
}

// Changed is the number of records written.
func (rep *Report) Changed() int { return rep.Inserted + rep.Updated }

// Apply executes the plan for p in batch order. Records the store refuses as
// stale are reported as warnings; the rest of the batch still commits. A store
// error stops the loop and is returned with the partial report.
func (r *Reconciler) Apply(ctx context.Context, p *Preview) (*Report, error) {
	plan, err := r.Plan(ctx, p)
	if err != nil {
		return nil, err
	}

	rep := &Report{Warnings: []string{}, Results: make([]ItemResult, 0, len(plan))}
	var (
		writes  []domain.Recipe
		entries []PlanEntry
	)
	for _, e := range plan {
		if e.Action == ActionSkip {
			rep.Skipped++
			rep.Results = append(rep.Results, ItemResult{Index: e.Index, Action: e.Action, Outcome: OutcomeSkipped})
			appliedRecords.WithLabelValues(string(OutcomeSkipped)).Inc()
			continue
		}
		writes = append(writes, *e.Recipe)
		entries = append(entries, e)
	}

	outcomes, storeErr := r.Store.UpsertRecipes(ctx, writes)
	for i, o := range outcomes {
		if i >= len(entries) {
			break
		}
		e := entries[i]
		res := ItemResult{Index: e.Index, ID: o.ID, Slug: o.Slug, Action: e.Action}
		switch o.Status {
		case domain.UpsertInserted:
			res.Outcome = OutcomeInserted
			rep.Inserted++
		case domain.UpsertUpdated:
			res.Outcome = OutcomeUpdated
			rep.Updated++
		case domain.UpsertStale:
			res.Outcome = OutcomeStale
			rep.Stale++
			rep.Warnings = append(rep.Warnings, staleWarning(e, o))
			log.Warn().
				Int("index", e.Index).
				Str("recipe_id", o.ID).
				Msg("import skipped stale record")
		}
		appliedRecords.WithLabelValues(string(res.Outcome)).Inc()
		rep.Results = append(rep.Results, res)
	}
	if storeErr != nil {
		return rep, fmt.Errorf("apply import: %w", storeErr)
	}
	return rep, nil
}

func staleWarning(e PlanEntry, o domain.UpsertOutcome) string {
	stored := "a newer time"
	if o.Stored != nil {
		stored = o.Stored.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("candidate %d (%s): stored copy updated at %s is not older than incoming %s; skipped",
		e.Index, o.ID, stored, o.Incoming.UTC().Format(time.RFC3339))
}

func baseSlug(rec *domain.Recipe) string {
	if rec.Slug != "" {
		return rec.Slug
	}
	return utils.Slugify(rec.Name)
}

// uniqueSuffixedSlug appends a random suffix to base until the result is used
// by neither the store nor the batch.
func uniqueSuffixedSlug(base string, live *existingIndex, taken map[string]struct{}) string {
	for {
		s := base + "-" + randomSuffix()
		if live.hasSlug(s) {
			continue
		}
		if _, dup := taken[s]; dup {
			continue
		}
		return s
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// assignChildIDs gives ingredients and images without an id a deterministic
// one derived from the recipe id and position, so re-importing the same file
// produces the same ids.
func assignChildIDs(rec *domain.Recipe) {
	for i := range rec.Ingredients {
		if rec.Ingredients[i].ID == "" {
			rec.Ingredients[i].ID = childID(rec.ID, "ingredient", i, rec.Ingredients[i].Name)
		}
	}
	for i := range rec.Images {
		if rec.Images[i].ID == "" {
			rec.Images[i].ID = childID(rec.ID, "image", i, rec.Images[i].Filename)
		}
		rec.Images[i].RecipeID = rec.ID
	}
}

func childID(recipeID, kind string, pos int, name string) string {
	key := recipeID + "/" + kind + "/" + strconv.Itoa(pos) + "/" + name
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func cloneRecipe(r *domain.Recipe) *domain.Recipe {
	out := *r
	out.Ingredients = append([]domain.Ingredient(nil), r.Ingredients...)
	out.Instructions = append([]string(nil), r.Instructions...)
	out.Keywords = append([]string(nil), r.Keywords...)
	out.Images = append([]domain.RecipeImage(nil), r.Images...)
	return &out
}
