package store

import (
	"context"
	"errors"
	"time"

	"github.com/mbolis/workation/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrActivationConflict = errors.New("active schema changed concurrently")
)

// SchemaStore keeps every version of the survey definition. Versions are
// never modified once created; exactly one (or none) is active.
type SchemaStore interface {
	// GetActive returns nil, nil when no schema is active.
	GetActive(ctx context.Context) (*model.Schema, error)
	GetByID(ctx context.Context, id string) (*model.Schema, error)
	// GetByVersion returns the newest schema carrying version.
	GetByVersion(ctx context.Context, version string) (*model.Schema, error)
	ListAll(ctx context.Context) ([]model.Schema, error)
	// Create stores draft as a new version and makes it the active one.
	Create(ctx context.Context, draft model.Schema) (string, error)
	// SetActive activates id; an empty id deactivates every schema.
	SetActive(ctx context.Context, id string) error
	// SwapActive activates id only if expected is still the active id.
	SwapActive(ctx context.Context, expected, id string) error
}

type ResponseStore interface {
	Save(ctx context.Context, r model.Response) (string, error)
	GetByID(ctx context.Context, id string) (*model.Response, error)
	// ListAll returns responses newest-submitted first.
	ListAll(ctx context.Context) ([]model.Response, error)
	DeleteByID(ctx context.Context, id string) error
}

// ContentStore holds whole configuration documents, always overwritten as
// a unit.
type ContentStore interface {
	// Get decodes the named document into dst; found is false if it was never saved.
	Get(ctx context.Context, name string, dst any) (found bool, err error)
	Put(ctx context.Context, name string, doc any) error
}

// Stores bundles one backend's implementations.
type Stores struct {
	Schemas   SchemaStore
	Responses ResponseStore
	Content   ContentStore
	Close     func(context.Context) error
}

const maxActivationAttempts = 5

// NewVersion derives a schema version label from its creation time.
func NewVersion(t time.Time) string {
	return "v" + t.UTC().Format("20060102-150405.000")
}

// PrepareResponse fills the store-assigned fields of r and cleans its answers.
func PrepareResponse(r model.Response, id string, now time.Time) model.Response {
	r.ID = id
	r.Answers = model.CleanAnswers(r.Answers)
	r.CreatedAt = now
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = now
	}
	return r
}

func LoadGallery(ctx context.Context, cs ContentStore) (model.Gallery, error) {
	var g model.Gallery
	_, err := cs.Get(ctx, model.DocGallery, &g)
	if g.Images == nil {
		g.Images = []string{}
	}
	return g, err
}

func LoadWorkLife(ctx context.Context, cs ContentStore) (model.WorkLifeSection, error) {
	var s model.WorkLifeSection
	_, err := cs.Get(ctx, model.DocWorkLife, &s)
	if s.Items == nil {
		s.Items = map[string]model.WorkLifeItem{}
	}
	return s, err
}

// LoadEmailTemplates returns found=false when no template was ever saved.
func LoadEmailTemplates(ctx context.Context, cs ContentStore) (model.EmailTemplates, bool, error) {
	var t model.EmailTemplates
	found, err := cs.Get(ctx, model.DocEmailTemplates, &t)
	return t, found, err
}
