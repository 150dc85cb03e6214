// Package export turns stored responses into labelled records and
// spreadsheets, each response read through the schema it was answered on.
package export

import (
	"context"
	"sync"

	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/survey"
)

// SchemaSource is the part of the schema store the resolver needs.
type SchemaSource interface {
	GetByID(ctx context.Context, id string) (*model.Schema, error)
	GetByVersion(ctx context.Context, version string) (*model.Schema, error)
}

// Resolver finds the schema of a response, by id then by version, and
// remembers the outcome. Misses resolve to survey.FallbackSchema.
type Resolver struct {
	src      SchemaSource
	mu       sync.Mutex
	cache    map[string]*model.Schema
	fallback model.Schema
}

func NewResolver(src SchemaSource) *Resolver {
	return &Resolver{
		src:      src,
		cache:    map[string]*model.Schema{},
		fallback: survey.FallbackSchema(),
	}
}

// Resolve returns the schema of r and whether it is the fallback.
func (res *Resolver) Resolve(ctx context.Context, r model.Response) (model.Schema, bool) {
	if r.SchemaID != "" {
		if s := res.lookup("id:"+r.SchemaID, func() (*model.Schema, error) {
			return res.src.GetByID(ctx, r.SchemaID)
		}); s != nil {
			return *s, false
		}
	}
	if r.SchemaVersion != "" {
		if s := res.lookup("version:"+r.SchemaVersion, func() (*model.Schema, error) {
			return res.src.GetByVersion(ctx, r.SchemaVersion)
		}); s != nil {
			return *s, false
		}
	}
	return res.fallback, true
}

func (res *Resolver) lookup(key string, load func() (*model.Schema, error)) *model.Schema {
	res.mu.Lock()
	defer res.mu.Unlock()

	if s, ok := res.cache[key]; ok {
		return s
	}
	s, err := load()
	if err != nil {
		// not cached: a later call may succeed
		log.Warnf("export.resolve_schema %s: %s", key, err)
		return nil
	}
	res.cache[key] = s
	return s
}
