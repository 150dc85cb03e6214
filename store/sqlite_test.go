package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mbolis/workation/database"
	"github.com/mbolis/workation/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStores(t *testing.T) Stores {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQL(db)
}

func draft(title string) model.Schema {
	return model.Schema{
		Title: title,
		Steps: []model.Step{{
			ID: "a",
			Questions: []model.Question{{
				ID:       "hasExperienced",
				Type:     model.TypeRadio,
				Required: true,
				Options:  []model.Option{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}},
			}},
		}, {
			ID:          "brand",
			Conditional: model.BrandCollaboration(),
			Questions:   []model.Question{{ID: "companyName", Type: model.TypeText, Required: true}},
		}},
	}
}

func TestSchemaCreateKeepsSingleActive(t *testing.T) {
	ctx := context.Background()
	schemas := openTestStores(t).Schemas

	active, err := schemas.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	first, err := schemas.Create(ctx, draft("first"))
	require.NoError(t, err)
	second, err := schemas.Create(ctx, draft("second"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	all, err := schemas.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID, "newest first")
	assert.True(t, all[0].IsActive)
	assert.False(t, all[1].IsActive)

	active, err = schemas.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second, active.ID)
	assert.Equal(t, "second", active.Title)
	assert.Equal(t, model.BrandCollaboration(), active.Steps[1].Conditional)
	assert.Regexp(t, `^v\d{8}-\d{6}\.\d{3}$`, active.Version)
}

func TestSchemaLookups(t *testing.T) {
	ctx := context.Background()
	schemas := openTestStores(t).Schemas

	id, err := schemas.Create(ctx, draft("only"))
	require.NoError(t, err)

	byID, err := schemas.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, byID)

	byVersion, err := schemas.GetByVersion(ctx, byID.Version)
	require.NoError(t, err)
	require.NotNil(t, byVersion)
	assert.Equal(t, id, byVersion.ID)

	missing, err := schemas.GetByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = schemas.GetByVersion(ctx, "v0")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSchemaSetActive(t *testing.T) {
	ctx := context.Background()
	schemas := openTestStores(t).Schemas

	first, err := schemas.Create(ctx, draft("first"))
	require.NoError(t, err)
	second, err := schemas.Create(ctx, draft("second"))
	require.NoError(t, err)

	require.NoError(t, schemas.SetActive(ctx, first))
	active, err := schemas.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, active.ID)

	assert.ErrorIs(t, schemas.SetActive(ctx, "nope"), ErrNotFound)

	assert.ErrorIs(t, schemas.SwapActive(ctx, second, second), ErrActivationConflict)
	require.NoError(t, schemas.SwapActive(ctx, first, second))

	require.NoError(t, schemas.SetActive(ctx, ""))
	active, err = schemas.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	all, err := schemas.ListAll(ctx)
	require.NoError(t, err)
	for _, s := range all {
		assert.False(t, s.IsActive)
	}
}

func TestResponseSaveCleansAnswers(t *testing.T) {
	ctx := context.Background()
	responses := openTestStores(t).Responses

	id, err := responses.Save(ctx, model.Response{
		SchemaID:      "s1",
		SchemaVersion: "v1",
		Answers:       model.Answers{"foo": model.Undefined, "bar": nil, "baz": "x", "list": []string{"a", "b"}},
	})
	require.NoError(t, err)

	saved, err := responses.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, model.Answers{"foo": "", "baz": "x", "list": []string{"a", "b"}}, saved.Answers)
	assert.NotContains(t, saved.Answers, "bar")
	assert.Equal(t, "s1", saved.SchemaID)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestResponseListAndDelete(t *testing.T) {
	ctx := context.Background()
	responses := openTestStores(t).Responses

	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := responses.Save(ctx, model.Response{
			Answers:     model.Answers{"n": i},
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := responses.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	require.NoError(t, responses.DeleteByID(ctx, ids[1]))
	assert.ErrorIs(t, responses.DeleteByID(ctx, ids[1]), ErrNotFound)

	all, err = responses.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResponseSaveFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO survey_response")).
		WillReturnError(errors.New("disk full"))

	_, err = NewSQL(db).Responses.Save(context.Background(), model.Response{Answers: model.Answers{"a": "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentDocuments(t *testing.T) {
	ctx := context.Background()
	content := openTestStores(t).Content

	g, err := LoadGallery(ctx, content)
	require.NoError(t, err)
	assert.Empty(t, g.Images)

	require.NoError(t, content.Put(ctx, model.DocGallery, model.Gallery{Images: []string{"a.jpg", "b.jpg"}}))
	require.NoError(t, content.Put(ctx, model.DocGallery, model.Gallery{Images: []string{"b.jpg", "a.jpg"}}))

	g, err = LoadGallery(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg", "a.jpg"}, g.Images)

	_, found, err := LoadEmailTemplates(ctx, content)
	require.NoError(t, err)
	assert.False(t, found)
}
