package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentBridgeKeepsConditions(t *testing.T) {
	steps := []model.Step{{
		ID:          "brand",
		Conditional: model.BrandCollaboration(),
		Questions: []model.Question{{
			ID:        "companyName",
			Type:      model.TypeText,
			Condition: &model.Condition{Field: "x", Op: model.OpEquals, Value: "y"},
		}},
	}}

	doc, err := toDocument(steps)
	require.NoError(t, err)

	// what the driver hands back with DefaultDocumentM
	first := doc.([]any)[0].(map[string]any)
	stored := []any{bson.M(first)}

	var back []model.Step
	require.NoError(t, fromDocument(stored, &back))
	assert.Equal(t, steps, back)
}

func TestDocumentBridgeNormalizesAnswers(t *testing.T) {
	var answers model.Answers
	require.NoError(t, fromDocument(bson.M{"visitPurpose": bson.A{"rest", "brand_collaboration"}, "name": "Ann"}, &answers))
	assert.Equal(t, model.Answers{"visitPurpose": []string{"rest", "brand_collaboration"}, "name": "Ann"}, answers)
}

// Runs against a real server when MONGO_TEST_URI is set.
func TestMongoStores(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := Open(ctx, uri, "workation_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer stores.Close(ctx)

	first, err := stores.Schemas.Create(ctx, model.Schema{Title: "first"})
	require.NoError(t, err)
	second, err := stores.Schemas.Create(ctx, model.Schema{Title: "second"})
	require.NoError(t, err)

	all, err := stores.Schemas.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.True(t, all[0].IsActive)
	assert.False(t, all[1].IsActive)

	assert.ErrorIs(t, stores.Schemas.SwapActive(ctx, first, first), store.ErrActivationConflict)
	require.NoError(t, stores.Schemas.SwapActive(ctx, second, first))

	id, err := stores.Responses.Save(ctx, model.Response{
		SchemaID: first,
		Answers:  model.Answers{"foo": model.Undefined, "bar": nil, "baz": "x"},
	})
	require.NoError(t, err)
	saved, err := stores.Responses.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Answers{"foo": "", "baz": "x"}, saved.Answers)

	require.NoError(t, stores.Responses.DeleteByID(ctx, id))
	assert.ErrorIs(t, stores.Responses.DeleteByID(ctx, id), store.ErrNotFound)
}
