package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colSchemas   = "surveySchemas"
	colResponses = "surveyResponses"
	colContent   = "content"
	colSettings  = "settings"

	activeSchemaKey = "activeSchema"
)

// Open connects to MongoDB and returns the stores kept in database dbName.
func Open(ctx context.Context, uri, dbName string) (store.Stores, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return store.Stores{}, fmt.Errorf("mongo connect: %w", err)
	}
	if err = client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return store.Stores{}, fmt.Errorf("mongo ping: %w", err)
	}

	stores, err := New(ctx, client.Database(dbName))
	if err != nil {
		_ = client.Disconnect(ctx)
		return store.Stores{}, err
	}
	stores.Close = client.Disconnect
	return stores, nil
}

// New prepares db (indexes, active-schema singleton) and wraps it.
func New(ctx context.Context, db *mongo.Database) (store.Stores, error) {
	clock := func() time.Time { return time.Now().UTC() }

	_, err := db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": activeSchemaKey},
		bson.M{"$setOnInsert": bson.M{"schemaId": "", "revision": int64(0)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return store.Stores{}, fmt.Errorf("mongo init active schema: %w", err)
	}

	_, err = db.Collection(colSchemas).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "version", Value: 1}}},
	})
	if err != nil {
		return store.Stores{}, fmt.Errorf("mongo schema indexes: %w", err)
	}
	_, err = db.Collection(colResponses).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "submittedAt", Value: -1}},
	})
	if err != nil {
		return store.Stores{}, fmt.Errorf("mongo response indexes: %w", err)
	}

	return store.Stores{
		Schemas:   &Schemas{db: db, now: clock},
		Responses: &Responses{db: db, now: clock},
		Content:   &Content{db: db, now: clock},
		Close:     func(context.Context) error { return nil },
	}, nil
}

// toDocument turns v into the plain maps/slices of its JSON encoding, so
// that custom JSON shapes (conditions, flat documents) are kept verbatim.
func toDocument(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	err = json.Unmarshal(data, &doc)
	return doc, err
}

func fromDocument(doc any, dst any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

type schemaDoc struct {
	ID          string    `bson:"_id"`
	Version     string    `bson:"version"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Steps       any       `bson:"steps"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (d schemaDoc) schema(activeID string) (*model.Schema, error) {
	s := &model.Schema{
		ID:          d.ID,
		Version:     d.Version,
		IsActive:    d.ID == activeID,
		Title:       d.Title,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
	if err := fromDocument(d.Steps, &s.Steps); err != nil {
		return nil, fmt.Errorf("schema %s steps: %w", d.ID, err)
	}
	return s, nil
}

type activeDoc struct {
	SchemaID string `bson:"schemaId"`
	Revision int64  `bson:"revision"`
}

type Schemas struct {
	db  *mongo.Database
	now func() time.Time
}

func (st *Schemas) activeID(ctx context.Context) (string, error) {
	var a activeDoc
	err := st.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": activeSchemaKey}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	return a.SchemaID, err
}

func (st *Schemas) findOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) (*model.Schema, error) {
	var d schemaDoc
	err := st.db.Collection(colSchemas).FindOne(ctx, filter, opts...).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	activeID, err := st.activeID(ctx)
	if err != nil {
		return nil, err
	}
	return d.schema(activeID)
}

func (st *Schemas) GetActive(ctx context.Context) (*model.Schema, error) {
	id, err := st.activeID(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	return st.GetByID(ctx, id)
}

func (st *Schemas) GetByID(ctx context.Context, id string) (*model.Schema, error) {
	return st.findOne(ctx, bson.M{"_id": id})
}

func (st *Schemas) GetByVersion(ctx context.Context, version string) (*model.Schema, error) {
	return st.findOne(ctx, bson.M{"version": version},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (st *Schemas) ListAll(ctx context.Context) ([]model.Schema, error) {
	activeID, err := st.activeID(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := st.db.Collection(colSchemas).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []schemaDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	schemas := make([]model.Schema, 0, len(docs))
	for _, d := range docs {
		s, err := d.schema(activeID)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, *s)
	}
	return schemas, nil
}

func (st *Schemas) Create(ctx context.Context, draft model.Schema) (string, error) {
	steps, err := toDocument(draft.Steps)
	if err != nil {
		return "", fmt.Errorf("schemas.create.steps: %w", err)
	}
	now := st.now()
	d := schemaDoc{
		ID:          uuid.NewString(),
		Version:     store.NewVersion(now),
		Title:       draft.Title,
		Description: draft.Description,
		Steps:       steps,
		CreatedAt:   now,
	}
	if _, err = st.db.Collection(colSchemas).InsertOne(ctx, d); err != nil {
		return "", fmt.Errorf("schemas.create.insert: %w", err)
	}
	// no multi-document transaction on standalone servers: the new version
	// simply stays inactive if this fails
	if err = st.SetActive(ctx, d.ID); err != nil {
		return "", fmt.Errorf("schemas.create.activate: %w", err)
	}
	return d.ID, nil
}

func (st *Schemas) SetActive(ctx context.Context, id string) error {
	for attempt := 1; attempt <= 5; attempt++ {
		current, err := st.activeID(ctx)
		if err != nil {
			return err
		}
		err = st.SwapActive(ctx, current, id)
		if !errors.Is(err, store.ErrActivationConflict) {
			return err
		}
		log.Debugf("schemas.set_active: lost race (attempt %d)", attempt)
	}
	return store.ErrActivationConflict
}

func (st *Schemas) SwapActive(ctx context.Context, expected, id string) error {
	if id != "" {
		n, err := st.db.Collection(colSchemas).CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
	}

	res, err := st.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": activeSchemaKey, "schemaId": expected},
		bson.M{
			"$set": bson.M{"schemaId": id},
			"$inc": bson.M{"revision": int64(1)},
		},
	)
	if err != nil {
		return fmt.Errorf("schemas.swap_active: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrActivationConflict
	}
	return nil
}

type responseDoc struct {
	ID            string    `bson:"_id"`
	SchemaID      string    `bson:"schemaId"`
	SchemaVersion string    `bson:"schemaVersion"`
	Answers       any       `bson:"answers"`
	SubmittedAt   time.Time `bson:"submittedAt"`
	CreatedAt     time.Time `bson:"createdAt"`
}

func (d responseDoc) response() (*model.Response, error) {
	r := &model.Response{
		ID:            d.ID,
		SchemaID:      d.SchemaID,
		SchemaVersion: d.SchemaVersion,
		SubmittedAt:   d.SubmittedAt,
		CreatedAt:     d.CreatedAt,
	}
	if err := fromDocument(d.Answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("response %s answers: %w", d.ID, err)
	}
	return r, nil
}

type Responses struct {
	db  *mongo.Database
	now func() time.Time
}

func (st *Responses) Save(ctx context.Context, r model.Response) (string, error) {
	r = store.PrepareResponse(r, uuid.NewString(), st.now())
	answers, err := toDocument(r.Answers)
	if err != nil {
		return "", fmt.Errorf("responses.save.answers: %w", err)
	}
	_, err = st.db.Collection(colResponses).InsertOne(ctx, responseDoc{
		ID:            r.ID,
		SchemaID:      r.SchemaID,
		SchemaVersion: r.SchemaVersion,
		Answers:       answers,
		SubmittedAt:   r.SubmittedAt.UTC(),
		CreatedAt:     r.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("responses.save.insert: %w", err)
	}
	return r.ID, nil
}

func (st *Responses) GetByID(ctx context.Context, id string) (*model.Response, error) {
	var d responseDoc
	err := st.db.Collection(colResponses).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.response()
}

func (st *Responses) ListAll(ctx context.Context) ([]model.Response, error) {
	cur, err := st.db.Collection(colResponses).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []responseDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	responses := make([]model.Response, 0, len(docs))
	for _, d := range docs {
		r, err := d.response()
		if err != nil {
			return nil, err
		}
		responses = append(responses, *r)
	}
	return responses, nil
}

func (st *Responses) DeleteByID(ctx context.Context, id string) error {
	res, err := st.db.Collection(colResponses).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("responses.delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

type contentDoc struct {
	Name      string    `bson:"_id"`
	Body      any       `bson:"body"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Content struct {
	db  *mongo.Database
	now func() time.Time
}

func (st *Content) Get(ctx context.Context, name string, dst any) (bool, error) {
	var d contentDoc
	err := st.db.Collection(colContent).FindOne(ctx, bson.M{"_id": name}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err = fromDocument(d.Body, dst); err != nil {
		return true, fmt.Errorf("content %s: %w", name, err)
	}
	return true, nil
}

func (st *Content) Put(ctx context.Context, name string, doc any) error {
	body, err := toDocument(doc)
	if err != nil {
		return fmt.Errorf("content.put.%s: %w", name, err)
	}
	_, err = st.db.Collection(colContent).ReplaceOne(ctx,
		bson.M{"_id": name},
		contentDoc{Name: name, Body: body, UpdatedAt: st.now()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("content.put.%s: %w", name, err)
	}
	return nil
}
