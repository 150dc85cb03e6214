package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/survey"
)

type fakeSchemas struct {
	byID      map[string]model.Schema
	calls     int
	failFirst bool
}

func (s *fakeSchemas) GetByID(_ context.Context, id string) (*model.Schema, error) {
	s.calls++
	if s.failFirst {
		s.failFirst = false
		return nil, errors.New("connection reset")
	}
	if sc, ok := s.byID[id]; ok {
		return &sc, nil
	}
	return nil, nil
}

func (s *fakeSchemas) GetByVersion(_ context.Context, version string) (*model.Schema, error) {
	s.calls++
	for _, sc := range s.byID {
		if sc.Version == version {
			return &sc, nil
		}
	}
	return nil, nil
}

func schemaV(id, version string) model.Schema {
	s := survey.DefaultSchema()
	s.ID, s.Version = id, version
	return s
}

func TestDescribe(t *testing.T) {
	r := model.Response{Answers: model.Answers{
		"name":                        "Ann",
		"visitPurpose":                []string{"rest", "other"},
		"visitPurpose_other_followUp": "a quiet place",
		"hasExperienced":              "no",
		"legacy":                      "kept",
	}}

	fields := Describe(schemaV("s1", "v1"), r)
	byKey := map[string]Field{}
	for _, f := range fields {
		byKey[f.Key] = f
	}

	assert.Equal(t, "Ann", byKey["name"].Value)
	assert.Equal(t, "Name", byKey["name"].Label)
	assert.Equal(t, "No", byKey["hasExperienced"].Value)
	assert.Equal(t, "Rest and recharge, Other", byKey["visitPurpose"].Value)
	assert.Equal(t, "Why would you visit? - Please tell us more", byKey["visitPurpose_other_followUp"].Label)
	assert.Equal(t, "legacy", fields[len(fields)-1].Key)
	assert.Equal(t, "kept", fields[len(fields)-1].Value)
}

func TestColumnsPrefixConditionalSteps(t *testing.T) {
	for _, c := range Columns(schemaV("s1", "v1")) {
		if c.Key == "companyName" {
			assert.True(t, c.Brand)
			assert.Equal(t, "[Brand collaboration] Company name", c.Header)
			return
		}
	}
	t.Fatal("companyName column missing")
}

func TestResolver(t *testing.T) {
	src := &fakeSchemas{byID: map[string]model.Schema{"s1": schemaV("s1", "v1")}}
	res := NewResolver(src)
	ctx := context.Background()

	s, fallback := res.Resolve(ctx, model.Response{SchemaID: "s1"})
	assert.False(t, fallback)
	assert.Equal(t, "v1", s.Version)

	s, fallback = res.Resolve(ctx, model.Response{SchemaID: "gone", SchemaVersion: "v1"})
	assert.False(t, fallback, "found by version")
	assert.Equal(t, "s1", s.ID)

	s, fallback = res.Resolve(ctx, model.Response{SchemaID: "gone", SchemaVersion: "v0"})
	assert.True(t, fallback)
	assert.Equal(t, "fallback", s.Version)

	calls := src.calls
	res.Resolve(ctx, model.Response{SchemaID: "s1"})
	res.Resolve(ctx, model.Response{SchemaID: "gone", SchemaVersion: "v0"})
	assert.Equal(t, calls, src.calls, "outcomes are cached")
}

func TestResolverDoesNotCacheErrors(t *testing.T) {
	src := &fakeSchemas{byID: map[string]model.Schema{"s1": schemaV("s1", "v1")}, failFirst: true}
	res := NewResolver(src)

	_, fallback := res.Resolve(context.Background(), model.Response{SchemaID: "s1"})
	assert.True(t, fallback)
	_, fallback = res.Resolve(context.Background(), model.Response{SchemaID: "s1"})
	assert.False(t, fallback)
}

func TestWorkbookOneSheetPerVersion(t *testing.T) {
	src := &fakeSchemas{byID: map[string]model.Schema{
		"s1": schemaV("s1", "v20260701-120000.000"),
		"s2": schemaV("s2", "v20260801-090000.000"),
	}}
	at := time.Date(2026, 8, 2, 10, 30, 0, 0, time.UTC)
	rs := []model.Response{
		{ID: "r3", SchemaID: "s2", SubmittedAt: at, Answers: model.Answers{"name": "Cat", "ageGroup": "50plus"}},
		{ID: "r2", SchemaID: "s1", SubmittedAt: at, Answers: model.Answers{"name": "Bob", "visitPurpose": []string{"rest"}}},
		{ID: "r1", SchemaID: "old", SchemaVersion: "v0", Answers: model.Answers{"name": "Ann", "note": "hi"}},
		{ID: "r0", SchemaID: "s2", SubmittedAt: at, Answers: model.Answers{"name": "Dan"}},
	}

	f, err := Workbook(context.Background(), rs, NewResolver(src))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"v20260801-090000.000", "v20260701-120000.000", "fallback"}, book.GetSheetList())

	rows, err := book.GetRows("v20260801-090000.000")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Response id", "Submitted at", "Name"}, rows[0][:3])
	assert.Equal(t, []string{"r3", "2026-08-02 10:30:00", "Cat"}, rows[1][:3])
	assert.Contains(t, rows[1], "50 and over")
	assert.Equal(t, "r0", rows[2][0])

	rows, err = book.GetRows("fallback")
	require.NoError(t, err)
	header := rows[0]
	assert.Equal(t, "note", header[len(header)-1])
	assert.Equal(t, "hi", rows[1][len(rows[1])-1])
}

func TestWorkbookEmpty(t *testing.T) {
	f, err := Workbook(context.Background(), nil, NewResolver(&fakeSchemas{}))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Response id", "Submitted at"}}, rows)
}

func TestSheetNames(t *testing.T) {
	used := map[string]bool{}
	long := model.Schema{Version: "v2026/07:01*very-long-version-label-indeed"}

	first := sheetName(long, false, used)
	assert.Len(t, first, maxSheetName)
	assert.NotContains(t, first, "/")
	assert.NotContains(t, first, ":")

	second := sheetName(long, false, used)
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, len(second), maxSheetName)
	assert.Equal(t, "fallback", sheetName(model.Schema{Version: "v1"}, true, used))
}
