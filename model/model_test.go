package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionHolds(t *testing.T) {
	answers := Answers{
		"hasExperienced": "yes",
		"visitPurpose":   []string{"rest", "brand_collaboration"},
		"fromJSON":       []any{"a", "b"},
	}

	assert.True(t, (*Condition)(nil).Holds(answers))
	assert.True(t, (&Condition{Field: "hasExperienced", Op: OpEquals, Value: "yes"}).Holds(answers))
	assert.False(t, (&Condition{Field: "hasExperienced", Op: OpEquals, Value: "no"}).Holds(answers))
	assert.True(t, BrandCollaboration().Holds(answers))
	assert.True(t, (&Condition{Field: "fromJSON", Op: OpIncludes, Value: "b"}).Holds(answers))
	assert.False(t, (&Condition{Field: "visitPurpose", Op: OpEquals, Value: "rest"}).Holds(answers))
	assert.False(t, (&Condition{Field: "missing", Op: OpEquals, Value: ""}).Holds(answers))
}

func TestConditionJSON(t *testing.T) {
	var step Step
	require.NoError(t, json.Unmarshal([]byte(`{"id":"brand","conditional":true,"questions":[
		{"id":"a","type":"text","condition":{"field":"x","value":"y"}},
		{"id":"b","type":"text","condition":{"field":"x","includes":"z"}}
	]}`), &step))

	assert.Equal(t, BrandCollaboration(), step.Conditional)
	assert.Equal(t, &Condition{Field: "x", Op: OpEquals, Value: "y"}, step.Questions[0].Condition)
	assert.Equal(t, &Condition{Field: "x", Op: OpIncludes, Value: "z"}, step.Questions[1].Condition)

	out, err := json.Marshal(step.Questions[0].Condition)
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"x","equals":"y"}`, string(out))

	var c Condition
	assert.Error(t, json.Unmarshal([]byte(`{"field":"x"}`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"equals":"x"}`), &c))
}

func TestCleanAnswers(t *testing.T) {
	cleaned := CleanAnswers(Answers{"foo": Undefined, "bar": nil, "baz": "x", "list": []any{"a"}})

	assert.Equal(t, Answers{"foo": "", "baz": "x", "list": []string{"a"}}, cleaned)
	assert.NotContains(t, cleaned, "bar")
}

func TestResponseJSONIsFlat(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	r := Response{
		ID:            "r1",
		SchemaID:      "s1",
		SchemaVersion: "v1",
		Answers:       Answers{"name": "Ann", "visitPurpose": []string{"rest"}},
		SubmittedAt:   at,
		CreatedAt:     at,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"r1","schemaId":"s1","schemaVersion":"v1",
		"name":"Ann","visitPurpose":["rest"],
		"submittedAt":"2026-05-01T09:30:00Z","createdAt":"2026-05-01T09:30:00Z"
	}`, string(data))

	var back Response
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestWorkLifeSectionOrder(t *testing.T) {
	var s WorkLifeSection
	require.NoError(t, json.Unmarshal([]byte(`{
		"itemOrder":["item2","item1","ghost"],
		"item1":{"title":"one"},"item2":{"title":"two"},"item3":{"title":"three"}
	}`), &s))

	var titles []string
	for _, it := range s.Ordered() {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"two", "one", "three"}, titles)
}

func TestMoveItem(t *testing.T) {
	out, err := MoveItem([]string{"a", "b", "c", "d"}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, out)

	out, err = MoveItem([]string{"a", "b", "c", "d"}, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "b", "c"}, out)

	_, err = MoveItem([]string{"a"}, 0, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
