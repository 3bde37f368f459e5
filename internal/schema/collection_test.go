package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionCommentRoundTrip(t *testing.T) {
	settings, err := NewCollectionSettings(Indexing{Deny: []string{"notes"}}, IDTypeUUID, `{"type": "object"}`)
	require.NoError(t, err)

	comment, err := settings.Comment("users")
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection": {"name": "users", "schema_version": 1, "options": {
		"indexing": {"deny": ["notes"]}, "defaultId": {"type": "uuid"}, "validator": {"type": "object"}}}}`, comment)

	back, ok, err := ParseCollectionComment(comment)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"notes"}, back.Indexing.Deny)
	assert.Equal(t, IDTypeUUID, back.DefaultID)
	assert.NotNil(t, back.Validator())
	assert.False(t, back.IsIndexed("notes.text"))
}

func TestCollectionCommentDefaults(t *testing.T) {
	comment, err := (*CollectionSettings)(nil).Comment("events")
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection": {"name": "events", "schema_version": 1, "options": {"defaultId": {"type": "uuidv7"}}}}`, comment)
}

func TestParseCollectionCommentIgnoresTables(t *testing.T) {
	for _, comment := range []string{"", "orders placed online", `{"owner": "billing"}`, "{not json"} {
		settings, ok, err := ParseCollectionComment(comment)
		assert.NoError(t, err, comment)
		assert.False(t, ok, comment)
		assert.Nil(t, settings, comment)
	}
}

func TestParseCollectionCommentRejectsBadSettings(t *testing.T) {
	_, ok, err := ParseCollectionComment(`{"collection": {"name": "x", "options": {"defaultId": {"type": "objectId"}}}}`)
	assert.True(t, ok)
	assert.ErrorContains(t, err, "unsupported defaultId")
}
