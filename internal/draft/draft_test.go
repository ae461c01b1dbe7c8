package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadlink/internal/domain"
)

func TestFromText_PlainText(t *testing.T) {
	raw := FromText("first line\nsecond line\n")
	require.Len(t, raw.Blocks, 3)
	assert.Equal(t, "first line\nsecond line\n", raw.PlainText())
}

func TestChangeType_IsTyping(t *testing.T) {
	assert.True(t, InsertCharacters.IsTyping())
	assert.True(t, BackspaceCharacter.IsTyping())
	assert.False(t, SplitBlock.IsTyping())
	assert.False(t, InsertFragment.IsTyping())
	assert.False(t, ChangeType("").IsTyping())
}

func TestSerializeAndParse(t *testing.T) {
	upload := &domain.FileUpload{Name: "cat.png", ContentType: "image/png", Body: []byte{1, 2, 3}}
	raw := FromText("hello").
		AddImage("https://cdn.example.com/dog.png", nil).
		AddImage("blob:cat", upload)

	body, err := Serialize(raw)
	require.NoError(t, err)
	assert.NotContains(t, body, "cat.png", "staged files must not be serialized into the body")
	assert.Contains(t, body, "blob:cat")

	parsed, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, raw.PlainText(), parsed.PlainText())
	require.Len(t, parsed.EntityMap, 2)

	// Once serialized, nothing is staged any more.
	assert.Empty(t, StagedUploads(parsed))
}

func TestStagedUploads(t *testing.T) {
	raw := FromText("body").
		AddImage("blob:a", &domain.FileUpload{Name: "a.png"}).
		AddImage("https://cdn.example.com/b.png", nil).
		AddImage("blob:c", &domain.FileUpload{Name: "c.png"})

	uploads := StagedUploads(raw)
	require.Len(t, uploads, 2)
	assert.Equal(t, "a.png", uploads[0].Name)
	assert.Equal(t, "c.png", uploads[1].Name)
}

func TestParse_EmptyBody(t *testing.T) {
	raw, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, "", raw.PlainText())

	_, err = Parse("{not json")
	assert.Error(t, err)
}

func TestState_Document(t *testing.T) {
	var doc Document = Typed("check out example.com ")
	assert.Equal(t, InsertCharacters, doc.LastChangeType())
	assert.Equal(t, "check out example.com ", doc.PlainText())
}
