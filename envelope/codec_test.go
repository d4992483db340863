package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsTTLAndOrigin(t *testing.T) {
	raw := []byte(`{"proto":"flooding","type":"message","id":"abc","from":"A","to":"*"}`)

	e, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, DefaultTTL, e.TTL)
	assert.Equal(t, "A", e.Origin)
	assert.Equal(t, []Header{}, e.Headers)
}

func TestParseHeadersAsMapIsWrapped(t *testing.T) {
	raw := []byte(`{"proto":"lsr","type":"info","id":"x","from":"A","origin":"A","to":"B","ttl":4,"headers":{"seq":3}}`)

	e, err := Parse(raw)
	require.NoError(t, err)

	require.Len(t, e.Headers, 1)
	assert.EqualValues(t, 3, e.Headers[0]["seq"])
}

func TestParseHeadersAsSequencePassesThrough(t *testing.T) {
	raw := []byte(`{"proto":"lsr","type":"info","id":"x","from":"A","origin":"A","to":"B","ttl":4,"headers":[{"seq":1},{"age":9}]}`)

	e, err := Parse(raw)
	require.NoError(t, err)

	require.Len(t, e.Headers, 2)
	assert.EqualValues(t, 1, e.Headers[0]["seq"])
	assert.EqualValues(t, 9, e.Headers[1]["age"])
}

func TestParseMalformedJSONFails(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)
}

func TestRoundTripIsIdentityOnSemanticFields(t *testing.T) {
	original := New(ProtoDVR, TypeMessage, "A", "C", map[string]any{"greeting": "hi"})
	original = original.WithHeader("seq", float64(1))

	wire, err := Serialize(original)
	require.NoError(t, err)

	parsed, err := Parse(wire)
	require.NoError(t, err)

	assert.Equal(t, original.Proto, parsed.Proto)
	assert.Equal(t, original.Type, parsed.Type)
	assert.Equal(t, original.ID, parsed.ID)
	assert.Equal(t, original.From, parsed.From)
	assert.Equal(t, original.Origin, parsed.Origin)
	assert.Equal(t, original.To, parsed.To)
	assert.Equal(t, original.TTL, parsed.TTL)
	assert.Equal(t, original.Headers, parsed.Headers)
}

func TestValidateRejectsOutOfRangeTTL(t *testing.T) {
	e := New(ProtoFlooding, TypeMessage, "A", "B", nil)
	e.TTL = 65

	assert.Error(t, e.Validate())
}

func TestValidateFlagsUnknownType(t *testing.T) {
	e := New(ProtoFlooding, Type("bogus"), "A", "B", nil)

	assert.True(t, e.IsUnknownType())
	assert.Error(t, e.Validate())
}

func TestDecTTLFloorsAtZero(t *testing.T) {
	e := New(ProtoFlooding, TypeMessage, "A", "B", nil)
	e.TTL = 0

	assert.Equal(t, 0, e.DecTTL().TTL)
}
