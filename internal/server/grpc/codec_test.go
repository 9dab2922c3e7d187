package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEncode_EmptyValues(t *testing.T) {
	var nilMap map[string]any
	var nilStruct *structpb.Struct
	for name, v := range map[string]any{
		"nil":        nil,
		"nil map":    nilMap,
		"nil struct": nilStruct,
		"empty map":  map[string]any{},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := encode(v)
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.Empty(t, out.GetFields())
		})
	}
}

func TestEncode_Object(t *testing.T) {
	out, err := encode(map[string]any{"chat_id": 100, "text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, float64(100), out.GetFields()["chat_id"].GetNumberValue())
	assert.Equal(t, "hi", out.GetFields()["text"].GetStringValue())

	_, err = encode([]int{1})
	assert.Error(t, err, "arrays are not objects")
}

func TestDecode_RoundTrip(t *testing.T) {
	in, err := encode(sendMessageRequest{AccountID: 1, ChatID: 100, Text: "hi"})
	require.NoError(t, err)

	var got sendMessageRequest
	require.NoError(t, decode(in, &got))
	assert.Equal(t, int64(100), got.ChatID)
	assert.Equal(t, "hi", got.Text)

	bad, err := structpb.NewStruct(map[string]any{"chat_id": "not a number"})
	require.NoError(t, err)
	assert.ErrorIs(t, decode(bad, &got), common.ErrValidation)
}
