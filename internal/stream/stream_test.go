package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetymw/ddb2es/internal/types"
)

const modifyRecord = `{
  "eventID": "ev-1",
  "eventName": "MODIFY",
  "dynamodb": {
    "Keys": {"ROWID": {"S": "row-7"}},
    "NewImage": {
      "ROWID": {"S": "row-7"},
      "Confidence": {"N": "0.987"},
      "Reviewed": {"BOOL": true},
      "Labels": {"SS": ["a", "b"]}
    },
    "SequenceNumber": "111"
  }
}`

func TestDecode(t *testing.T) {
	rec, err := Decode([]byte(modifyRecord))
	require.NoError(t, err)

	assert.Equal(t, "ev-1", rec.EventID)
	assert.Equal(t, types.EventModify, rec.EventKind)
	assert.Equal(t, "111", rec.SequenceNumber)
	assert.Equal(t, types.Value{Tag: "S", Raw: "row-7"}, rec.Keys["ROWID"])
	assert.Equal(t, types.Value{Tag: "N", Raw: "0.987"}, rec.NewImage["Confidence"])
	assert.Equal(t, types.Value{Tag: "BOOL", Raw: "true"}, rec.NewImage["Reviewed"])
	assert.Equal(t, "SS", rec.NewImage["Labels"].Tag)
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
}

func TestFromEventKeepsOrder(t *testing.T) {
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "REMOVE", Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{"ROWID": events.NewStringAttribute("row-42")},
		}},
		{EventName: "INSERT", Change: events.DynamoDBStreamRecord{
			Keys:     map[string]events.DynamoDBAttributeValue{"ROWID": events.NewStringAttribute("row-1")},
			NewImage: map[string]events.DynamoDBAttributeValue{"TimeStamp": events.NewNumberAttribute("5")},
		}},
		{EventName: "TRUNCATE"},
	}}

	recs := FromEvent(ev)
	require.Len(t, recs, 3)
	assert.Equal(t, types.EventRemove, recs[0].EventKind)
	assert.Nil(t, recs[0].NewImage)
	assert.Equal(t, "row-42", recs[0].Keys["ROWID"].Raw)
	assert.Equal(t, types.EventInsert, recs[1].EventKind)
	assert.Equal(t, types.Value{Tag: "N", Raw: "5"}, recs[1].NewImage["TimeStamp"])
	assert.Equal(t, types.EventUnknown, recs[2].EventKind)
}
