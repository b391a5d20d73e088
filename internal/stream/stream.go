package stream

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mehmetymw/ddb2es/internal/types"
)

var tags = map[events.DynamoDBDataType]string{
	events.DataTypeString:    "S",
	events.DataTypeNumber:    "N",
	events.DataTypeBoolean:   "BOOL",
	events.DataTypeNull:      "NULL",
	events.DataTypeBinary:    "B",
	events.DataTypeStringSet: "SS",
	events.DataTypeNumberSet: "NS",
	events.DataTypeBinarySet: "BS",
	events.DataTypeList:      "L",
	events.DataTypeMap:       "M",
}

// FromEvent converts a Lambda DynamoDB stream event into change records,
// preserving delivery order.
func FromEvent(ev events.DynamoDBEvent) []types.ChangeRecord {
	out := make([]types.ChangeRecord, 0, len(ev.Records))
	for _, r := range ev.Records {
		out = append(out, FromRecord(r))
	}
	return out
}

func FromRecord(r events.DynamoDBEventRecord) types.ChangeRecord {
	return types.ChangeRecord{
		EventID:        r.EventID,
		EventKind:      types.ParseEventKind(r.EventName),
		SequenceNumber: r.Change.SequenceNumber,
		Keys:           convert(r.Change.Keys),
		NewImage:       convert(r.Change.NewImage),
	}
}

// Decode parses a single stream record in the DynamoDB Streams JSON shape.
func Decode(b []byte) (types.ChangeRecord, error) {
	var r events.DynamoDBEventRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return types.ChangeRecord{}, fmt.Errorf("%w: %v", types.ErrMalformedRecord, err)
	}
	return FromRecord(r), nil
}

func convert(m map[string]events.DynamoDBAttributeValue) map[string]types.Value {
	if m == nil {
		return nil
	}
	out := make(map[string]types.Value, len(m))
	for k, av := range m {
		out[k] = value(av)
	}
	return out
}

func value(av events.DynamoDBAttributeValue) types.Value {
	dt := av.DataType()
	v := types.Value{Tag: tags[dt]}
	switch dt {
	case events.DataTypeString:
		v.Raw = av.String()
	case events.DataTypeNumber:
		v.Raw = av.Number()
	case events.DataTypeBoolean:
		v.Raw = strconv.FormatBool(av.Boolean())
	}
	return v
}
