package synchronizer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/types"
)

type call struct {
	op   string
	id   string
	body string
}

type fakeIndex struct {
	calls   []call
	failIDs map[string]bool
}

func (f *fakeIndex) Upsert(_ context.Context, id string, doc any) error {
	b, _ := json.Marshal(doc)
	f.calls = append(f.calls, call{op: "PUT", id: id, body: string(b)})
	if f.failIDs[id] {
		return &types.TransportError{Op: "upsert", ID: id, Status: 500}
	}
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.calls = append(f.calls, call{op: "DELETE", id: id})
	if f.failIDs[id] {
		return &types.TransportError{Op: "delete", ID: id, Status: 503}
	}
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func s(v string) types.Value { return types.Value{Tag: types.TagString, Raw: v} }
func n(v string) types.Value { return types.Value{Tag: types.TagNumber, Raw: v} }

func keys(id string) map[string]types.Value { return map[string]types.Value{"ROWID": s(id)} }

func modify(id string) types.ChangeRecord {
	return types.ChangeRecord{
		EventKind: types.EventModify,
		Keys:      keys(id),
		NewImage: map[string]types.Value{
			"AssetType":  s("face"),
			"Confidence": n("0.987"),
			"Operation":  s("detect"),
			"Tag":        s("person"),
			"ROWID":      s(id),
			"TimeStamp":  n("1690000000"),
			"Location":   s("s3://bucket/img.jpg"),
		},
	}
}

func remove(id string) types.ChangeRecord {
	return types.ChangeRecord{EventKind: types.EventRemove, Keys: keys(id)}
}

func newSync(idx *fakeIndex) *Synchronizer {
	return New(idx, "ROWID", zap.NewNop())
}

func TestRemoveIssuesSingleDelete(t *testing.T) {
	idx := &fakeIndex{}
	res := newSync(idx).Process(context.Background(), []types.ChangeRecord{remove("row-42")})

	assert.Equal(t, "1 records processed.", res.Message())
	require.Len(t, idx.calls, 1)
	assert.Equal(t, call{op: "DELETE", id: "row-42"}, idx.calls[0])
	assert.Equal(t, 0, res.Failed())
}

func TestRemoveRedeliveryIsIdempotent(t *testing.T) {
	idx := &fakeIndex{}
	sy := newSync(idx)
	first := sy.Process(context.Background(), []types.ChangeRecord{remove("row-42")})
	second := sy.Process(context.Background(), []types.ChangeRecord{remove("row-42")})

	assert.Equal(t, first.Message(), second.Message())
	assert.Equal(t, first.Failed(), second.Failed())
	assert.Len(t, idx.calls, 2)
}

func TestModifyIssuesUpsertWithTypedBody(t *testing.T) {
	idx := &fakeIndex{}
	res := newSync(idx).Process(context.Background(), []types.ChangeRecord{modify("row-7")})

	assert.Equal(t, "1 records processed.", res.Message())
	require.Len(t, idx.calls, 1)
	assert.Equal(t, "PUT", idx.calls[0].op)
	assert.Equal(t, "row-7", idx.calls[0].id)
	assert.Equal(t,
		`{"AssetType":"face","Confidence":0.987,"Operation":"detect","Tag":"person","ROWID":"row-7","TimeStamp":1690000000,"Location":"s3://bucket/img.jpg"}`,
		idx.calls[0].body)
}

func TestOptionalFieldsIncludedWhenPresent(t *testing.T) {
	rec := modify("row-8")
	rec.NewImage["Face_Id"] = n("3")
	rec.NewImage["Value"] = s("smile")

	idx := &fakeIndex{}
	newSync(idx).Process(context.Background(), []types.ChangeRecord{rec})

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(idx.calls[0].body), &body))
	assert.Equal(t, float64(3), body["Face_Id"])
	assert.Equal(t, "smile", body["Value"])
}

func TestMixedBatchInOrder(t *testing.T) {
	idx := &fakeIndex{}
	batch := []types.ChangeRecord{modify("row-1"), remove("row-2"), modify("row-3")}
	res := newSync(idx).Process(context.Background(), batch)

	assert.Equal(t, "3 records processed.", res.Message())
	require.Len(t, idx.calls, 3)
	assert.Equal(t, []string{"PUT", "DELETE", "PUT"}, []string{idx.calls[0].op, idx.calls[1].op, idx.calls[2].op})
	assert.Equal(t, []string{"row-1", "row-2", "row-3"}, []string{idx.calls[0].id, idx.calls[1].id, idx.calls[2].id})
}

func TestFailuresDoNotHaltBatchAndStillCount(t *testing.T) {
	badImage := modify("row-2")
	delete(badImage.NewImage, "Location")
	noKey := types.ChangeRecord{EventKind: types.EventRemove}
	unknown := types.ChangeRecord{EventKind: types.EventUnknown, Keys: keys("row-5")}

	idx := &fakeIndex{failIDs: map[string]bool{"row-1": true}}
	batch := []types.ChangeRecord{modify("row-1"), badImage, noKey, remove("row-4"), unknown}
	res := newSync(idx).Process(context.Background(), batch)

	assert.Equal(t, len(batch), res.Processed)
	assert.Equal(t, "5 records processed.", res.Message())
	assert.Equal(t, 4, res.Failed())
	require.Len(t, res.Outcomes, 5)

	assert.True(t, errors.Is(res.Outcomes[0].Err, types.ErrTransport))
	assert.True(t, errors.Is(res.Outcomes[1].Err, types.ErrMalformedRecord))
	assert.True(t, errors.Is(res.Outcomes[2].Err, types.ErrMalformedRecord))
	assert.NoError(t, res.Outcomes[3].Err)
	assert.True(t, errors.Is(res.Outcomes[4].Err, types.ErrMalformedRecord))
	assert.Equal(t, "row-5", res.Outcomes[4].Key)

	// Malformed records never reach the index.
	assert.Len(t, idx.calls, 2)
}

func TestEmptyBatch(t *testing.T) {
	res := newSync(&fakeIndex{}).Process(context.Background(), nil)
	assert.Equal(t, "0 records processed.", res.Message())
}

func TestImageRowIDMismatchIsMalformed(t *testing.T) {
	rec := modify("row-9")
	rec.Keys = keys("row-10")

	idx := &fakeIndex{}
	res := newSync(idx).Process(context.Background(), []types.ChangeRecord{rec})

	assert.Equal(t, "1 records processed.", res.Message())
	assert.ErrorIs(t, res.Outcomes[0].Err, types.ErrMalformedRecord)
	assert.Empty(t, idx.calls)
}
