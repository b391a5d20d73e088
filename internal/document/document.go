package document

import (
	"strconv"

	"github.com/mehmetymw/ddb2es/internal/types"
)

// Source attribute names in the stream image.
const (
	AttrAssetType  = "AssetType"
	AttrConfidence = "Confidence"
	AttrOperation  = "Operation"
	AttrTag        = "Tag"
	AttrRowID      = "ROWID"
	AttrTimeStamp  = "TimeStamp"
	AttrFaceID     = "Face_Id"
	AttrValue      = "Value"
	AttrLocation   = "Location"
)

// IndexDocument is the body written to the index for one source row.
// Field order matches what existing documents in the index carry.
type IndexDocument struct {
	AssetType  string  `json:"AssetType"`
	Confidence float64 `json:"Confidence"`
	Operation  string  `json:"Operation"`
	Tag        string  `json:"Tag"`
	RowID      string  `json:"ROWID"`
	TimeStamp  int64   `json:"TimeStamp"`
	FaceID     *int64  `json:"Face_Id,omitempty"`
	Value      *string `json:"Value,omitempty"`
	Location   string  `json:"Location"`
}

// Decode builds the index document for key from a stream image. Any
// missing required attribute, tag mismatch, or a ROWID that differs from
// key yields a *types.DecodeError.
func Decode(key string, image map[string]types.Value) (IndexDocument, error) {
	var (
		doc IndexDocument
		err error
	)
	if image == nil {
		return doc, &types.DecodeError{Field: "NewImage", Reason: "missing"}
	}
	if doc.AssetType, err = requireString(image, AttrAssetType); err != nil {
		return doc, err
	}
	if doc.Confidence, err = requireFloat(image, AttrConfidence); err != nil {
		return doc, err
	}
	if doc.Operation, err = requireString(image, AttrOperation); err != nil {
		return doc, err
	}
	if doc.Tag, err = requireString(image, AttrTag); err != nil {
		return doc, err
	}
	if doc.RowID, err = requireString(image, AttrRowID); err != nil {
		return doc, err
	}
	if doc.RowID != key {
		return doc, &types.DecodeError{Field: AttrRowID, Reason: "does not match key " + strconv.Quote(key)}
	}
	if doc.TimeStamp, err = requireInt(image, AttrTimeStamp); err != nil {
		return doc, err
	}
	if _, ok := image[AttrFaceID]; ok {
		n, err := requireInt(image, AttrFaceID)
		if err != nil {
			return doc, err
		}
		doc.FaceID = &n
	}
	if _, ok := image[AttrValue]; ok {
		s, err := requireString(image, AttrValue)
		if err != nil {
			return doc, err
		}
		doc.Value = &s
	}
	if doc.Location, err = requireString(image, AttrLocation); err != nil {
		return doc, err
	}
	return doc, nil
}

// Key extracts the string key attribute from a record's key mapping.
func Key(keys map[string]types.Value, attr string) (string, error) {
	return requireString(keys, attr)
}

func lookup(m map[string]types.Value, name, tag string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", &types.DecodeError{Field: name, Reason: "missing"}
	}
	if v.Tag != tag {
		return "", &types.DecodeError{Field: name, Reason: "expected type " + tag + ", got " + v.Tag}
	}
	return v.Raw, nil
}

func requireString(m map[string]types.Value, name string) (string, error) {
	return lookup(m, name, types.TagString)
}

func requireFloat(m map[string]types.Value, name string) (float64, error) {
	raw, err := lookup(m, name, types.TagNumber)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &types.DecodeError{Field: name, Reason: "not a number: " + strconv.Quote(raw)}
	}
	return f, nil
}

func requireInt(m map[string]types.Value, name string) (int64, error) {
	raw, err := lookup(m, name, types.TagNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &types.DecodeError{Field: name, Reason: "not an integer: " + strconv.Quote(raw)}
	}
	return n, nil
}
