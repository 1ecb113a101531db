package result

import (
	"fmt"
	"strconv"

	"github.com/viant/vecindex/row"
)

// DefaultScoreField is the column the backend writes the distance to.
const DefaultScoreField = "_distance"

// ScoredRecord is a decoded search hit. Score is a distance: smaller is closer.
type ScoredRecord[T any] struct {
	Score   float64
	ID      string
	Payload T
}

// ScoredID is a search hit without payload.
type ScoredID struct {
	Score float64
	ID    string
}

// DecodeError reports a row that could not be mapped onto the payload type.
type DecodeError struct {
	Row int
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("result: decode row %d: %v", e.Row, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder maps rows to scored results. A missing or non-numeric score decodes
// as 0. A missing or non-string id decodes as "unknown<i>" for records and as
// "" for ids.
type Decoder struct {
	IDField    string
	ScoreField string
}

// NewDecoder returns a decoder reading ids from idField and scores from
// DefaultScoreField.
func NewDecoder(idField string) Decoder {
	return Decoder{IDField: idField, ScoreField: DefaultScoreField}
}

func (d Decoder) scoreField() string {
	if d.ScoreField == "" {
		return DefaultScoreField
	}
	return d.ScoreField
}

// Score returns the row score, or 0.
func (d Decoder) Score(r *row.Row) float64 {
	if v, ok := r.Get(d.scoreField()); ok {
		if score, ok := v.AsNumber(); ok {
			return score
		}
	}
	return 0
}

// ID returns the row id and whether it was present as a string.
func (d Decoder) ID(r *row.Row) (string, bool) {
	v, ok := r.Get(d.IDField)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Records decodes every row into a ScoredRecord, preserving order. The first
// payload failure aborts the whole call.
func Records[T any](d Decoder, rows []*row.Row) ([]ScoredRecord[T], error) {
	records := make([]ScoredRecord[T], 0, len(rows))
	for i, r := range rows {
		id, ok := d.ID(r)
		if !ok {
			id = "unknown" + strconv.Itoa(i)
		}
		record := ScoredRecord[T]{Score: d.Score(r), ID: id}
		if err := row.Decode(r, &record.Payload); err != nil {
			return nil, &DecodeError{Row: i, Err: err}
		}
		records = append(records, record)
	}
	return records, nil
}

// IDs decodes every row into a ScoredID, preserving order.
func (d Decoder) IDs(rows []*row.Row) []ScoredID {
	ids := make([]ScoredID, 0, len(rows))
	for _, r := range rows {
		id, _ := d.ID(r)
		ids = append(ids, ScoredID{Score: d.Score(r), ID: id})
	}
	return ids
}
