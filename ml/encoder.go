package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEncoderFitted = errors.New("encoder already fitted")

type UnknownCategoryError struct {
	Column string
	Value  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for column %s", e.Value, e.Column)
}

func (e *UnknownCategoryError) Kind() string {
	return "unknown_category"
}

// LabelEncoder maps the distinct values of one categorical column to dense
// codes 0..n-1 in first-appearance order.
type LabelEncoder struct {
	column  string
	classes []string
	index   map[string]int
	fitted  bool
}

func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{column: column}
}

func (e *LabelEncoder) Column() string {
	return e.column
}

func (e *LabelEncoder) Fitted() bool {
	return e.fitted
}

func (e *LabelEncoder) Fit(values []string) error {
	if e.fitted {
		return fmt.Errorf("%s: %w", e.column, ErrEncoderFitted)
	}
	e.classes = make([]string, 0)
	e.index = make(map[string]int)
	for _, v := range values {
		if _, ok := e.index[v]; ok {
			continue
		}
		e.index[v] = len(e.classes)
		e.classes = append(e.classes, v)
	}
	e.fitted = true
	return nil
}

func (e *LabelEncoder) Encode(value string) (int, error) {
	if !e.fitted {
		return 0, fmt.Errorf("encoder %s: %w", e.column, ErrNotTrained)
	}
	code, ok := e.index[value]
	if !ok {
		return 0, &UnknownCategoryError{Column: e.column, Value: value}
	}
	return code, nil
}

func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", fmt.Errorf("code %d out of range for column %s", code, e.column)
	}
	return e.classes[code], nil
}

func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

type encoderJSON struct {
	Column  string   `json:"column"`
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	if !e.fitted {
		return nil, fmt.Errorf("encoder %s: %w", e.column, ErrNotTrained)
	}
	return json.Marshal(encoderJSON{Column: e.column, Classes: e.classes})
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var payload encoderJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	e.column = payload.Column
	e.fitted = false
	return e.Fit(payload.Classes)
}

// EncoderSet holds one LabelEncoder per categorical column, in feature order.
type EncoderSet struct {
	columns  []string
	encoders map[string]*LabelEncoder
}

func NewEncoderSet(columns ...string) *EncoderSet {
	s := &EncoderSet{
		columns:  append([]string(nil), columns...),
		encoders: make(map[string]*LabelEncoder, len(columns)),
	}
	for _, c := range columns {
		s.encoders[c] = NewLabelEncoder(c)
	}
	return s
}

func (s *EncoderSet) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s *EncoderSet) Encoder(column string) (*LabelEncoder, bool) {
	e, ok := s.encoders[column]
	return e, ok
}

func (s *EncoderSet) Fit(column string, values []string) error {
	e, ok := s.encoders[column]
	if !ok {
		return fmt.Errorf("no encoder for column %s", column)
	}
	return e.Fit(values)
}

func (s *EncoderSet) Fitted() bool {
	for _, e := range s.encoders {
		if !e.Fitted() {
			return false
		}
	}
	return len(s.encoders) > 0
}

func (s *EncoderSet) Encode(column, value string) (int, error) {
	e, ok := s.encoders[column]
	if !ok {
		return 0, fmt.Errorf("no encoder for column %s", column)
	}
	return e.Encode(value)
}

func (s *EncoderSet) Decode(column string, code int) (string, error) {
	e, ok := s.encoders[column]
	if !ok {
		return "", fmt.Errorf("no encoder for column %s", column)
	}
	return e.Decode(code)
}

func (s *EncoderSet) MarshalJSON() ([]byte, error) {
	list := make([]*LabelEncoder, 0, len(s.columns))
	for _, c := range s.columns {
		list = append(list, s.encoders[c])
	}
	return json.Marshal(list)
}

func (s *EncoderSet) UnmarshalJSON(data []byte) error {
	var list []*LabelEncoder
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	s.columns = make([]string, 0, len(list))
	s.encoders = make(map[string]*LabelEncoder, len(list))
	for _, e := range list {
		s.columns = append(s.columns, e.column)
		s.encoders[e.column] = e
	}
	return nil
}
