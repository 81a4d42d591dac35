package model

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags the type of a questionnaire answer value.
type ValueKind string

const (
	KindText    ValueKind = "text"
	KindNumber  ValueKind = "number"
	KindBoolean ValueKind = "boolean"
	KindEnum    ValueKind = "enum"
	KindList    ValueKind = "list"
)

func (k ValueKind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindBoolean, KindEnum, KindList:
		return true
	}
	return false
}

// Value is a tagged union of the answer kinds. Exactly one of the carrier
// fields is meaningful, selected by Kind. Keeping answers typed rather than
// an opaque blob keeps compare logic during merges well-defined.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	List   []string
}

type valueJSON struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var inner any
	switch v.Kind {
	case KindText, KindEnum:
		inner = v.Text
	case KindNumber:
		inner = v.Number
	case KindBoolean:
		inner = v.Bool
	case KindList:
		if v.List == nil {
			inner = []string{}
		} else {
			inner = v.List
		}
	default:
		return nil, fmt.Errorf("cannot marshal answer value of kind %q", v.Kind)
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}
	if !vj.Kind.Valid() {
		return fmt.Errorf("unknown answer value kind %q", vj.Kind)
	}
	out := Value{Kind: vj.Kind}
	switch vj.Kind {
	case KindText, KindEnum:
		if err := json.Unmarshal(vj.Value, &out.Text); err != nil {
			return fmt.Errorf("%s value: %w", vj.Kind, err)
		}
	case KindNumber:
		if err := json.Unmarshal(vj.Value, &out.Number); err != nil {
			return fmt.Errorf("number value: %w", err)
		}
	case KindBoolean:
		if err := json.Unmarshal(vj.Value, &out.Bool); err != nil {
			return fmt.Errorf("boolean value: %w", err)
		}
	case KindList:
		if err := json.Unmarshal(vj.Value, &out.List); err != nil {
			return fmt.Errorf("list value: %w", err)
		}
	}
	*v = out
	return nil
}

// Equal compares two values, kind first.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindText, KindEnum:
		return v.Text == other.Text
	case KindNumber:
		return v.Number == other.Number
	case KindBoolean:
		return v.Bool == other.Bool
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != other.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// TextValue, NumberValue, BoolValue, EnumValue and ListValue are convenience
// constructors.
func TextValue(s string) Value    { return Value{Kind: KindText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBoolean, Bool: b} }
func EnumValue(s string) Value    { return Value{Kind: KindEnum, Text: s} }
func ListValue(l ...string) Value { return Value{Kind: KindList, List: l} }

// Answer binds a question id to its value.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      Value  `json:"value"`
}

// AnswerList is the ordered mapping of question id to value carried by a
// world element. Order follows the template's question order.
type AnswerList []Answer

// Get returns the value for a question id.
func (l AnswerList) Get(questionID string) (Value, bool) {
	for _, a := range l {
		if a.QuestionID == questionID {
			return a.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value for questionID, appending when absent. Order of
// existing entries is preserved.
func (l AnswerList) Set(questionID string, v Value) AnswerList {
	for i, a := range l {
		if a.QuestionID == questionID {
			l[i].Value = v
			return l
		}
	}
	return append(l, Answer{QuestionID: questionID, Value: v})
}
