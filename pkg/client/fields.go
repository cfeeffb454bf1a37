package client

import (
	"encoding/json"
	"reflect"
	"strings"
)

// itemFields and variantFields drop the methods so the encoder does not recurse.
type (
	itemFields    Item
	variantFields Variant
)

var (
	itemKeys    = jsonKeys(reflect.TypeOf(itemFields{}))
	variantKeys = jsonKeys(reflect.TypeOf(variantFields{}))
)

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (i *Item) UnmarshalJSON(data []byte) error {
	var fields itemFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unknownFields(data, itemKeys)
	if err != nil {
		return err
	}
	*i = Item(fields)
	i.Extra = extra
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (i Item) MarshalJSON() ([]byte, error) {
	return mergeFields(itemFields(i), i.Extra)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var fields variantFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unknownFields(data, variantKeys)
	if err != nil {
		return err
	}
	*v = Variant(fields)
	v.Extra = extra
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (v Variant) MarshalJSON() ([]byte, error) {
	return mergeFields(variantFields(v), v.Extra)
}

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
}

func unknownFields(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key := range all {
		if _, ok := known[key]; ok {
			delete(all, key)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// mergeFields encodes known and adds every Extra key it did not write.
func mergeFields(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	merged := make(map[string]json.RawMessage, len(extra)+16)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}
