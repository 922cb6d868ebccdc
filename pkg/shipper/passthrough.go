package shipper

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Platform payloads grow fields over time. The rate request types keep the
// fields they do not model in Extra and write them back out unchanged, so the
// carrier sees the whole callback.

type (
	rateRequestFields RateRequest
	locationFields    Location
	rateItemFields    RateItem
)

// UnmarshalJSON implements json.Unmarshaler.
func (r *RateRequest) UnmarshalJSON(data []byte) error {
	var f rateRequestFields
	extra, err := decodeWithExtra(data, &f)
	if err != nil {
		return err
	}
	*r = RateRequest(f)
	r.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r RateRequest) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(rateRequestFields(r), r.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	var f locationFields
	extra, err := decodeWithExtra(data, &f)
	if err != nil {
		return err
	}
	*l = Location(f)
	l.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Location) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(locationFields(l), l.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *RateItem) UnmarshalJSON(data []byte) error {
	var f rateItemFields
	extra, err := decodeWithExtra(data, &f)
	if err != nil {
		return err
	}
	*i = RateItem(f)
	i.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (i RateItem) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(rateItemFields(i), i.Extra)
}

// decodeWithExtra decodes data into v and returns the object members v has no
// field for. A non-object body has no extras.
func decodeWithExtra(data []byte, v interface{}) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil || len(all) == 0 {
		return nil, nil
	}
	known := jsonFieldNames(reflect.TypeOf(v).Elem())
	for name := range all {
		if _, ok := known[strings.ToLower(name)]; ok {
			delete(all, name)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeWithExtra encodes v and merges extra into the object.
func encodeWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return body, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	for name, raw := range extra {
		if _, ok := merged[name]; !ok {
			merged[name] = raw
		}
	}
	return json.Marshal(merged)
}

var fieldNames sync.Map // reflect.Type -> lowercased json names

func jsonFieldNames(t reflect.Type) map[string]struct{} {
	if names, ok := fieldNames.Load(t); ok {
		return names.(map[string]struct{})
	}
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		names[strings.ToLower(name)] = struct{}{}
	}
	fieldNames.Store(t, names)
	return names
}
