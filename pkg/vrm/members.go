package vrm

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Members holds the JSON object members a VRM type does not model. They are
// written back unchanged on save.
type Members map[string]json.RawMessage

// decodeMembers unmarshals data into v, a pointer to a struct, and returns
// the members none of its fields claim.
func decodeMembers(data []byte, v any) (Members, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, name := range jsonNames(reflect.TypeOf(v).Elem()) {
		delete(all, name)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeMembers marshals v and adds the extra members its fields do not
// already write.
func encodeMembers(v any, extra Members) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for name, raw := range extra {
		if _, ok := all[name]; !ok {
			all[name] = raw
		}
	}
	return json.Marshal(all)
}

// jsonNames lists the member names the fields of struct type t map to,
// including names of fields omitted when empty.
func jsonNames(t reflect.Type) []string {
	names := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if !f.IsExported() || tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		names = append(names, name)
	}
	return names
}
