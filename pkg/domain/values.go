package domain

// Values is the mapping type for keyed inputs and outputs.
type Values map[string]any

// Clone returns a shallow copy of v. A nil receiver yields an empty map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge returns a copy of v with other's keys written over it.
func (v Values) Merge(other Values) Values {
	out := v.Clone()
	for k, val := range other {
		out[k] = val
	}
	return out
}

// AsValues reports whether input is a mapping and returns it as Values.
// The returned map aliases the input; callers that mutate must Clone first.
func AsValues(input any) (Values, bool) {
	switch m := input.(type) {
	case Values:
		return m, true
	case map[string]any:
		return Values(m), true
	default:
		return nil, false
	}
}

// Plain converts nested Values into map[string]any recursively, so that
// third-party libraries that switch on concrete map types see plain maps.
func Plain(input any) any {
	switch t := input.(type) {
	case Values:
		return plainMap(t)
	case map[string]any:
		return plainMap(t)
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = Plain(v)
		}
		return out
	default:
		return input
	}
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Plain(v)
	}
	return out
}
