package gorollup

import (
	"math"
	"sort"
)

// AfterKeyEntry is a single source value of a composite aggregation bucket key
type AfterKeyEntry struct {
	Key   string
	Value interface{}
}

// AfterKey is the composite aggregation cursor: the key of the last bucket processed.
// Entries keep the order of the composite sources. Values are one of nil, string, int64, float64 or bool.
type AfterKey []AfterKeyEntry

// NewAfterKey build an AfterKey from a map, sorting keys lexicographically.
// Integer and float values of any width are normalized to int64 and float64.
func NewAfterKey(values map[string]interface{}) (AfterKey, error) {
	if values == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ak := make(AfterKey, 0, len(keys))
	for _, k := range keys {
		v, err := NormalizeAfterKeyValue(values[k])
		if err != nil {
			return nil, err
		}
		ak = append(ak, AfterKeyEntry{Key: k, Value: v})
	}
	return ak, nil
}

// AfterKeyFromPairs build an AfterKey keeping the given order; pairs alternate key, value
func AfterKeyFromPairs(pairs ...interface{}) (AfterKey, error) {
	if len(pairs)%2 != 0 {
		return nil, NewRollupError(ErrCodeGeneral, "after key pairs must have an even length, got:%d", len(pairs))
	}
	ak := make(AfterKey, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			return nil, NewRollupError(ErrCodeGeneral, "after key name at position %d is not a string", i)
		}
		v, err := NormalizeAfterKeyValue(pairs[i+1])
		if err != nil {
			return nil, err
		}
		ak = append(ak, AfterKeyEntry{Key: k, Value: v})
	}
	return ak, nil
}

// NormalizeAfterKeyValue converts v into one of the value types an AfterKey may hold
func NormalizeAfterKeyValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, NewRollupError(ErrCodeGeneral, "after key value:%v overflows int64", val)
		}
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, NewRollupError(ErrCodeGeneral, "after key value:%v overflows int64", val)
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	default:
		return nil, NewRollupError(ErrCodeGeneral, "unsupported after key value type:%T", v)
	}
}

// Len returns the number of entries
func (ak AfterKey) Len() int {
	return len(ak)
}

// Keys returns the entry names in order
func (ak AfterKey) Keys() []string {
	keys := make([]string, len(ak))
	for i, e := range ak {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under key
func (ak AfterKey) Get(key string) (interface{}, bool) {
	for _, e := range ak {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set returns a copy of ak with key set to value. An existing key keeps its position.
func (ak AfterKey) Set(key string, value interface{}) (AfterKey, error) {
	v, err := NormalizeAfterKeyValue(value)
	if err != nil {
		return nil, err
	}
	cp := ak.Clone()
	for i := range cp {
		if cp[i].Key == key {
			cp[i].Value = v
			return cp, nil
		}
	}
	return append(cp, AfterKeyEntry{Key: key, Value: v}), nil
}

// Clone returns a copy that shares no storage with ak; a nil AfterKey stays nil
func (ak AfterKey) Clone() AfterKey {
	if ak == nil {
		return nil
	}
	cp := make(AfterKey, len(ak))
	copy(cp, ak)
	return cp
}

// Equal compares entries in order, telling a nil AfterKey apart from an empty one
func (ak AfterKey) Equal(other AfterKey) bool {
	if (ak == nil) != (other == nil) || len(ak) != len(other) {
		return false
	}
	for i := range ak {
		if ak[i] != other[i] {
			return false
		}
	}
	return true
}

// Map returns the entries as a map, losing their order
func (ak AfterKey) Map() map[string]interface{} {
	if ak == nil {
		return nil
	}
	m := make(map[string]interface{}, len(ak))
	for _, e := range ak {
		m[e.Key] = e.Value
	}
	return m
}
