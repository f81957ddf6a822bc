package client

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
)

// EncodeQuery encodes a parameter map into a query string with
// nested-object/array support using bracketed indices, e.g.
// a[0]=x&filter[status]=y. Keys are emitted in sorted order so the same
// inputs always produce the same string.
func EncodeQuery(params map[string]any) string {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		addQueryValue(values, k, params[k])
	}
	return values.Encode()
}

func addQueryValue(values url.Values, key string, v any) {
	if v == nil {
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		subKeys := make([]string, 0, rv.Len())
		sub := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			name := fmt.Sprint(iter.Key().Interface())
			subKeys = append(subKeys, name)
			sub[name] = iter.Value().Interface()
		}
		sort.Strings(subKeys)
		for _, name := range subKeys {
			addQueryValue(values, key+"["+name+"]", sub[name])
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			addQueryValue(values, key+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
		}
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return
		}
		addQueryValue(values, key, rv.Elem().Interface())
	default:
		values.Add(key, formatQueryValue(v))
	}
}

func formatQueryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON-decoded numbers; render integers without exponent.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
