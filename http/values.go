package http

import "bytes"

// Pair is one key/value item of a query string or form body.
type Pair struct {
	Key   string
	Value string
}

// Values is an ordered list of pairs. Keys may repeat; lookups return the
// first match and AllValues returns every match in insertion order.
type Values []Pair

func (values Values) Has(key string) bool {
	for _, pair := range values {
		if pair.Key == key {
			return true
		}
	}
	return false
}

func (values Values) Get(key string) (string, bool) {
	for _, pair := range values {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

func (values Values) GetOr(key, fallback string) string {
	if v, found := values.Get(key); found {
		return v
	}
	return fallback
}

func (values Values) AllValues(key string) []string {
	var result []string
	for _, pair := range values {
		if pair.Key == key {
			result = append(result, pair.Value)
		}
	}
	return result
}

// Keys returns the distinct keys in order of first appearance.
func (values Values) Keys() []string {
	seen := make(map[string]struct{}, len(values))
	keys := make([]string, 0, len(values))
	for _, pair := range values {
		if _, found := seen[pair.Key]; found {
			continue
		}
		seen[pair.Key] = struct{}{}
		keys = append(keys, pair.Key)
	}
	return keys
}

// Overlay returns values with every key that also appears in top replaced by
// the pairs of top. Neither receiver nor argument is modified.
func (values Values) Overlay(top Values) Values {
	result := make(Values, 0, len(values)+len(top))
	for _, pair := range values {
		if !top.Has(pair.Key) {
			result = append(result, pair)
		}
	}
	return append(result, top...)
}

// parsePairs splits an '&' separated list of key=value pairs, url-decoding
// both sides. Empty segments and segments without a key are skipped.
func parsePairs(values Values, data []byte, onPair func(key, value string)) Values {
	for len(data) > 0 {
		var segment []byte
		if i := bytes.IndexByte(data, '&'); i >= 0 {
			segment, data = data[:i], data[i+1:]
		} else {
			segment, data = data, nil
		}
		if len(segment) == 0 {
			continue
		}

		rawKey, rawValue := segment, []byte(nil)
		if i := bytes.IndexByte(segment, '='); i >= 0 {
			rawKey, rawValue = segment[:i], segment[i+1:]
		}
		if len(rawKey) == 0 {
			continue
		}

		key, value := URLDecode(rawKey), URLDecode(rawValue)
		values = append(values, Pair{Key: key, Value: value})
		if onPair != nil {
			onPair(key, value)
		}
	}
	return values
}
