package resource

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	// anyElement in a path segment matches every element of a list field.
	anyElement = "[*]"

	maxFilterCriteria  = 50
	maxFilterPathDepth = 20
	maxFilterValueSize = 1024
)

// Filter narrows listed objects on the client. Keys are dotted field paths
// such as "status.phase" or "spec.taints[*].key"; an object passes when
// every path holds the expected value. Map values match when they are a
// subset of the object's map.
type Filter map[string]any

// Validate rejects filters that are empty-keyed or too large to evaluate.
func (f Filter) Validate() error {
	if len(f) > maxFilterCriteria {
		return fmt.Errorf("too many filter criteria: %d (maximum %d)", len(f), maxFilterCriteria)
	}
	for path, value := range f {
		if path == "" || strings.Contains(path, "..") || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
			return fmt.Errorf("invalid filter path %q", path)
		}
		if depth := strings.Count(path, "."); depth > maxFilterPathDepth {
			return fmt.Errorf("filter path %q is too deep: %d (maximum %d)", path, depth, maxFilterPathDepth)
		}
		if s, ok := value.(string); ok && len(s) > maxFilterValueSize {
			return fmt.Errorf("filter value for %q is too large: %d bytes (maximum %d)", path, len(s), maxFilterValueSize)
		}
	}
	return nil
}

// Apply returns the items that match f, in their original order.
func (f Filter) Apply(items []unstructured.Unstructured) ([]unstructured.Unstructured, error) {
	if len(f) == 0 {
		return items, nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	out := make([]unstructured.Unstructured, 0, len(items))
	for _, item := range items {
		if f.matches(item.Object) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f Filter) matches(obj map[string]any) bool {
	for path, expected := range f {
		if !pathMatches(obj, strings.Split(path, "."), expected) {
			return false
		}
	}
	return true
}

// pathMatches walks path through obj. A segment ending in [*] fans out over
// the list it names and succeeds when any element matches the rest.
func pathMatches(obj map[string]any, path []string, expected any) bool {
	for i, segment := range path {
		field, wildcard := strings.CutSuffix(segment, anyElement)
		if !wildcard {
			continue
		}

		prefix := append(append([]string{}, path[:i]...), field)
		if field == "" {
			prefix = path[:i]
		}
		value, found, err := unstructured.NestedFieldNoCopy(obj, prefix...)
		if err != nil || !found {
			return false
		}
		elements, ok := value.([]any)
		if !ok {
			return false
		}

		rest := path[i+1:]
		for _, elem := range elements {
			if len(rest) == 0 {
				if valuesMatch(elem, expected) {
					return true
				}
				continue
			}
			if m, ok := elem.(map[string]any); ok && pathMatches(m, rest, expected) {
				return true
			}
		}
		return false
	}

	value, found, err := unstructured.NestedFieldNoCopy(obj, path...)
	if err != nil || !found {
		return false
	}
	return valuesMatch(value, expected)
}

func valuesMatch(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch want := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && got == want
	case bool:
		got, ok := actual.(bool)
		return ok && got == want
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, value := range want {
			if !valuesMatch(got[key], value) {
				return false
			}
		}
		return true
	}

	// Numbers decode as float64 from JSON but as int64 from the API.
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}
