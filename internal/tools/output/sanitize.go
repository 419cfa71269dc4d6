package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// RedactedValue is the placeholder used for masked secret data.
const RedactedValue = "***REDACTED***"

// LastAppliedAnnotation is written by kubectl apply and holds a full copy of
// the applied manifest, Secret data included.
const LastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// excludedFields are dropped from every object.
var excludedFields = [][]string{
	{"metadata", "managedFields"},
}

// sensitiveAnnotations lists annotations that contain sensitive data.
var sensitiveAnnotations = map[string]bool{
	"kubernetes.io/service-account.uid":   true,
	"kubernetes.io/service-account.name":  true,
	"kubernetes.io/service-account-token": true,
}

// Sanitize returns a copy of obj that is safe to return to a client.
func Sanitize(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}

	result := deepCopyMap(obj)
	for _, path := range excludedFields {
		removeField(result, path)
	}
	if annotations, ok := nestedMap(result, "metadata", "annotations"); ok {
		delete(annotations, LastAppliedAnnotation)
		if len(annotations) == 0 {
			delete(result["metadata"].(map[string]any), "annotations")
		}
	}
	if IsSecret(result) {
		maskSecretData(result)
	}
	return result
}

// SanitizeObject sanitizes an unstructured object. A nil object yields nil.
func SanitizeObject(obj *unstructured.Unstructured) map[string]any {
	if obj == nil {
		return nil
	}
	return Sanitize(obj.Object)
}

// SanitizeList sanitizes items, keeping their order. The result is never
// nil, so an empty list encodes as [].
func SanitizeList(items []unstructured.Unstructured) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for i := range items {
		out = append(out, Sanitize(items[i].Object))
	}
	return out
}

// IsSecret reports whether obj is a core Secret.
func IsSecret(obj map[string]any) bool {
	kind, _ := obj["kind"].(string)
	if !strings.EqualFold(kind, "Secret") {
		return false
	}
	apiVersion, _ := obj["apiVersion"].(string)
	return apiVersion == "" || apiVersion == "v1"
}

// maskSecretData masks the data and stringData fields of a Secret. Keys
// stay visible, values do not.
func maskSecretData(secret map[string]any) {
	for _, field := range []string{"data", "stringData"} {
		data, ok := secret[field].(map[string]any)
		if !ok {
			continue
		}
		masked := make(map[string]any, len(data))
		for key := range data {
			masked[key] = RedactedValue
		}
		secret[field] = masked
	}

	if annotations, ok := nestedMap(secret, "metadata", "annotations"); ok {
		for key := range annotations {
			if sensitiveAnnotations[key] {
				annotations[key] = RedactedValue
			}
		}
	}
}

func nestedMap(obj map[string]any, path ...string) (map[string]any, bool) {
	current := obj
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// removeField deletes the field at path, if present.
func removeField(obj map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	parent, ok := nestedMap(obj, path[:len(path)-1]...)
	if !ok {
		return
	}
	delete(parent, path[len(path)-1])
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = deepCopyValue(item)
		}
		return result
	default:
		return v
	}
}
