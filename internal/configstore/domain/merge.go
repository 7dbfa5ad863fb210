package domain

import (
	"encoding/json"
	"fmt"
)

// MergePatch applies patch over base as a JSON merge patch: objects merge
// recursively, null removes a member, any other value replaces it.
func MergePatch(base, patch []byte) ([]byte, error) {
	target := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &target); err != nil {
			return nil, fmt.Errorf("decode stored document: %w", err)
		}
	}

	var p map[string]any
	if err := json.Unmarshal(patch, &p); err != nil || p == nil {
		return nil, ErrInvalidPatch
	}

	return json.Marshal(mergeObject(target, p))
}

func mergeObject(target, patch map[string]any) map[string]any {
	if target == nil {
		target = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if po, ok := v.(map[string]any); ok {
			to, _ := target[k].(map[string]any)
			target[k] = mergeObject(to, po)
			continue
		}
		target[k] = v
	}
	return target
}
