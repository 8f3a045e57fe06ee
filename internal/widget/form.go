package widget

import (
	"net/url"
	"strings"
)

// Unflatten собирает поля запроса с составными именами (a:b:c) во вложенные карты.
// Если root непустой, учитываются только поля с префиксом "root:".
// Несколько значений одного поля дают []string.
func Unflatten(values url.Values, root string) map[string]any {
	out := map[string]any{}
	for key, vals := range values {
		if root != "" {
			if !strings.HasPrefix(key, root+":") {
				continue
			}
			key = strings.TrimPrefix(key, root+":")
		}
		if key == "" || len(vals) == 0 {
			continue
		}
		parts := strings.Split(key, ":")
		node := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := node[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[p] = next
			}
			node = next
		}
		last := parts[len(parts)-1]
		if _, nested := node[last].(map[string]any); nested {
			continue
		}
		if len(vals) == 1 {
			node[last] = vals[0]
		} else {
			node[last] = append([]string(nil), vals...)
		}
	}
	return out
}
