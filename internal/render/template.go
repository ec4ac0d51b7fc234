package render

import (
	"fmt"
	"strings"
)

// Template substitutes {{placeholder}} occurrences from data and strips
// any placeholders left unmatched, so missing values render as empty
// strings rather than leaking braces.
func Template(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		switch tv := v.(type) {
		case string:
			value = tv
		case int:
			value = fmt.Sprintf("%d", tv)
		default:
			if v != nil {
				value = fmt.Sprintf("%v", v)
			}
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
