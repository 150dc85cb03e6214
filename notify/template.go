package notify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mbolis/workation/model"
)

var (
	reVariable = regexp.MustCompile(`\{\{([^{}#/\s]+)\}\}`)
	reIfBlock  = regexp.MustCompile(`(?s)\{\{#if\s+([^}\s]+)\s*\}\}(.*?)\{\{/if\}\}`)
)

// Render fills tpl with data. Every {{key}} of data is replaced first, in a
// single pass over the template so inserted values are never expanded, then
// each {{#if key}}...{{/if}} block is kept or dropped on data[key]. Values
// are inserted verbatim, without any HTML escaping.
func Render(tpl model.EmailTemplate, data map[string]any) model.EmailTemplate {
	return model.EmailTemplate{
		Subject: render(tpl.Subject, data),
		Content: render(tpl.Content, data),
	}
}

func render(text string, data map[string]any) string {
	text = reVariable.ReplaceAllStringFunc(text, func(placeholder string) string {
		value, ok := data[reVariable.FindStringSubmatch(placeholder)[1]]
		if !ok {
			return placeholder
		}
		return stringify(value)
	})
	return reIfBlock.ReplaceAllStringFunc(text, func(block string) string {
		m := reIfBlock.FindStringSubmatch(block)
		if truthy(data[m[1]]) {
			return m[2]
		}
		return ""
	})
}

func stringify(v any) string {
	if !truthy(v) {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

// truthy follows the usual scripting rules: empty string, zero, false,
// nil and unset answers are false; any list, even empty, is true.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0 && v == v
	default:
		return !model.IsEmptyValue(v) || isList(v)
	}
}

func isList(v any) bool {
	switch v.(type) {
	case []string, []any:
		return true
	}
	return false
}
