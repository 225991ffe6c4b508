package templatefmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// FuncMap returns shared notification template helpers.
// Params: none.
// Returns: helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": FormatDuration,
		"fmtTime":     FormatTime,
		"json":        MarshalJSON,
		"upper":       Upper,
		"join":        Join,
		"money":       FormatMoney,
	}
}

// Upper renders any value as upper-case text; accepts named string types like severities.
func Upper(value any) string {
	return strings.ToUpper(fmt.Sprint(value))
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Render executes compiled template against data.
// Params: compiled template and template data.
// Returns: trimmed rendered text or execution error.
func Render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: template value expected as time.Duration, *time.Duration, or hours as int.
// Returns: formatted duration string.
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed == nil {
			return "0.0s"
		}
		duration = *typed
	case int:
		duration = time.Duration(typed) * time.Hour
	default:
		return "0.0s"
	}

	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 86400:
		return fmt.Sprintf("%.1fd", seconds/86400)
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// FormatTime renders timestamp as RFC3339 UTC.
// Params: time.Time or *time.Time.
// Returns: formatted timestamp or "-" when absent.
func FormatTime(value any) string {
	switch typed := value.(type) {
	case time.Time:
		if typed.IsZero() {
			return "-"
		}
		return typed.UTC().Format(time.RFC3339)
	case *time.Time:
		if typed == nil || typed.IsZero() {
			return "-"
		}
		return typed.UTC().Format(time.RFC3339)
	default:
		return "-"
	}
}

// FormatMoney renders amount with thousands separators and no cents.
// Params: float64, *float64, or int amount.
// Returns: formatted amount like "$12,500" or "-" when absent.
func FormatMoney(value any) string {
	var amount float64
	switch typed := value.(type) {
	case float64:
		amount = typed
	case *float64:
		if typed == nil {
			return "-"
		}
		amount = *typed
	case int:
		amount = float64(typed)
	default:
		return "-"
	}

	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%.0f", amount)
	var out strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	return sign + "$" + out.String()
}

// Join concatenates string slice for template output.
// Params: separator and values.
// Returns: joined string.
func Join(sep string, values []string) string {
	return strings.Join(values, sep)
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
