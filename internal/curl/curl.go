// Package curl renders outbound requests as copy-pasteable curl commands.
package curl

import (
	"sort"
	"strings"
)

// Command describes the request to render.
type Command struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Build assembles a single-line curl command. Headers are sorted by name so
// the output is stable.
func Build(c Command) string {
	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = "GET"
	}

	keys := make([]string, 0, len(c.Headers))
	for k := range c.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString("curl -X ")
	builder.WriteString(singleQuote(method))
	for _, k := range keys {
		builder.WriteString(" -H ")
		builder.WriteString(singleQuote(k + ": " + c.Headers[k]))
	}
	builder.WriteByte(' ')
	builder.WriteString(singleQuote(c.URL))
	if c.Body != "" {
		builder.WriteString(" --data-raw ")
		builder.WriteString(singleQuote(c.Body))
	}
	return builder.String()
}

func singleQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
