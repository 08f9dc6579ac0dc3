// Package views holds the embedded HTML templates and the helpers they call.
package views

import (
	"embed"
	"html"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	fiberhtml "github.com/gofiber/template/html/v2"
)

//go:embed templates
var templatesFS embed.FS

// Layout wraps every full page.
const Layout = "layouts/base"

const (
	displayLayout = "2 January 2006, 15:04"
	inputLayout   = "2006-01-02T15:04"
)

// Options configures the helpers exposed to templates.
type Options struct {
	Location *time.Location
	MediaURL string
	// Reload re-parses templates on every render; for local development only.
	Reload bool
}

// NewEngine returns a fiber view engine over the embedded templates.
// Template names are their paths without extension, e.g. "blog/detail".
func NewEngine(opts Options) *fiberhtml.Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	engine := fiberhtml.NewFileSystem(http.FS(sub), ".html")
	engine.Reload(opts.Reload)
	engine.AddFuncMap(FuncMap(opts))
	return engine
}

// FuncMap returns the template helpers bound to opts.
func FuncMap(opts Options) template.FuncMap {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	mediaURL := strings.TrimRight(opts.MediaURL, "/")

	return template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format(displayLayout)
		},
		"mediaURL": func(rel string) string {
			return mediaURL + "/" + strings.TrimLeft(rel, "/")
		},
		"linebreaks":    Linebreaks,
		"truncatewords": TruncateWords,
		"idstr": func(id uint) string {
			return strconv.FormatUint(uint64(id), 10)
		},
	}
}

// FormatInput renders t for a datetime-local input in loc.
func FormatInput(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(inputLayout)
}

// ParseInput reads a datetime-local value as wall time in loc. Seconds are optional.
// An empty value yields the zero time.
func ParseInput(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(inputLayout, value, loc)
	if err != nil {
		t, err = time.ParseInLocation(inputLayout+":05", value, loc)
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Linebreaks escapes text and turns blank-line separated blocks into
// paragraphs and single newlines into <br>.
func Linebreaks(text string) template.HTML {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(line)
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

// TruncateWords keeps the first n words of s and appends an ellipsis when it cut anything.
func TruncateWords(n int, s string) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " …"
}
