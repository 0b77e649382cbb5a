package reminder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/dialbill/pkg/dispatch"
)

var (
	ErrInvalidTemplates = errors.New("invalid reminder templates")
	ErrUnknownTemplate  = errors.New("unknown reminder template flag")
)

// TemplateData is what a reminder template can reference.
type TemplateData struct {
	Name     string
	Greeting string
	Date     string
	Time     string
	StartsAt string
}

func newTemplateData(a *dispatch.Action) TemplateData {
	start := a.StartsAt.In(a.Location())
	d := TemplateData{
		Greeting: "Hi",
		Date:     start.Format("Mon, Jan 2"),
		Time:     start.Format("3:04 PM"),
		StartsAt: start.Format("Mon, Jan 2 3:04 PM MST"),
	}
	if name := strings.TrimSpace(a.RecipientName); name != "" {
		d.Name = cases.Title(language.English).String(name)
		d.Greeting = "Hi " + d.Name
	}
	return d
}

// ParseTemplates reads a YAML map of flag to text/template source, e.g.
//
//	confirm: "{{.Greeting}}, see you {{.Date}} at {{.Time}}."
//	t-minus-15: "{{.Greeting}}, we start in 15 minutes."
//
// Flags missing from the file keep the default wording.
func ParseTemplates(r io.Reader) (BodyFunc, error) {
	var raw map[string]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidTemplates, err)
	}

	templates := make(map[dispatch.Flag]*template.Template, len(raw))
	for key, src := range raw {
		flag, err := dispatch.ParseFlag(key)
		if err != nil {
			return nil, errors.Join(ErrUnknownTemplate, fmt.Errorf("%q", key))
		}
		tmpl, err := template.New(string(flag)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, errors.Join(ErrInvalidTemplates, err)
		}
		templates[flag] = tmpl
	}

	return func(a *dispatch.Action, flag dispatch.Flag) string {
		tmpl, ok := templates[flag]
		if !ok {
			return DefaultBody(a, flag)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, newTemplateData(a)); err != nil {
			return DefaultBody(a, flag)
		}
		return strings.TrimSpace(buf.String())
	}, nil
}

// LoadTemplates parses the template file at path.
func LoadTemplates(path string) (BodyFunc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidTemplates, err)
	}
	defer f.Close()
	return ParseTemplates(f)
}
