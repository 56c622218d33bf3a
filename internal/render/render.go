package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strconv"
	"strings"
	texttmpl "text/template"
	"time"
)

const (
	DefaultInstitution      = "Moshood Abiola Polytechnic"
	DefaultInstitutionShort = "MAP"
	DefaultFromName         = "Academic Affairs Department"
	ResultEmailSubject      = "Academic Results Published"
)

//go:embed templates/*
var templateFS embed.FS

var funcs = map[string]any{
	"score": formatScore,
}

var (
	htmlTemplates = htmltmpl.Must(htmltmpl.New("").Funcs(funcs).Option("missingkey=error").ParseFS(templateFS, "templates/*.gohtml"))
	textTemplates = texttmpl.Must(texttmpl.New("").Funcs(funcs).Option("missingkey=error").ParseFS(templateFS, "templates/*.txt"))
)

// Renderer fills message templates with institution branding.
type Renderer struct {
	institution      string
	institutionShort string
	fromName         string
	now              func() time.Time
}

type Option func(*Renderer)

func WithInstitution(name, short string) Option {
	return func(r *Renderer) {
		if name = strings.TrimSpace(name); name != "" {
			r.institution = name
		}
		if short = strings.TrimSpace(short); short != "" {
			r.institutionShort = short
		}
	}
}

func WithFromName(name string) Option {
	return func(r *Renderer) {
		if name = strings.TrimSpace(name); name != "" {
			r.fromName = name
		}
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		institution:      DefaultInstitution,
		institutionShort: DefaultInstitutionShort,
		fromName:         DefaultFromName,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Institution() string { return r.institution }

func (r *Renderer) FromName() string { return r.fromName }

func executeHTML(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func executeText(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCGPA(cgpa *float64) string {
	if cgpa == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*cgpa, 'f', 2, 64)
}
