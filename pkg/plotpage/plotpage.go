// Package plotpage renders metric learning curves as a standalone HTML page
// built from go-echarts line charts.
package plotpage

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

const styleTagLen = len("</style>")

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageView is the data of page.html.
type pageView struct {
	Title       string
	Description string
	ProjectName string
	Theme       ThemeConfig
	Sections    []sectionView
}

// sectionView is the data of section.html.
type sectionView struct {
	Title    string
	Subtitle string
	Chart    template.HTML
}

// Section represents a chart section within a page.
type Section struct {
	Title    string
	Subtitle string
	Chart    Renderable
}

// Page represents a complete visualization page.
type Page struct {
	Title       string
	Description string
	ProjectName string
	Theme       Theme
	Sections    []Section
}

// NewPage creates a new visualization page.
func NewPage(title, description string) *Page {
	return &Page{
		Title:       title,
		Description: description,
		ProjectName: "metricplot",
		Theme:       ThemeDark,
	}
}

// WithTheme sets the theme for the page.
func (p *Page) WithTheme(theme Theme) *Page {
	p.Theme = theme

	return p
}

// Add appends sections to the page.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Render writes the page as HTML. Charts are rendered first so a failing
// chart leaves w untouched.
func (p *Page) Render(w io.Writer) error {
	view := pageView{
		Title:       p.Title,
		Description: p.Description,
		ProjectName: p.ProjectName,
		Theme:       GetThemeConfig(p.Theme),
		Sections:    make([]sectionView, 0, len(p.Sections)),
	}

	for _, section := range p.Sections {
		chartHTML, err := renderChart(section.Chart)
		if err != nil {
			return fmt.Errorf("render section %q: %w", section.Title, err)
		}

		view.Sections = append(view.Sections, sectionView{
			Title:    section.Title,
			Subtitle: section.Subtitle,
			Chart:    template.HTML(chartHTML), //nolint:gosec // echarts output.
		})
	}

	var buf bytes.Buffer

	err := pageTemplates.ExecuteTemplate(&buf, "page.html", view)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	_, err = buf.WriteTo(w)
	if err != nil {
		return fmt.Errorf("writing page: %w", err)
	}

	return nil
}

// Renderable is the interface for chart components.
type Renderable interface {
	Render(w io.Writer) error
}

func renderChart(chart Renderable) (string, error) {
	if chart == nil {
		return "", nil
	}

	var buf bytes.Buffer

	err := chart.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("rendering chart: %w", err)
	}

	return extractChartContent(buf.String()), nil
}

// extractChartContent strips the full HTML document echarts renders down to
// the chart div and its script.
func extractChartContent(html string) string {
	trimmed := strings.TrimSpace(html)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return html
	}

	start := strings.Index(html, `<div class="container">`)
	if start == -1 {
		return html
	}

	end := strings.Index(html, `</body>`)
	if end == -1 {
		return html
	}

	content := html[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	return removeStyleTags(content)
}

func removeStyleTags(content string) string {
	for {
		i := strings.Index(content, `<style>`)
		if i == -1 {
			break
		}

		j := strings.Index(content[i:], `</style>`)
		if j == -1 {
			break
		}

		content = content[:i] + content[i+j+styleTagLen:]
	}

	return content
}
