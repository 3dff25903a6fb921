package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"stationlog/internal/modules/measurements/types"
)

//go:embed templates/*.html
var viewsFS embed.FS

var pageTmpl *template.Template

var funcs = template.FuncMap{
	"stamp": func(ts *types.Timestamp) string {
		if ts == nil {
			return "-"
		}
		return ts.String()
	},
	"cell": func(v *float64) template.HTML {
		if v == nil {
			return `<td class="null">-</td>`
		}
		return template.HTML("<td>" + strconv.FormatFloat(*v, 'f', -1, 64) + "</td>")
	},
}

// loadTemplatesFromFS parses every page under dir. Tests use it to simulate failures.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.New("pages").Funcs(funcs).ParseFS(sub, "*.html")
	return err
}

// LoadTemplates loads the embedded pages. Call it at startup; do not serve on error.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type IndexData struct {
	Title    string
	Stations []string
}

// DeviceTable is the latest rows of one sensor, oldest first.
type DeviceTable struct {
	Device string
	Rows   []types.Measurement
}

type DataPage struct {
	Title   string
	Devices []DeviceTable
}

func RenderIndex(w io.Writer, data *IndexData) error {
	return execute(w, "index.html", data)
}

func RenderData(w io.Writer, data *DataPage) error {
	return execute(w, "data.html", data)
}

func execute(w io.Writer, name string, data any) error {
	if pageTmpl == nil {
		return errors.New("templates not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, name, data)
}
