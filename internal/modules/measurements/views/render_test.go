package views

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"stationlog/internal/modules/measurements/types"
)

func TestLoadTemplates_success(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v; want nil", err)
	}
	if pageTmpl == nil {
		t.Fatal("LoadTemplates() left pageTmpl nil")
	}
}

func TestLoadTemplates_failure_sub(t *testing.T) {
	if err := loadTemplatesFromFS(fstest.MapFS{}, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(empty) = nil; want error")
	}
}

func TestLoadTemplates_failure_parse(t *testing.T) {
	badFS := fstest.MapFS{
		"templates/base.html": {Data: []byte("{{ .")},
	}
	if err := loadTemplatesFromFS(badFS, "templates"); err == nil {
		t.Fatal("loadTemplatesFromFS(badFS) = nil; want error")
	}
}

func TestRender_notLoaded(t *testing.T) {
	prev := pageTmpl
	pageTmpl = nil
	t.Cleanup(func() { pageTmpl = prev })

	var buf bytes.Buffer
	err := RenderIndex(&buf, &IndexData{})
	if err == nil || !strings.Contains(err.Error(), "not loaded") {
		t.Fatalf("RenderIndex() = %v; want not loaded error", err)
	}
}

func TestRenderIndex(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates(): %v", err)
	}
	var buf bytes.Buffer
	if err := RenderIndex(&buf, &IndexData{Title: "Données capteurs", Stations: []string{"mangue", "pêche"}}); err != nil {
		t.Fatalf("RenderIndex: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`href="/data"`, "<li>mangue</li>", "<li>pêche</li>", "Données capteurs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderData(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates(): %v", err)
	}
	ts := types.NewTimestamp(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	data := &DataPage{
		Title: "24 dernières mesures",
		Devices: []DeviceTable{{
			Device: "mangue_BME1",
			Rows: []types.Measurement{
				{ID: 1, Timestamp: &ts, Temperature: types.FloatPtr(21.57), Humidity: types.FloatPtr(48)},
				{ID: 2},
			},
		}},
	}
	var buf bytes.Buffer
	if err := RenderData(&buf, data); err != nil {
		t.Fatalf("RenderData: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<h2>mangue_BME1</h2>", "2024-01-01 00:05:00", "<td>21.57</td>", "<td>48</td>", `<td class="null">-</td>`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderData_escapesDevice(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates(): %v", err)
	}
	var buf bytes.Buffer
	if err := RenderData(&buf, &DataPage{Devices: []DeviceTable{{Device: "<script>x</script>"}}}); err != nil {
		t.Fatalf("RenderData: %v", err)
	}
	if strings.Contains(buf.String(), "<script>x") {
		t.Error("device name was not escaped")
	}
}

func TestRenderData_empty(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates(): %v", err)
	}
	var buf bytes.Buffer
	if err := RenderData(&buf, &DataPage{}); err != nil {
		t.Fatalf("RenderData: %v", err)
	}
	if !strings.Contains(buf.String(), "Aucune donnée") {
		t.Errorf("empty page = %q", buf.String())
	}
}
