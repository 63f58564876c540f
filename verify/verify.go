// Package verify audits the static data directory after a collection
// phase: which sources have data, how many records, over which period,
// and whether the documented limitations are in place. The outcome is
// a Markdown report.
package verify

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SourceInfo describes one expected data source.
type SourceInfo struct {
	Key         string
	Name        string
	Description string
	Variables   []string
}

// Sources is the expected layout of the static data directory, in
// report order.
var Sources = []SourceInfo{
	{
		Key:         "contaminacion",
		Name:        "GVA - Calidad del Aire",
		Description: "Datos históricos de contaminación de la Generalitat Valenciana",
		Variables:   []string{"NO2", "SO2", "O3", "PM10", "PM2.5", "CO"},
	},
	{
		Key:         "eea",
		Name:        "EEA - European Environment Agency",
		Description: "Datos europeos de calidad del aire",
		Variables:   []string{"NO2", "O3", "PM10", "PM2.5"},
	},
	{
		Key:         "meteorologia",
		Name:        "AEMET - Meteorología",
		Description: "Datos meteorológicos históricos",
		Variables:   []string{"precipitacion", "temperatura", "humedad", "viento"},
	},
	{
		Key:         "trafico",
		Name:        "DGT - Tráfico",
		Description: "Datos de tráfico de la red estatal",
		Variables:   []string{"intensidad", "velocidad", "incidencias"},
	},
}

// FileInfo is the analysis of one file in a source directory.
type FileInfo struct {
	Name       string
	RelPath    string
	Type       string
	Bytes      int64
	Empty      bool
	HasRecords bool
	Records    int
	Columns    []string
	DateMin    string
	DateMax    string
	Variables  []string
	Stations   []string
	Err        string
}

// DirReport aggregates the analysis of one source directory.
type DirReport struct {
	Exists       bool
	Files        []FileInfo
	TotalFiles   int
	TotalRecords int
	TotalBytes   int64
	DateMin      string
	DateMax      string
	HasData      bool
	HasDocs      bool
	EmptyFiles   []string
	Errors       []string
}

// SourceReport pairs a source with its directory analysis.
type SourceReport struct {
	Source SourceInfo
	Dir    DirReport
}

// Run analyzes every expected source under staticDir in report order.
func Run(staticDir string) []SourceReport {
	reports := make([]SourceReport, 0, len(Sources))
	for _, src := range Sources {
		reports = append(reports, SourceReport{
			Source: src,
			Dir:    AnalyzeDir(filepath.Join(staticDir, src.Key)),
		})
	}
	return reports
}

// AnalyzeDir walks one source directory recursively. A missing
// directory is reported, not treated as an error, because an absent
// source is exactly what the verification has to surface.
func AnalyzeDir(dir string) DirReport {
	report := DirReport{}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return report
	}
	report.Exists = true

	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = entry.Name()
		}
		file := FileInfo{Name: entry.Name(), RelPath: filepath.ToSlash(rel)}

		if info, err := entry.Info(); err == nil {
			file.Bytes = info.Size()
		}
		report.TotalFiles++

		if file.Bytes == 0 {
			file.Empty = true
			report.EmptyFiles = append(report.EmptyFiles, file.Name)
			report.Files = append(report.Files, file)
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			analyzeCSV(path, &file)
			report.HasData = true
			if file.HasRecords {
				report.TotalRecords += file.Records
			}
			if file.DateMin != "" && (report.DateMin == "" || file.DateMin < report.DateMin) {
				report.DateMin = file.DateMin
			}
			if file.DateMax != "" && file.DateMax > report.DateMax {
				report.DateMax = file.DateMax
			}
		case ".parquet":
			file.Type = "Parquet"
			report.HasData = true
		case ".xml":
			file.Type = "XML"
			report.HasData = true
		case ".md":
			file.Type = "Documentación"
			report.HasDocs = true
		default:
			file.Type = "Otro"
		}

		report.TotalBytes += file.Bytes
		report.Files = append(report.Files, file)
		if file.Err != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", file.Name, file.Err))
		}
		return nil
	})

	return report
}

// analyzeCSV reads the file once, counting records and collecting the
// date range plus the distinct variables and stations when present.
func analyzeCSV(path string, file *FileInfo) {
	file.Type = "CSV"

	f, err := os.Open(path)
	if err != nil {
		file.Err = err.Error()
		return
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		file.Err = err.Error()
		return
	}
	file.Columns = header

	dateCol, variableCol, stationCol := -1, -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "fecha":
			dateCol = i
		case "variable":
			variableCol = i
		case "estacion":
			stationCol = i
		}
	}

	variables := make(map[string]bool)
	stations := make(map[string]bool)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			file.Err = err.Error()
			break
		}
		file.Records++

		if dateCol >= 0 && dateCol < len(record) {
			if date, ok := normalizeDate(record[dateCol]); ok {
				if file.DateMin == "" || date < file.DateMin {
					file.DateMin = date
				}
				if date > file.DateMax {
					file.DateMax = date
				}
			}
		}
		if variableCol >= 0 && variableCol < len(record) {
			if v := strings.TrimSpace(record[variableCol]); v != "" && !variables[v] {
				variables[v] = true
				file.Variables = append(file.Variables, v)
			}
		}
		if stationCol >= 0 && stationCol < len(record) {
			if s := strings.TrimSpace(record[stationCol]); s != "" && !stations[s] {
				stations[s] = true
				file.Stations = append(file.Stations, s)
			}
		}
	}

	file.HasRecords = true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
}

func normalizeDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
