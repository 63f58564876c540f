package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const reportName = "informe_fase2.md"

const limitationsSection = `---

## ⚠️ Limitaciones Documentadas

### DGT - Tráfico
- **Sin datos históricos públicos** vía API
- Los endpoints DATEX II solo ofrecen datos en tiempo real
- Los históricos se construyen por acumulación con la captura periódica

### AEMET - Meteorología
- API con **rate limiting** estricto
- No todos los datos históricos disponibles vía API
- Datos anteriores a cierta fecha requieren solicitud directa a AEMET

### GVA - Contaminación
- Datos descargados **manualmente** desde portal web
- No existe API REST pública para descarga masiva

### EEA - Datos Europeos
- Archivos **muy grandes** (requieren procesamiento con chunks)
- Descarga manual desde portal

---

## ✅ Conclusiones

`

// WriteReport renders the verification outcome as Markdown under dir
// and returns the path written.
func WriteReport(dir string, verifiedAt time.Time, reports []SourceReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	timestamp := verifiedAt.Format("2006-01-02 15:04:05")

	totalFiles := 0
	totalRecords := 0
	var totalBytes int64
	withData := 0
	withDocs := 0
	for _, r := range reports {
		totalFiles += r.Dir.TotalFiles
		totalRecords += r.Dir.TotalRecords
		totalBytes += r.Dir.TotalBytes
		if r.Dir.HasData {
			withData++
		}
		if r.Dir.HasDocs {
			withDocs++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 📊 Informe de Verificación - Fase 2: Datos Estáticos\n\n")
	fmt.Fprintf(&b, "**Proyecto**: Data Detective Valencia  \n")
	fmt.Fprintf(&b, "**Fecha de verificación**: %s  \n", timestamp)
	fmt.Fprintf(&b, "**Directorio analizado**: `estaticos/`\n\n")
	b.WriteString("---\n\n## 📈 Resumen Ejecutivo\n\n")
	b.WriteString("| Métrica | Valor |\n|---------|-------|\n")
	fmt.Fprintf(&b, "| **Fuentes verificadas** | %d |\n", len(reports))
	fmt.Fprintf(&b, "| **Total archivos** | %d |\n", totalFiles)
	fmt.Fprintf(&b, "| **Total registros** | %s |\n", thousands(totalRecords))
	fmt.Fprintf(&b, "| **Tamaño total** | %s |\n\n", FormatBytes(totalBytes))

	b.WriteString("### Estado por Fuente\n\n")
	b.WriteString("| Fuente | Datos | Documentación | Registros | Periodo |\n")
	b.WriteString("|--------|:-----:|:-------------:|----------:|---------|\n")
	for _, r := range reports {
		data := "❌"
		if r.Dir.HasData {
			data = "✅"
		}
		docs := "➖"
		if r.Dir.HasDocs {
			docs = "✅"
		}
		period := "N/A"
		if r.Dir.DateMin != "" && r.Dir.DateMax != "" {
			period = fmt.Sprintf("%s → %s", r.Dir.DateMin, r.Dir.DateMax)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", r.Source.Name, data, docs, thousands(r.Dir.TotalRecords), period)
	}

	b.WriteString("\n---\n\n## 📁 Detalle por Fuente\n\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "### %s\n\n", r.Source.Name)
		fmt.Fprintf(&b, "**Descripción**: %s  \n", r.Source.Description)
		fmt.Fprintf(&b, "**Directorio**: `estaticos/%s/`\n\n", r.Source.Key)

		if !r.Dir.Exists {
			b.WriteString("> ⚠️ **Directorio no encontrado**\n\n")
			continue
		}
		if r.Dir.TotalFiles == 0 {
			b.WriteString("> ℹ️ **Directorio vacío**\n\n")
			continue
		}

		b.WriteString("**Estadísticas**:\n")
		fmt.Fprintf(&b, "- Archivos: %d\n", r.Dir.TotalFiles)
		fmt.Fprintf(&b, "- Registros totales: %s\n", thousands(r.Dir.TotalRecords))
		fmt.Fprintf(&b, "- Tamaño: %s\n", FormatBytes(r.Dir.TotalBytes))
		if r.Dir.DateMin != "" {
			fmt.Fprintf(&b, "- Periodo: %s → %s\n", r.Dir.DateMin, r.Dir.DateMax)
		}

		b.WriteString("\n**Archivos**:\n\n")
		b.WriteString("| Archivo | Tipo | Registros | Tamaño |\n")
		b.WriteString("|---------|------|----------:|-------:|\n")
		for _, f := range r.Dir.Files {
			fileType := f.Type
			if fileType == "" {
				fileType = "?"
			}
			records := "-"
			if f.HasRecords {
				records = thousands(f.Records)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", f.RelPath, fileType, records, FormatBytes(f.Bytes))
		}

		if len(r.Dir.EmptyFiles) > 0 {
			fmt.Fprintf(&b, "\n> ⚠️ **Archivos vacíos**: %s\n", strings.Join(r.Dir.EmptyFiles, ", "))
		}
		if len(r.Dir.Errors) > 0 {
			b.WriteString("\n> ❌ **Errores encontrados**:\n")
			for _, e := range r.Dir.Errors {
				fmt.Fprintf(&b, "> - %s\n", e)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(limitationsSection)

	if withData >= 3 {
		b.WriteString("✅ **Fase 2 completada satisfactoriamente**\n\n")
	} else {
		b.WriteString("⚠️ **Fase 2 parcialmente completada**\n\n")
	}
	fmt.Fprintf(&b, "- %d/%d fuentes con datos recopilados\n", withData, len(reports))
	fmt.Fprintf(&b, "- %d/%d fuentes con documentación\n", withDocs, len(reports))
	fmt.Fprintf(&b, "- Total de %s registros disponibles para análisis\n", thousands(totalRecords))
	fmt.Fprintf(&b, "- Tamaño total del dataset: %s\n\n", FormatBytes(totalBytes))
	b.WriteString("### Próximos pasos (Fase 3)\n")
	b.WriteString("1. Ejecutar la captura periódica de datos dinámicos\n")
	b.WriteString("2. Programar el servicio de captura\n")
	b.WriteString("3. Comenzar acumulación de históricos de tráfico DGT\n\n")
	b.WriteString("---\n\n")
	b.WriteString("*Informe generado automáticamente por Data Detective*  \n")
	fmt.Fprintf(&b, "*Verificación de Fase 2 - %s*\n", timestamp)

	path := filepath.Join(dir, reportName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// FormatBytes renders a size the way the reports expect: B, KB, MB or
// GB with one decimal (two for GB).
func FormatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
	}
}

func thousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
