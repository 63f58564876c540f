package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const readmeName = "README_dgt_historico.md"

const readmeHeader = `# Datos de Tráfico DGT - Documentación

## Investigación realizada: %s

---

## ⚠️ CONCLUSIÓN PRINCIPAL

**La DGT NO ofrece datos históricos de tráfico públicos vía API.**

Los endpoints DATEX II proporcionan únicamente **datos en tiempo real**.

---

## 📡 Endpoints Investigados

### 1. TrafficData (Datos de Tráfico)
- **URL**: ` + "`https://infocar.dgt.es/datex2/dgt/TrafficData`" + `
- **Tipo**: Tiempo real
- **Formato**: XML DATEX II
- **Contenido**: Mediciones de intensidad, velocidad y ocupación de la red estatal
- **Actualización**: Cada pocos minutos
- **Históricos disponibles**: ❌ NO

### 2. SituationPublication (Incidencias)
- **URL**: ` + "`https://infocar.dgt.es/datex2/dgt/SituationPublication/all/content.xml`" + `
- **Tipo**: Tiempo real
- **Formato**: XML DATEX II
- **Contenido**: Incidencias activas (obras, accidentes, retenciones)
- **Históricos disponibles**: ❌ NO

### 3. CCTVSiteTablePublication (Cámaras)
- **URL**: ` + "`https://infocar.dgt.es/datex2/dgt/CCTVSiteTablePublication/all/content.xml`" + `
- **Tipo**: Tiempo real
- **Formato**: XML DATEX II
- **Contenido**: Ubicación y estado de cámaras de tráfico
- **Históricos disponibles**: ❌ NO

---

## 🔍 Resultados del Análisis

`

const readmeFooter = `---

## 📋 Formato DATEX II

DATEX II es el estándar europeo para intercambio de datos de tráfico:

- **Especificación**: [docs.datex2.eu](https://docs.datex2.eu/)
- **Versiones**: La DGT usa v2 y v3.x según el endpoint
- **Estructura**: XML con namespaces específicos
- **Elementos principales**:
  - ` + "`siteMeasurements`" + `: Mediciones de puntos de aforo
  - ` + "`situation`" + `: Incidencias de tráfico
  - ` + "`cctvCameraMetadataRecord`" + `: Datos de cámaras

---

## 🚧 Limitaciones Identificadas

1. **Sin API de históricos**: No existe endpoint para consultar datos pasados
2. **Sin parámetros de fecha**: Los endpoints no aceptan rangos temporales
3. **Solo red estatal**: Excluye Cataluña y País Vasco
4. **Cobertura Valencia**: Solo carreteras estatales (A-3, A-7, V-30, etc.)

---

## ✅ Estrategia para Data Detective

### Fase 2 (Actual)
- ✓ Documentar la limitación (este archivo)
- ✓ Guardar muestra del formato XML actual
- ✓ No inventar datos históricos

### Fase 3 (Datos Dinámicos)
- Captura periódica con el servicio de acumulación
- Programar cada 5-10 minutos
- Acumular datos en: ` + "`dinamicos/trafico/`" + `
- Construir histórico propio por acumulación

### Formato de Acumulación Propuesto
` + "```" + `
fecha,hora,punto_medida,intensidad,velocidad,ocupacion
2026-02-06,14:30:00,PM_V30_KM5,1250,78,45
` + "```" + `

---

## 📚 Referencias

- [Portal DATEX II DGT](https://infocar.dgt.es/datex2/)
- [NAP - Punto de Acceso Nacional](https://nap.dgt.es/)
- [Especificación DATEX II](https://docs.datex2.eu/)

---

## 📁 Archivos en este directorio

- ` + "`README_dgt_historico.md`" + ` - Este archivo de documentación
- ` + "`muestra_*.xml`" + ` - Muestras truncadas de los XML en tiempo real

---

*Generado automáticamente por Data Detective - Fase 2.4*
`

// WriteReadme documents the investigation outcome, one section per
// probed endpoint, and returns the path written.
func WriteReadme(dir string, investigatedAt time.Time, results []Investigation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create readme dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, readmeHeader, investigatedAt.Format("2006-01-02 15:04:05"))

	for _, inv := range results {
		fmt.Fprintf(&b, "### %s\n", inv.Name)
		fmt.Fprintf(&b, "- Datos encontrados: %s\n", yesNo(inv.Analysis.HasData))
		fmt.Fprintf(&b, "- Fecha de publicación: %s\n", orNA(inv.Analysis.PublicationTime))
		fmt.Fprintf(&b, "- Número de elementos: %d\n", inv.Analysis.ElementCount)
		if inv.Analysis.RealTime {
			b.WriteString("- Es tiempo real: ✓ Sí\n")
		} else {
			b.WriteString("- Es tiempo real: No\n")
		}
		fmt.Fprintf(&b, "- Tiene históricos: %s\n\n", yesNo(inv.Analysis.HasHistorical))
	}

	b.WriteString(readmeFooter)

	path := filepath.Join(dir, readmeName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write readme: %w", err)
	}
	return path, nil
}

func yesNo(v bool) string {
	if v {
		return "✓ Sí"
	}
	return "✗ No"
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}
