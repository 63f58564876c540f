package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog lists the upstream endpoints and measurement stations the
// capture daemon polls. A YAML file can override any section; empty
// sections fall back to the built-in Valencia catalog.
type Catalog struct {
	DGT         DGTEndpoints    `yaml:"dgt"`
	GVABaseURL  string          `yaml:"gva_base_url"`
	GVAStations []Station       `yaml:"gva_stations"`
	AQICN       []AQICNStation  `yaml:"aqicn_stations"`
	OpenWeather OpenWeatherSite `yaml:"openweather"`
}

type DGTEndpoints struct {
	TrafficData string `yaml:"traffic_data"`
	Situations  string `yaml:"situations"`
	CCTV        string `yaml:"cctv"`
}

type Station struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type AQICNStation struct {
	UID  int    `yaml:"uid"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type OpenWeatherSite struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		DGT: DGTEndpoints{
			TrafficData: "https://infocar.dgt.es/datex2/dgt/TrafficData",
			Situations:  "https://infocar.dgt.es/datex2/dgt/SituationPublication/all/content.xml",
			CCTV:        "https://infocar.dgt.es/datex2/dgt/CCTVSiteTablePublication/all/content.xml",
		},
		GVABaseURL: "https://agroambient.gva.es/auto/estaciones/datos",
		GVAStations: []Station{
			{Code: "46250001", Name: "València - Centro (Avd. Francia)"},
			{Code: "46250030", Name: "València - Pista de Silla"},
			{Code: "46250047", Name: "València - Politècnic"},
			{Code: "46250050", Name: "València - Molí del Sol"},
			{Code: "46250054", Name: "València - Conselleria Meteo"},
		},
		AQICN: []AQICNStation{
			{UID: 6639, Code: "46250001", Name: "València - Centro (Avd. Francia)"},
			{UID: 6637, Code: "46250030", Name: "València - Pista de Silla"},
			{UID: 6640, Code: "46250047", Name: "València - Politècnic"},
			{UID: 6638, Code: "46250050", Name: "València - Molí del Sol"},
			{UID: 373816, Code: "46250054", Name: "València - Conselleria Meteo (Centre)"},
		},
		OpenWeather: OpenWeatherSite{Lat: 39.4699, Lon: -0.3763},
	}
}

// LoadCatalog reads a YAML catalog from path, or returns the defaults
// when path is empty. Sections missing from the file keep their
// default values.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if override.DGT.TrafficData != "" {
		cat.DGT.TrafficData = override.DGT.TrafficData
	}
	if override.DGT.Situations != "" {
		cat.DGT.Situations = override.DGT.Situations
	}
	if override.DGT.CCTV != "" {
		cat.DGT.CCTV = override.DGT.CCTV
	}
	if override.GVABaseURL != "" {
		cat.GVABaseURL = override.GVABaseURL
	}
	if len(override.GVAStations) > 0 {
		cat.GVAStations = override.GVAStations
	}
	if len(override.AQICN) > 0 {
		cat.AQICN = override.AQICN
	}
	if override.OpenWeather.Lat != 0 || override.OpenWeather.Lon != 0 {
		cat.OpenWeather = override.OpenWeather
	}

	return cat, nil
}
