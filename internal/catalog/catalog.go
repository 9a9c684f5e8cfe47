package catalog

import (
	"fmt"
	"os"

	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"gopkg.in/yaml.v3"
)

type DatasetInfo struct {
	ID                     string        `json:"id" yaml:"id"`
	Name                   string        `json:"name" yaml:"name"`
	DatasetExtent          geometry.BBox `json:"datasetExtent" yaml:"extent"`
	AvailableHeightsMeters []float64     `json:"availableHeightsMeters" yaml:"heights"`
}

// DefaultHeight returns the first available height, if any.
func (d DatasetInfo) DefaultHeight() (float64, bool) {
	if len(d.AvailableHeightsMeters) == 0 {
		return 0, false
	}
	return d.AvailableHeightsMeters[0], true
}

func (d DatasetInfo) HasHeight(h float64) bool {
	for _, available := range d.AvailableHeightsMeters {
		if available == h {
			return true
		}
	}
	return false
}

// Catalog is the ordered list of datasets offered by the backend.
type Catalog struct {
	Datasets []DatasetInfo `json:"datasets" yaml:"datasets"`
}

func New(datasets []DatasetInfo) Catalog {
	return Catalog{Datasets: datasets}
}

func (c Catalog) Find(id string) (DatasetInfo, bool) {
	for _, d := range c.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return DatasetInfo{}, false
}

func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Datasets))
	for _, d := range c.Datasets {
		ids = append(ids, d.ID)
	}
	return ids
}

// Single returns the only dataset when the catalog holds exactly one.
func (c Catalog) Single() (DatasetInfo, bool) {
	if len(c.Datasets) != 1 {
		return DatasetInfo{}, false
	}
	return c.Datasets[0], true
}

// LoadFile reads a static catalog from a YAML file, used when the backend
// catalog endpoint is unavailable.
func LoadFile(path string) (Catalog, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("error reading catalog file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(yamlFile, &c); err != nil {
		return Catalog{}, fmt.Errorf("error unmarshalling catalog file: %w", err)
	}

	for _, d := range c.Datasets {
		if d.ID == "" {
			return Catalog{}, fmt.Errorf("catalog file %s has a dataset without id", path)
		}
		if err := d.DatasetExtent.Validate(); err != nil {
			return Catalog{}, fmt.Errorf("dataset %s: %w", d.ID, err)
		}
	}

	return c, nil
}
