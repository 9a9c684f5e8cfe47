package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

const catalogYAML = `
datasets:
  - id: zurich
    name: Zurich city
    extent:
      minLon: 8.45
      maxLon: 8.62
      minLat: 47.32
      maxLat: 47.43
    heights: [10, 50, 100]
  - id: basel
    name: Basel
    extent: {minLon: 7.5, maxLon: 7.7, minLat: 47.5, maxLat: 47.6}
    heights: []
`

func TestLoadFile(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "catalog.yml")
	is.NoErr(os.WriteFile(path, []byte(catalogYAML), 0644))

	c, err := LoadFile(path)
	is.NoErr(err)
	is.Equal(c.IDs(), []string{"zurich", "basel"})

	zurich, ok := c.Find("zurich")
	is.True(ok)
	is.Equal(zurich.DatasetExtent.MaxLat, 47.43)

	h, ok := zurich.DefaultHeight()
	is.True(ok)
	is.Equal(h, 10.0)
	is.True(zurich.HasHeight(50))
	is.True(!zurich.HasHeight(20))

	basel, _ := c.Find("basel")
	_, ok = basel.DefaultHeight()
	is.True(!ok)

	_, ok = c.Single()
	is.True(!ok)
}

func TestLoadFileRejectsInvalidExtent(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "catalog.yml")
	is.NoErr(os.WriteFile(path, []byte(`
datasets:
  - id: broken
    extent: {minLon: 2, maxLon: 1, minLat: 0, maxLat: 1}
`), 0644))

	_, err := LoadFile(path)
	is.True(err != nil)
}

func TestSingle(t *testing.T) {
	is := is.New(t)

	c := New([]DatasetInfo{{ID: "only"}})
	d, ok := c.Single()
	is.True(ok)
	is.Equal(d.ID, "only")

	_, ok = c.Find("missing")
	is.True(!ok)
}
