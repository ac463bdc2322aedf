package segments

import (
	"fmt"
	"os"
	"sort"

	"github.com/dvloznov/card-segments/internal/domain"
	"gopkg.in/yaml.v3"
)

// Unknown is returned for segment ids the catalog does not describe.
var Unknown = domain.Descriptor{
	SegmentID:   -1,
	Label:       "Unknown",
	Description: "No description available.",
}

// Catalog maps segment ids to their human-facing descriptors. It is maintained
// independently of the data and never derived from it.
type Catalog struct {
	byID map[int]domain.Descriptor
}

// Default returns the catalog for the reference k=3 segmentation.
func Default() *Catalog {
	return New([]domain.Descriptor{
		{SegmentID: 0, Label: "Urban Explorer", Description: "Actively explores the city, spends on food and entertainment."},
		{SegmentID: 1, Label: "Investing Family Person", Description: "Stable income, family focused, spends less on travel."},
		{SegmentID: 2, Label: "Digital Traveler", Description: "Moves around a lot and pays with digital wallets."},
	})
}

// New builds a catalog from descriptors. Later entries replace earlier ones with the same id.
func New(descriptors []domain.Descriptor) *Catalog {
	c := &Catalog{byID: make(map[int]domain.Descriptor, len(descriptors))}
	for _, d := range descriptors {
		c.byID[d.SegmentID] = d
	}
	return c
}

type catalogFile struct {
	Segments []domain.Descriptor `yaml:"segments"`
}

// LoadFile reads a YAML catalog of the form:
//
//	segments:
//	  - id: 0
//	    label: Urban Explorer
//	    description: ...
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment catalog %q: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse segment catalog %q: %w", path, err)
	}
	if len(f.Segments) == 0 {
		return nil, fmt.Errorf("segment catalog %q has no segments: %w", path, domain.ErrInvalidConfig)
	}

	return New(f.Segments), nil
}

// Describe returns the descriptor for id, or Unknown (carrying id) when the id is not in the catalog.
func (c *Catalog) Describe(id int) domain.Descriptor {
	if d, ok := c.byID[id]; ok {
		return d
	}
	d := Unknown
	d.SegmentID = id
	return d
}

// Validate checks that every segment id in [0, k) is described.
func (c *Catalog) Validate(k int) error {
	var missing []int
	for id := 0; id < k; id++ {
		if _, ok := c.byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("segment catalog missing ids %v for k=%d: %w", missing, k, domain.ErrInvalidConfig)
	}
	return nil
}

// All returns the descriptors ordered by segment id.
func (c *Catalog) All() []domain.Descriptor {
	out := make([]domain.Descriptor, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	return out
}
