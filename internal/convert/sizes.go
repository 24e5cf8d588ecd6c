package convert

import (
	"fmt"
	"sort"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed sizes.yaml
var sizesYAML []byte

// catalog lists the observation widths of known policy families. It backs
// the default input size and the retry hints printed when no explicit
// --input_size is given; it is a heuristic, not a contract.
type catalog struct {
	Default int `yaml:"default"`
	Robots  []struct {
		Name         string `yaml:"name"`
		Observations int    `yaml:"observations"`
	} `yaml:"robots"`
}

var loadCatalog = sync.OnceValue(func() catalog {
	var c catalog
	if err := yaml.Unmarshal(sizesYAML, &c); err != nil {
		// The catalog ships inside the binary; failing to parse it is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded size catalog is invalid: %v", err))
	}
	return c
})

// DefaultInputSize returns the observation width assumed when the caller
// does not specify one.
func DefaultInputSize() int {
	return loadCatalog().Default
}

// CommonInputSizes returns the sorted, de-duplicated observation widths of
// all cataloged policy families.
func CommonInputSizes() []int {
	c := loadCatalog()
	seen := make(map[int]bool)
	var sizes []int
	for _, r := range c.Robots {
		if !seen[r.Observations] {
			seen[r.Observations] = true
			sizes = append(sizes, r.Observations)
		}
	}
	sort.Ints(sizes)
	return sizes
}
