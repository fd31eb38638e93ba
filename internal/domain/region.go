package domain

import (
	"fmt"
	"strings"
)

// Region is a market the analytics service can search against.
type Region struct {
	// Key is the menu shortcut shown in interactive mode ("1".."10").
	Key string `json:"key"`
	// Base is the dataset name sent with expansion requests.
	Base string `json:"base"`
	// ID is the numeric region identifier sent with suggestion requests.
	ID int `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name"`
}

// MultiBase is the pseudo-base that aggregates every known region.
const MultiBase = "multi"

var regions = []Region{
	{Key: "1", Base: "msk", ID: 213, Name: "Moscow"},
	{Key: "2", Base: "spb", ID: 2, Name: "Saint Petersburg"},
	{Key: "3", Base: "nsk", ID: 11316, Name: "Novosibirsk"},
	{Key: "4", Base: "ekb", ID: 56, Name: "Yekaterinburg"},
	{Key: "5", Base: "kzn", ID: 54, Name: "Kazan"},
	{Key: "6", Base: "krd", ID: 11079, Name: "Krasnodar"},
	{Key: "7", Base: "sam", ID: 51, Name: "Samara"},
	{Key: "8", Base: "chlb", ID: 11162, Name: "Chelyabinsk"},
	{Key: "9", Base: "nnov", ID: 65, Name: "Nizhny Novgorod"},
	{Key: "10", Base: "omsk", ID: 11119, Name: "Omsk"},
}

// Regions returns a copy of the region catalog in menu order.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// RegionIDs returns the identifiers of every catalogued region.
func RegionIDs() []int {
	ids := make([]int, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	return ids
}

// RegionByBase looks a region up by its base name.
func RegionByBase(base string) (Region, bool) {
	base = strings.ToLower(strings.TrimSpace(base))
	for _, r := range regions {
		if r.Base == base {
			return r, true
		}
	}
	return Region{}, false
}

// RegionByKey looks a region up by its interactive menu key.
func RegionByKey(key string) (Region, bool) {
	key = strings.TrimSpace(key)
	for _, r := range regions {
		if r.Key == key {
			return r, true
		}
	}
	return Region{}, false
}

// ResolveBase maps a base name to the regions it covers. The multi base
// covers all regions; any other base must be catalogued.
func ResolveBase(base string) ([]int, error) {
	if strings.EqualFold(strings.TrimSpace(base), MultiBase) {
		return RegionIDs(), nil
	}
	r, ok := RegionByBase(base)
	if !ok {
		return nil, NewConfigError("base", fmt.Sprintf("unknown base %q", base))
	}
	return []int{r.ID}, nil
}
