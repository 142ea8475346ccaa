package analytics

import (
	"fmt"
	"sort"
	"time"

	"bonaso/internal/config"
	"bonaso/internal/domain"
)

// Breakdown dimension names. Requests use these as keys; filters use
// the same vocabulary.
const (
	DimSex            = "sex"
	DimAgeRange       = "age_range"
	DimDistrict       = "district"
	DimCitizenship    = "citizenship"
	DimKPType         = "kp_type"
	DimDisabilityType = "disability_type"
	DimPregnancy      = "pregnancy"
	DimHIVStatus      = "hiv_status"
	DimOption         = "option"
	DimSubcategory    = "subcategory"
	DimOrganization   = "organization"
	DimPlatform       = "platform"
	DimMetric         = "metric"
	DimPeriod         = "period"
)

const (
	SplitMonth   = "month"
	SplitQuarter = "quarter"
)

// dimensionOrder fixes the declaration order of dimensions, which in
// turn fixes bucket positions for a given request.
var dimensionOrder = []string{
	DimSex, DimAgeRange, DimDistrict, DimCitizenship,
	DimKPType, DimDisabilityType, DimPregnancy, DimHIVStatus,
	DimOption, DimSubcategory, DimOrganization, DimPlatform,
	DimMetric, DimPeriod,
}

var metricNames = []string{"comments", "views", "likes", "reach"}

// BreakdownSpec is the caller's breakdown request.
type BreakdownSpec struct {
	Dimensions      map[string]bool `json:"dimensions,omitempty"`
	Split           string          `json:"split,omitempty" enum:"month,quarter"`
	RepeatOnly      bool            `json:"repeat_only,omitempty"`
	RepeatThreshold int             `json:"repeat_threshold,omitempty"`
	Cascade         bool            `json:"cascade,omitempty"`
}

// collected bundles the scoped record sets; organization and period
// domains depend on actual data, so resolution runs after collection.
type collected struct {
	interactions []domain.InteractionRecord
	counts       []domain.CountRecord
	events       []domain.EventRecord
	posts        []domain.PostRecord
}

// resolveDimensions translates the breakdown spec into concrete value
// domains, in fixed declaration order. Invalid requests (subcategory
// split on an indicator without subcategories) are dropped with a
// warning, never rejected.
func resolveDimensions(cfg *config.Config, ind domain.Indicator, spec BreakdownSpec, col collected) ([]Dimension, []string) {
	var dims []Dimension
	var warnings []string
	for _, name := range dimensionOrder {
		if name == DimPeriod {
			if spec.Split != "" {
				dims = append(dims, Dimension{Name: DimPeriod, Values: periodDomain(spec.Split, col)})
			}
			continue
		}
		if !spec.Dimensions[name] {
			continue
		}
		switch name {
		case DimSex:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.Sexes})
		case DimAgeRange:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.AgeRanges})
		case DimDistrict:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.Districts})
		case DimCitizenship:
			dims = append(dims, Dimension{Name: name, Values: []string{domain.ValCitizen, domain.ValNonCitizen}})
		case DimKPType:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.KPTypes})
		case DimDisabilityType:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.DisabilityTypes})
		case DimPregnancy:
			dims = append(dims, Dimension{Name: name, Values: []string{domain.ValPregnant, domain.ValNotPregnant}})
		case DimHIVStatus:
			dims = append(dims, Dimension{Name: name, Values: []string{domain.ValHIVPositive, domain.ValHIVNegative}})
		case DimOption:
			var names []string
			for _, o := range ind.Options {
				names = append(names, o.Name)
			}
			if len(names) == 0 {
				warnings = append(warnings, fmt.Sprintf("indicator %s has no options; option breakdown ignored", ind.Code))
				continue
			}
			dims = append(dims, Dimension{Name: name, Values: names})
		case DimSubcategory:
			if len(ind.Subcategories) == 0 {
				warnings = append(warnings, fmt.Sprintf("indicator %s has no subcategories; subcategory breakdown ignored", ind.Code))
				continue
			}
			dims = append(dims, Dimension{Name: name, Values: ind.Subcategories})
		case DimOrganization:
			dims = append(dims, Dimension{Name: name, Values: organizationDomain(col)})
		case DimPlatform:
			dims = append(dims, Dimension{Name: name, Values: cfg.Catalog.Platforms})
		case DimMetric:
			dims = append(dims, Dimension{Name: name, Values: metricNames})
		}
	}
	known := map[string]bool{}
	for _, name := range dimensionOrder {
		known[name] = true
	}
	var unknown []string
	for name := range spec.Dimensions {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		warnings = append(warnings, fmt.Sprintf("unknown breakdown dimension %q ignored", name))
	}
	return dims, warnings
}

// organizationDomain lists the distinct organization names present in
// the collected records, first-seen order.
func organizationDomain(col collected) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, rec := range col.interactions {
		add(rec.OrgName)
	}
	for _, rec := range col.counts {
		add(rec.OrgName)
	}
	for _, rec := range col.events {
		add(rec.OrgName)
	}
	for _, rec := range col.posts {
		add(rec.OrgName)
	}
	return names
}

// periodDomain lists the distinct period labels observed across the
// collected records' own dates in chronological order. Empty periods
// are never materialized as buckets.
func periodDomain(split string, col collected) []string {
	type periodKey struct {
		year int
		sub  int
	}
	seen := map[periodKey]string{}
	add := func(d time.Time) {
		k := periodKey{year: d.Year()}
		if split == SplitQuarter {
			k.sub = (int(d.Month()) - 1) / 3
		} else {
			k.sub = int(d.Month())
		}
		if _, ok := seen[k]; !ok {
			seen[k] = periodLabel(d, split)
		}
	}
	for _, rec := range col.interactions {
		add(rec.Date)
	}
	for _, rec := range col.counts {
		add(rec.Date)
	}
	for _, rec := range col.events {
		add(rec.Date)
	}
	for _, rec := range col.posts {
		add(rec.Date)
	}
	keys := make([]periodKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].sub < keys[j].sub
	})
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = seen[k]
	}
	return labels
}

// periodLabel renders "Jan 2006" or "Q1 2006" from a record date.
func periodLabel(d time.Time, split string) string {
	if split == SplitQuarter {
		return fmt.Sprintf("Q%d %d", (int(d.Month())-1)/3+1, d.Year())
	}
	return d.Format("Jan 2006")
}
