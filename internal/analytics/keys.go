package analytics

import (
	"strconv"
	"strings"

	"bonaso/internal/domain"
)

// contribution is one weighted candidate for bucket matching: one
// token list per requested dimension (several tokens when the
// dimension is multi-valued for this record) and the amount it adds.
type contribution struct {
	candidates [][]string
	amount     int64
}

// descriptorSets expands the per-dimension candidates into concrete
// descriptor sets. A dimension with no token for this record yields no
// sets: the record lies outside the requested domain and is dropped.
func (c contribution) descriptorSets() [][]string {
	sets := [][]string{{}}
	for _, tokens := range c.candidates {
		if len(tokens) == 0 {
			return nil
		}
		var next [][]string
		for _, set := range sets {
			for _, tok := range tokens {
				extended := make([]string, len(set), len(set)+1)
				copy(extended, set)
				next = append(next, append(extended, tok))
			}
		}
		sets = next
	}
	return sets
}

// interactionContributions computes the descriptor tokens of one
// respondent record along every requested dimension, fanning out per
// subcategory when subcategory splitting is active.
func (e Engine) interactionContributions(ind domain.Indicator, dims []Dimension, spec BreakdownSpec, rec domain.InteractionRecord, tl Timelines) []contribution {
	subSplit := false
	for _, d := range dims {
		if d.Name == DimSubcategory {
			subSplit = true
		}
	}

	base := make([][]string, 0, len(dims))
	subIdx := -1
	for i, d := range dims {
		var tokens []string
		switch d.Name {
		case DimSex:
			tokens = single(rec.Sex)
		case DimAgeRange:
			tokens = single(rec.AgeRange)
		case DimDistrict:
			tokens = single(rec.District)
		case DimCitizenship:
			tokens = single(rec.Citizenship)
		case DimKPType, DimDisabilityType:
			// every matching membership label is a separate token
			tokens = intersect(rec.Attributes, d.Values)
		case DimPregnancy:
			if tl.PregnantOn(rec.RespondentID, rec.Date) {
				tokens = []string{domain.ValPregnant}
			} else {
				tokens = []string{domain.ValNotPregnant}
			}
		case DimHIVStatus:
			if tl.PositiveOn(rec.RespondentID, rec.Date) {
				tokens = []string{domain.ValHIVPositive}
			} else {
				tokens = []string{domain.ValHIVNegative}
			}
		case DimOption:
			for _, resp := range rec.Responses {
				if resp.OptionName != "" {
					tokens = append(tokens, resp.OptionName)
				}
			}
		case DimSubcategory:
			subIdx = i
			tokens = []string{""} // placeholder, filled per fan below
		case DimOrganization:
			tokens = single(rec.OrgName)
		case DimPeriod:
			tokens = []string{periodLabel(rec.Date, spec.Split)}
		}
		base = append(base, tokens)
	}

	if subSplit && subIdx >= 0 {
		var contribs []contribution
		for _, sub := range rec.Subcategories {
			amount, ok := e.subcategoryAmount(ind, rec, sub)
			if !ok {
				continue
			}
			candidates := make([][]string, len(base))
			copy(candidates, base)
			candidates[subIdx] = []string{sub.Name}
			contribs = append(contribs, contribution{candidates: candidates, amount: amount})
		}
		return contribs
	}
	amount, ok := e.interactionAmount(ind, rec)
	if !ok {
		return nil
	}
	return []contribution{{candidates: base, amount: amount}}
}

// interactionAmount is the whole-record contribution: the numeric
// value for numeric-required indicators (subcategory components summed
// into one), a unit count otherwise.
func (e Engine) interactionAmount(ind domain.Indicator, rec domain.InteractionRecord) (int64, bool) {
	if !ind.RequireNumeric {
		return 1, true
	}
	if len(rec.Subcategories) > 0 {
		var total int64
		valid := false
		for _, sub := range rec.Subcategories {
			n, ok := e.parseNumeric(sub.Numeric, rec.ID)
			if ok {
				total += n
				valid = true
			}
		}
		return total, valid
	}
	var total int64
	valid := false
	for _, resp := range rec.Responses {
		if resp.Numeric == "" {
			continue
		}
		n, ok := e.parseNumeric(resp.Numeric, rec.ID)
		if ok {
			total += n
			valid = true
		}
	}
	return total, valid
}

func (e Engine) subcategoryAmount(ind domain.Indicator, rec domain.InteractionRecord, sub domain.SubcategoryValue) (int64, bool) {
	if !ind.RequireNumeric {
		return 1, true
	}
	return e.parseNumeric(sub.Numeric, rec.ID)
}

// parseNumeric interprets a stored response value as an integer.
// Invalid values are dropped with a diagnostic, never a failure.
func (e Engine) parseNumeric(raw string, interactionID int64) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		e.logger().Printf("dropping unparseable numeric value %q on interaction %d", raw, interactionID)
		return 0, false
	}
	return n, true
}

// countContributions reads tokens directly from the tally row's own
// demographic columns; the row is already pre-partitioned.
func countContributions(dims []Dimension, spec BreakdownSpec, rec domain.CountRecord) []contribution {
	candidates := make([][]string, 0, len(dims))
	for _, d := range dims {
		var tokens []string
		switch d.Name {
		case DimSex:
			tokens = single(rec.Sex)
		case DimAgeRange:
			tokens = single(rec.AgeRange)
		case DimCitizenship:
			tokens = single(rec.Citizenship)
		case DimHIVStatus:
			tokens = single(rec.HIVStatus)
		case DimPregnancy:
			tokens = single(rec.Pregnancy)
		case DimOrganization:
			tokens = single(rec.OrgName)
		case DimPeriod:
			tokens = []string{periodLabel(rec.Date, spec.Split)}
		}
		candidates = append(candidates, tokens)
	}
	return []contribution{{candidates: candidates, amount: rec.Amount}}
}

// eventContributions: one unit per event, or the number of attached
// organizations for the organization-count category.
func eventContributions(ind domain.Indicator, dims []Dimension, spec BreakdownSpec, rec domain.EventRecord) []contribution {
	amount := int64(1)
	if ind.Category == domain.CategoryEventOrgCount {
		amount = rec.OrgCount
	}
	candidates := make([][]string, 0, len(dims))
	for _, d := range dims {
		var tokens []string
		switch d.Name {
		case DimOrganization:
			tokens = single(rec.OrgName)
		case DimPeriod:
			tokens = []string{periodLabel(rec.Date, spec.Split)}
		}
		candidates = append(candidates, tokens)
	}
	return []contribution{{candidates: candidates, amount: amount}}
}

// postContributions: engagement totals summed, or one fan per named
// metric when metric splitting is requested.
func postContributions(dims []Dimension, spec BreakdownSpec, rec domain.PostRecord) []contribution {
	metricIdx := -1
	candidates := make([][]string, 0, len(dims))
	for i, d := range dims {
		var tokens []string
		switch d.Name {
		case DimPlatform:
			tokens = single(rec.Platform)
		case DimOrganization:
			tokens = single(rec.OrgName)
		case DimPeriod:
			tokens = []string{periodLabel(rec.Date, spec.Split)}
		case DimMetric:
			metricIdx = i
			tokens = []string{""}
		}
		candidates = append(candidates, tokens)
	}
	if metricIdx < 0 {
		return []contribution{{candidates: candidates, amount: rec.Likes + rec.Views + rec.Comments + rec.Reach}}
	}
	values := map[string]int64{
		"comments": rec.Comments,
		"views":    rec.Views,
		"likes":    rec.Likes,
		"reach":    rec.Reach,
	}
	var contribs []contribution
	for _, metric := range metricNames {
		fan := make([][]string, len(candidates))
		copy(fan, candidates)
		fan[metricIdx] = []string{metric}
		contribs = append(contribs, contribution{candidates: fan, amount: values[metric]})
	}
	return contribs
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func intersect(have, valid []string) []string {
	var out []string
	for _, v := range valid {
		for _, h := range have {
			if h == v {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
