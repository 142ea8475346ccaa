package analytics

import (
	"time"

	"bonaso/internal/domain"
)

// Timelines holds per-respondent interval facts loaded once per
// request. Derived states are always evaluated as of the record's own
// date, never the current date.
type Timelines struct {
	pregnancies map[int64][]domain.PregnancyInterval
	positives   map[int64][]domain.HIVStatusFact
}

func NewTimelines(pregnancies []domain.PregnancyInterval, facts []domain.HIVStatusFact) Timelines {
	t := Timelines{
		pregnancies: map[int64][]domain.PregnancyInterval{},
		positives:   map[int64][]domain.HIVStatusFact{},
	}
	for _, p := range pregnancies {
		t.pregnancies[p.RespondentID] = append(t.pregnancies[p.RespondentID], p)
	}
	for _, f := range facts {
		t.positives[f.RespondentID] = append(t.positives[f.RespondentID], f)
	}
	return t
}

// PregnantOn reports whether some interval contains the date. An
// open-ended interval is treated as ongoing through any later date.
func (t Timelines) PregnantOn(respondentID int64, date time.Time) bool {
	for _, p := range t.pregnancies[respondentID] {
		if date.Before(p.Began) {
			continue
		}
		if p.Ended == nil || !date.After(*p.Ended) {
			return true
		}
	}
	return false
}

// PositiveOn is monotonic: once positive, positive for all later dates.
func (t Timelines) PositiveOn(respondentID int64, date time.Time) bool {
	for _, f := range t.positives[respondentID] {
		if !date.Before(f.PositiveSince) {
			return true
		}
	}
	return false
}
