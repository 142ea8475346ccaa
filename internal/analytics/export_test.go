package analytics

import (
	"reflect"
	"testing"

	"bonaso/internal/domain"
)

func sampleResult() Result {
	dims := []Dimension{
		{Name: DimSex, Values: []string{"Male", "Female"}},
		{Name: DimOption, Values: []string{"Option 1", "Option 2"}},
	}
	index := BuildBucketIndex(dims)
	index.Add([]string{"Male", "Option 1"}, 3)
	index.Add([]string{"Option 2", "Female"}, 2)
	return Result{Dimensions: dims, Buckets: index.Buckets}
}

func TestPivotFillsZeroCells(t *testing.T) {
	table, err := Pivot(sampleResult(), DimOption)
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	if !reflect.DeepEqual(table.Columns, []string{"Option 1", "Option 2"}) {
		t.Fatalf("columns = %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	byLabel := map[string]PivotRow{}
	for _, row := range table.Rows {
		byLabel[row.Labels[0]] = row
	}
	male := byLabel["Male"]
	if male.Cells[0] != 3 || male.Cells[1] != 0 || male.Total != 3 {
		t.Fatalf("male row = %+v", male)
	}
	female := byLabel["Female"]
	if female.Cells[0] != 0 || female.Cells[1] != 2 || female.Total != 2 {
		t.Fatalf("female row = %+v", female)
	}
}

func TestPivotWithoutColumnIsSingleCell(t *testing.T) {
	table, err := Pivot(sampleResult(), "")
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0].Total != 5 {
		t.Fatalf("table = %+v, want single total 5", table)
	}
}

func TestPivotRejectsUnknownDimension(t *testing.T) {
	if _, err := Pivot(sampleResult(), "platform"); err == nil {
		t.Fatal("expected error for unknown pivot dimension")
	}
}

func TestBucketMatchIgnoresTokenOrder(t *testing.T) {
	dims := []Dimension{
		{Name: DimSex, Values: []string{"Male", "Female"}},
		{Name: DimAgeRange, Values: []string{"18_24", "25_34"}},
	}
	index := BuildBucketIndex(dims)
	if len(index.Buckets) != 4 {
		t.Fatalf("buckets = %d, want 4", len(index.Buckets))
	}
	if !index.Add([]string{"25_34", "Male"}, 1) {
		t.Fatal("reversed token order should match")
	}
	if index.Add([]string{"Male", "Unknown"}, 1) {
		t.Fatal("out-of-domain token should not match")
	}
	pos, ok := index.Match([]string{"Male", "25_34"})
	if !ok || index.Buckets[pos].Count != 1 {
		t.Fatalf("match = %v %v", pos, ok)
	}
}

func TestTimelineEdges(t *testing.T) {
	ended := day(2025, 6, 30)
	tl := NewTimelines(
		[]domain.PregnancyInterval{
			{RespondentID: 1, Began: day(2025, 1, 1), Ended: &ended},
			{RespondentID: 2, Began: day(2025, 3, 1)},
		},
		[]domain.HIVStatusFact{{RespondentID: 1, PositiveSince: day(2025, 4, 15)}},
	)

	if !tl.PregnantOn(1, day(2025, 1, 1)) || !tl.PregnantOn(1, day(2025, 6, 30)) {
		t.Fatal("interval bounds are inclusive")
	}
	if tl.PregnantOn(1, day(2025, 7, 1)) {
		t.Fatal("ended pregnancy should not match after the end")
	}
	if !tl.PregnantOn(2, day(2026, 1, 1)) {
		t.Fatal("open-ended pregnancy covers any later date")
	}
	if tl.PregnantOn(3, day(2025, 1, 1)) {
		t.Fatal("unknown respondent is never pregnant")
	}

	if tl.PositiveOn(1, day(2025, 4, 14)) {
		t.Fatal("not positive before the recorded date")
	}
	if !tl.PositiveOn(1, day(2025, 4, 15)) || !tl.PositiveOn(1, day(2030, 1, 1)) {
		t.Fatal("positive status is permanent from its date")
	}
}

func TestPeriodLabels(t *testing.T) {
	if got := periodLabel(day(2025, 2, 14), SplitMonth); got != "Feb 2025" {
		t.Fatalf("month label = %q", got)
	}
	if got := periodLabel(day(2025, 11, 2), SplitQuarter); got != "Q4 2025" {
		t.Fatalf("quarter label = %q", got)
	}
}

func TestPeriodsBetween(t *testing.T) {
	spans := periodsBetween(day(2025, 1, 15), day(2025, 3, 2), SplitMonth)
	if len(spans) != 3 || spans[0].Label != "Jan 2025" || spans[2].Label != "Mar 2025" {
		t.Fatalf("spans = %v", spans)
	}
	quarters := periodsBetween(day(2025, 2, 1), day(2025, 8, 1), SplitQuarter)
	if len(quarters) != 3 || quarters[0].Label != "Q1 2025" || quarters[2].Label != "Q3 2025" {
		t.Fatalf("quarters = %v", quarters)
	}
	if spans := periodsBetween(day(2025, 5, 1), day(2025, 4, 1), SplitMonth); spans != nil {
		t.Fatalf("inverted window = %v, want nil", spans)
	}
}
