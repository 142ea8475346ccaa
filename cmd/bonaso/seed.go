package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bonaso/internal/domain"
	"bonaso/internal/repo"
)

func seedCmd() *cobra.Command {
	seed := &cobra.Command{Use: "seed", Short: "Load sample data"}
	seed.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Insert a small demo dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return seedDemo(ctx, r)
			})
		},
	})
	return seed
}

// seedDemo builds one project with a two-level org hierarchy, a
// handful of respondents, and enough records to exercise every
// indicator category.
func seedDemo(ctx context.Context, r repo.Repo) error {
	parent, err := r.InsertOrganization(ctx, "Health Alliance", nil)
	if err != nil {
		return err
	}
	child, err := r.InsertOrganization(ctx, "Gaborone Outreach", &parent)
	if err != nil {
		return err
	}
	project, err := r.InsertProject(ctx, "HIV Prevention 2025", nil, "2025-01-01", "2025-12-31")
	if err != nil {
		return err
	}
	if err := r.LinkProjectOrg(ctx, project, parent, nil); err != nil {
		return err
	}
	if err := r.LinkProjectOrg(ctx, project, child, &parent); err != nil {
		return err
	}

	tested, err := r.InsertIndicator(ctx, domain.Indicator{
		Code: "HIV-TEST", Name: "People tested for HIV", Type: "multi_select",
		Category: domain.CategoryRespondent, AllowAggregate: true,
		Options: []domain.Option{{Name: "First test"}, {Name: "Repeat test"}},
	})
	if err != nil {
		return err
	}
	condoms, err := r.InsertIndicator(ctx, domain.Indicator{
		Code: "CONDOM-DIST", Name: "Condoms distributed", Type: "integer",
		Category: domain.CategoryRespondent, RequireNumeric: true, AllowAggregate: true,
		Subcategories: []string{"Male condoms", "Female condoms"},
	})
	if err != nil {
		return err
	}
	eventsHeld, err := r.InsertIndicator(ctx, domain.Indicator{
		Code: "EVENTS", Name: "Community events held", Type: "integer",
		Category: domain.CategoryEventCount, AllowAggregate: true,
	})
	if err != nil {
		return err
	}
	engagement, err := r.InsertIndicator(ctx, domain.Indicator{
		Code: "SOCIAL", Name: "Social media engagement", Type: "integer",
		Category: domain.CategorySocial, AllowAggregate: true,
	})
	if err != nil {
		return err
	}

	testTask, err := r.InsertTask(ctx, tested, project, parent)
	if err != nil {
		return err
	}
	condomTask, err := r.InsertTask(ctx, condoms, project, child)
	if err != nil {
		return err
	}
	eventTask, err := r.InsertTask(ctx, eventsHeld, project, parent)
	if err != nil {
		return err
	}
	socialTask, err := r.InsertTask(ctx, engagement, project, parent)
	if err != nil {
		return err
	}

	ind, err := r.GetIndicator(ctx, tested)
	if err != nil {
		return err
	}

	respondents := []repo.RespondentSeed{
		{UUID: "d-0001", Sex: "Male", District: "South_East", Citizenship: domain.ValCitizen, AgeRange: "25_34", Attributes: []string{"MSM"}},
		{UUID: "d-0002", Sex: "Female", District: "South_East", Citizenship: domain.ValCitizen, AgeRange: "18_24", Attributes: []string{"FSW"}},
		{UUID: "d-0003", Sex: "Female", District: "North_East", Citizenship: domain.ValNonCitizen, AgeRange: "25_34"},
	}
	var ids []int64
	for _, seed := range respondents {
		id, err := r.InsertRespondent(ctx, seed)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := r.InsertPregnancy(ctx, ids[1], date(2025, 2, 1), nil); err != nil {
		return err
	}
	if err := r.InsertHIVStatus(ctx, ids[0], date(2025, 3, 15)); err != nil {
		return err
	}

	for i, rid := range ids {
		_, err := r.InsertInteraction(ctx, repo.InteractionSeed{
			RespondentID: rid, TaskID: testTask, Date: date(2025, 1+time.Month(i), 10),
			Responses: []domain.ResponseValue{{OptionID: ind.Options[0].ID}},
		})
		if err != nil {
			return err
		}
	}
	// second visit for the first respondent, repeat test
	if _, err := r.InsertInteraction(ctx, repo.InteractionSeed{
		RespondentID: ids[0], TaskID: testTask, Date: date(2025, 6, 1),
		Responses: []domain.ResponseValue{{OptionID: ind.Options[1].ID}},
	}); err != nil {
		return err
	}
	if _, err := r.InsertInteraction(ctx, repo.InteractionSeed{
		RespondentID: ids[1], TaskID: condomTask, Date: date(2025, 4, 20),
		Subcategories: []domain.SubcategoryValue{
			{Name: "Male condoms", Numeric: "40"},
			{Name: "Female condoms", Numeric: "25"},
		},
	}); err != nil {
		return err
	}

	eventID, err := r.InsertEvent(ctx, "World AIDS Day outreach", parent, project,
		date(2025, 12, 1), []int64{eventTask}, []int64{parent, child})
	if err != nil {
		return err
	}
	if _, err := r.InsertCount(ctx, domain.CountRecord{
		EventID: eventID, TaskID: testTask, Amount: 120,
		Sex: "Female", AgeRange: "18_24", Citizenship: domain.ValCitizen,
	}); err != nil {
		return err
	}
	if _, err := r.InsertPost(ctx, domain.PostRecord{
		TaskID: socialTask, Platform: "Facebook", Date: date(2025, 11, 28),
		Likes: 340, Views: 5200, Comments: 45, Reach: 8100,
	}, parent); err != nil {
		return err
	}

	amount := int64(500)
	if _, err := r.InsertTarget(ctx, domain.Target{
		TaskID: testTask, Start: date(2025, 1, 1), End: date(2025, 6, 30), Amount: &amount,
	}); err != nil {
		return err
	}
	pct := 60.0
	if _, err := r.InsertTarget(ctx, domain.Target{
		TaskID: condomTask, Start: date(2025, 1, 1), End: date(2025, 6, 30),
		RelatedTaskID: &testTask, Percentage: &pct,
	}); err != nil {
		return err
	}

	fmt.Printf("seeded project %d (indicators %d %d %d %d)\n", project, tested, condoms, eventsHeld, engagement)
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
