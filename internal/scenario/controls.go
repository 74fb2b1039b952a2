package scenario

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

const (
	// ScenarioCheckbox selects the second and third of three checkboxes.
	ScenarioCheckbox = "checkbox_selection"
	// ScenarioRadio selects two options of one radio group in turn.
	ScenarioRadio = "radio_selection"

	radioGroupName            = "vfb-7"
	radioFirstOptionID        = "vfb-7-1"
	radioSecondOptionID       = "vfb-7-3"
	observationRadioGroupSize = "radio_group_size"
)

var checkboxIDs = []string{"vfb-6-0", "vfb-6-1", "vfb-6-2"}

// CheckboxScenario clicks the second and third checkbox and expects exactly
// those two to be checked.
func CheckboxScenario(pages Pages) Scenario {
	return Scenario{
		Name: ScenarioCheckbox,
		Run: func(ctx context.Context, harness *Harness) error {
			if navigateErr := harness.Session.Navigate(ctx, pages.RadioURL); navigateErr != nil {
				return fmt.Errorf("navigate %s: %w", pages.RadioURL, navigateErr)
			}

			checkboxes := make([]browser.Element, 0, len(checkboxIDs))
			for _, checkboxID := range checkboxIDs {
				checkbox, waitErr := harness.waitForElement(ctx, browser.ByID(checkboxID))
				if waitErr != nil {
					return waitErr
				}
				checkboxes = append(checkboxes, checkbox)
			}

			for _, checkbox := range checkboxes[1:] {
				if clickErr := checkbox.Click(ctx); clickErr != nil {
					return fmt.Errorf("click checkbox: %w", clickErr)
				}
			}
			for _, checkbox := range checkboxes[1:] {
				if settleErr := harness.settleSelected(ctx, checkbox, true); settleErr != nil {
					return settleErr
				}
			}

			expectedStates := []bool{false, true, true}
			for index, checkbox := range checkboxes {
				if assertErr := expectSelected(ctx, checkbox, "checkbox "+checkboxIDs[index], expectedStates[index]); assertErr != nil {
					return assertErr
				}
			}
			return nil
		},
	}
}

// RadioScenario selects one option, then another of the same group, and
// expects only the latter to remain selected.
func RadioScenario(pages Pages) Scenario {
	return Scenario{
		Name: ScenarioRadio,
		Run: func(ctx context.Context, harness *Harness) error {
			if navigateErr := harness.Session.Navigate(ctx, pages.RadioURL); navigateErr != nil {
				return fmt.Errorf("navigate %s: %w", pages.RadioURL, navigateErr)
			}

			firstOption, firstErr := harness.waitForElement(ctx, browser.ByID(radioFirstOptionID))
			if firstErr != nil {
				return firstErr
			}
			secondOption, secondErr := harness.waitForElement(ctx, browser.ByID(radioSecondOptionID))
			if secondErr != nil {
				return secondErr
			}

			if clickErr := firstOption.Click(ctx); clickErr != nil {
				return fmt.Errorf("click radio %s: %w", radioFirstOptionID, clickErr)
			}
			if settleErr := harness.settleSelected(ctx, firstOption, true); settleErr != nil {
				return settleErr
			}
			if assertErr := expectSelected(ctx, firstOption, "radio "+radioFirstOptionID, true); assertErr != nil {
				return assertErr
			}

			if clickErr := secondOption.Click(ctx); clickErr != nil {
				return fmt.Errorf("click radio %s: %w", radioSecondOptionID, clickErr)
			}
			if settleErr := harness.settleSelected(ctx, secondOption, true); settleErr != nil {
				return settleErr
			}
			if settleErr := harness.settleSelected(ctx, firstOption, false); settleErr != nil {
				return settleErr
			}
			if assertErr := expectSelected(ctx, firstOption, "radio "+radioFirstOptionID, false); assertErr != nil {
				return assertErr
			}
			if assertErr := expectSelected(ctx, secondOption, "radio "+radioSecondOptionID, true); assertErr != nil {
				return assertErr
			}

			groupMembers, groupErr := harness.Session.FindElements(ctx, browser.ByName(radioGroupName))
			if groupErr != nil {
				return fmt.Errorf("collect radio group %s: %w", radioGroupName, groupErr)
			}
			harness.Observe(observationRadioGroupSize, len(groupMembers))
			return nil
		},
	}
}
