package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/formlab/internal/browser"
)

const (
	// ScenarioSingleDate picks one day in the single date picker.
	ScenarioSingleDate = "single_date"
	// ScenarioDateRange picks a start and an end day in the range picker.
	ScenarioDateRange = "date_range"

	demoFrameClassName       = "demo-frame"
	singleDateInputID        = "datepicker"
	rangeFromInputID         = "from"
	rangeToInputID           = "to"
	calendarDayLinksXPath    = "//table[@class='ui-datepicker-calendar']//a"
	singleDateDay            = "15"
	rangeFromDay             = "20"
	rangeToDay               = "26"
	valueAttributeName       = "value"
	observationSelectedDate  = "selected_date"
	observationRangeFromDate = "range_from"
	observationRangeToDate   = "range_to"
)

// SingleDateScenario opens the calendar inside the demo frame, picks day 15
// and expects the input to carry a date afterwards.
func SingleDateScenario(pages Pages) Scenario {
	return Scenario{
		Name: ScenarioSingleDate,
		Run: func(ctx context.Context, harness *Harness) error {
			if navigateErr := harness.Session.Navigate(ctx, pages.DatePickerURL); navigateErr != nil {
				return fmt.Errorf("navigate %s: %w", pages.DatePickerURL, navigateErr)
			}
			return harness.withinFrame(ctx, browser.ByClassName(demoFrameClassName), func() error {
				dateInput, clickErr := harness.click(ctx, browser.ByID(singleDateInputID))
				if clickErr != nil {
					return clickErr
				}

				dayLinks, linksErr := browser.WaitForElements(ctx, harness.Session, browser.ByXPath(calendarDayLinksXPath), 1, harness.Wait)
				if linksErr != nil {
					return linksErr
				}
				dayLink, lookupErr := elementWithText(ctx, dayLinks, singleDateDay)
				if lookupErr != nil {
					return lookupErr
				}
				if dayClickErr := dayLink.Click(ctx); dayClickErr != nil {
					return fmt.Errorf("click day %s: %w", singleDateDay, dayClickErr)
				}

				selectedDate, settleErr := harness.settleAttribute(ctx, dateInput, valueAttributeName, isNonEmpty)
				if settleErr != nil {
					return settleErr
				}
				if strings.TrimSpace(selectedDate) == "" {
					return newAssertionError("date picker value", "a selected date", "an empty input")
				}
				harness.Observe(observationSelectedDate, selectedDate)
				return nil
			})
		},
	}
}

// DateRangeScenario picks day 20 in the start input and day 26 in the end
// input of the range demo and expects both values to carry those days.
func DateRangeScenario(pages Pages) Scenario {
	return Scenario{
		Name: ScenarioDateRange,
		Run: func(ctx context.Context, harness *Harness) error {
			if navigateErr := harness.Session.Navigate(ctx, pages.DateRangeURL); navigateErr != nil {
				return fmt.Errorf("navigate %s: %w", pages.DateRangeURL, navigateErr)
			}
			return harness.withinFrame(ctx, browser.ByClassName(demoFrameClassName), func() error {
				fromInput, fromErr := harness.pickDay(ctx, rangeFromInputID, rangeFromDay)
				if fromErr != nil {
					return fromErr
				}
				toInput, toErr := harness.pickDay(ctx, rangeToInputID, rangeToDay)
				if toErr != nil {
					return toErr
				}

				fromValue, fromSettleErr := harness.settleAttribute(ctx, fromInput, valueAttributeName, containsDay(rangeFromDay))
				if fromSettleErr != nil {
					return fromSettleErr
				}
				toValue, toSettleErr := harness.settleAttribute(ctx, toInput, valueAttributeName, containsDay(rangeToDay))
				if toSettleErr != nil {
					return toSettleErr
				}
				harness.Observe(observationRangeFromDate, fromValue)
				harness.Observe(observationRangeToDate, toValue)

				if !strings.Contains(fromValue, rangeFromDay) {
					return newAssertionError("range start value", "a date containing "+rangeFromDay, quoted(fromValue))
				}
				if !strings.Contains(toValue, rangeToDay) {
					return newAssertionError("range end value", "a date containing "+rangeToDay, quoted(toValue))
				}
				return nil
			})
		},
	}
}

func (harness *Harness) pickDay(ctx context.Context, inputID string, day string) (browser.Element, error) {
	input, inputErr := harness.click(ctx, browser.ByID(inputID))
	if inputErr != nil {
		return nil, inputErr
	}
	if _, dayErr := harness.click(ctx, browser.ByLinkText(day)); dayErr != nil {
		return nil, dayErr
	}
	return input, nil
}

func isNonEmpty(value string) bool {
	return strings.TrimSpace(value) != ""
}

func containsDay(day string) func(string) bool {
	return func(value string) bool {
		return strings.Contains(value, day)
	}
}

func quoted(value string) string {
	return fmt.Sprintf("%q", value)
}
