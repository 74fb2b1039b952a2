package scenario

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// SuiteCheckbox runs the checkbox scenario.
	SuiteCheckbox = "checkbox"
	// SuiteRadio runs the radio-button scenario.
	SuiteRadio = "radio"
	// SuiteDatePicker runs the single-date and date-range scenarios on one session.
	SuiteDatePicker = "datepicker"
)

// Suite is a group of scenarios sharing one browser session.
type Suite struct {
	Name      string
	Scenarios []Scenario
}

// Catalog returns the built-in suites in their canonical order.
func Catalog(pages Pages) []Suite {
	return []Suite{
		{Name: SuiteCheckbox, Scenarios: []Scenario{CheckboxScenario(pages)}},
		{Name: SuiteRadio, Scenarios: []Scenario{RadioScenario(pages)}},
		{Name: SuiteDatePicker, Scenarios: []Scenario{SingleDateScenario(pages), DateRangeScenario(pages)}},
	}
}

// SuiteNames lists the names of the suites in order.
func SuiteNames(suites []Suite) []string {
	names := make([]string, 0, len(suites))
	for _, suite := range suites {
		names = append(names, suite.Name)
	}
	return names
}

// Select picks suites by name in the requested order. No names selects the
// whole catalog; repeated names are run once.
func Select(catalog []Suite, names []string) ([]Suite, error) {
	if len(names) == 0 {
		return slices.Clone(catalog), nil
	}

	selected := make([]Suite, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalizedName := strings.ToLower(strings.TrimSpace(name))
		if _, duplicate := seen[normalizedName]; duplicate {
			continue
		}
		index := slices.IndexFunc(catalog, func(suite Suite) bool {
			return suite.Name == normalizedName
		})
		if index < 0 {
			return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownSuite, name, strings.Join(SuiteNames(catalog), ", "))
		}
		seen[normalizedName] = struct{}{}
		selected = append(selected, catalog[index])
	}
	return selected, nil
}
