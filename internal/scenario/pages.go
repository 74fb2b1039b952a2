package scenario

import (
	"strings"

	"github.com/MarkoPoloResearchLab/formlab/internal/fixture"
)

const (
	// DefaultRadioURL is the public checkbox and radio-button demo page.
	DefaultRadioURL = "http://demo.guru99.com/test/radio.html"
	// DefaultDatePickerURL is the public single date-picker demo page.
	DefaultDatePickerURL = "https://jqueryui.com/datepicker/"
	// DefaultDateRangeURL is the public date-range demo page.
	DefaultDateRangeURL = "https://jqueryui.com/datepicker/#date-range"
)

// Pages holds the URLs the scenarios navigate to.
type Pages struct {
	RadioURL      string
	DatePickerURL string
	DateRangeURL  string
}

// DefaultPages points at the public demo pages.
func DefaultPages() Pages {
	return Pages{
		RadioURL:      DefaultRadioURL,
		DatePickerURL: DefaultDatePickerURL,
		DateRangeURL:  DefaultDateRangeURL,
	}
}

// LocalPages points at a fixture server rooted at baseURL.
func LocalPages(baseURL string) Pages {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return Pages{
		RadioURL:      trimmedBaseURL + fixture.RouteRadio,
		DatePickerURL: trimmedBaseURL + fixture.RouteDatePicker,
		DateRangeURL:  trimmedBaseURL + fixture.RouteDateRange,
	}
}
