// Package fixture serves offline replicas of the demo pages exercised by the
// form scenarios.
package fixture

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// RouteRadio serves the checkbox and radio-button page.
	RouteRadio = "/test/radio.html"
	// RouteDatePicker serves the single date-picker page.
	RouteDatePicker = "/datepicker/"
	// RouteDateRange serves the date-range picker page.
	RouteDateRange = "/datepicker/date-range"
	// RouteDatePickerFrame is the document embedded by RouteDatePicker.
	RouteDatePickerFrame = "/resources/demos/datepicker/default.html"
	// RouteDateRangeFrame is the document embedded by RouteDateRange.
	RouteDateRangeFrame = "/resources/demos/datepicker/date-range.html"
	// RouteHealth reports liveness.
	RouteHealth = "/healthz"

	htmlContentType = "text/html; charset=utf-8"

	radioTemplateName      = "radio.tmpl"
	datePickerTemplateName = "datepicker.tmpl"
	calendarTemplateName   = "calendar.tmpl"

	radioPageTitle      = "Radio Button & Check Box Demo"
	datePickerPageTitle = "Datepicker"
	dateRangePageTitle  = "Datepicker - Select a Date Range"

	checkboxGroupName = "vfb-6[]"
	radioGroupName    = "vfb-7"

	healthStatusOK = "ok"

	logEventRender = "fixture_render_failed"
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodOptions}
	corsAllowOrigins   = []string{"*"}
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type formControl struct {
	ID    string
	Name  string
	Value string
	Label string
}

type radioPage struct {
	Title      string
	Checkboxes []formControl
	Radios     []formControl
}

type datePickerPage struct {
	Title       string
	FrameSource string
}

type dateInput struct {
	ID    string
	Label string
}

type calendarPage struct {
	Title  string
	Inputs []dateInput
}

var (
	radioPageData = radioPage{
		Title: radioPageTitle,
		Checkboxes: []formControl{
			{ID: "vfb-6-0", Name: checkboxGroupName, Value: "checkbox1", Label: "Checkbox1"},
			{ID: "vfb-6-1", Name: checkboxGroupName, Value: "checkbox2", Label: "Checkbox2"},
			{ID: "vfb-6-2", Name: checkboxGroupName, Value: "checkbox3", Label: "Checkbox3"},
		},
		Radios: []formControl{
			{ID: "vfb-7-1", Name: radioGroupName, Value: "Option 1", Label: "Option1"},
			{ID: "vfb-7-2", Name: radioGroupName, Value: "Option 2", Label: "Option2"},
			{ID: "vfb-7-3", Name: radioGroupName, Value: "Option 3", Label: "Option3"},
		},
	}
	datePickerPageData = datePickerPage{Title: datePickerPageTitle, FrameSource: RouteDatePickerFrame}
	dateRangePageData  = datePickerPage{Title: dateRangePageTitle, FrameSource: RouteDateRangeFrame}

	datePickerFrameData = calendarPage{
		Title:  datePickerPageTitle,
		Inputs: []dateInput{{ID: "datepicker", Label: "Date:"}},
	}

	dateRangeFrameData = calendarPage{
		Title: dateRangePageTitle,
		Inputs: []dateInput{
			{ID: "from", Label: "From"},
			{ID: "to", Label: "to"},
		},
	}
)

// RequestLogger logs one structured line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

// NewRouter builds the gin engine serving every replica page.
func NewRouter(logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsAllowOrigins,
		AllowMethods:     corsAllowedMethods,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET(RouteRadio, renderPage(logger, radioTemplateName, radioPageData))
	router.GET(RouteDatePicker, renderPage(logger, datePickerTemplateName, datePickerPageData))
	router.GET(RouteDateRange, renderPage(logger, datePickerTemplateName, dateRangePageData))
	router.GET(RouteDatePickerFrame, renderPage(logger, calendarTemplateName, datePickerFrameData))
	router.GET(RouteDateRangeFrame, renderPage(logger, calendarTemplateName, dateRangeFrameData))
	router.GET(RouteHealth, func(context *gin.Context) {
		context.JSON(http.StatusOK, gin.H{"status": healthStatusOK})
	})

	return router
}

func renderPage(logger *zap.Logger, templateName string, data any) gin.HandlerFunc {
	return func(context *gin.Context) {
		var rendered bytes.Buffer
		if executeErr := pageTemplates.ExecuteTemplate(&rendered, templateName, data); executeErr != nil {
			logger.Error(logEventRender, zap.String("template", templateName), zap.Error(executeErr))
			context.Status(http.StatusInternalServerError)
			return
		}
		context.Data(http.StatusOK, htmlContentType, rendered.Bytes())
	}
}
