package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/HexSleeves/pollen/internal/schema"
)

// Tool names.
const (
	WeatherTool = "get_current_weather"
	TimeTool    = "get_current_time"
)

// Weather is the result of get_current_weather.
type Weather struct {
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
}

// CityTime is the result of get_current_time.
type CityTime struct {
	City        string `json:"city"`
	CurrentTime string `json:"current_time"`
}

var cityZones = map[string]string{
	"lahore":   "Asia/Karachi",
	"new york": "America/New_York",
	"tokyo":    "Asia/Tokyo",
	"london":   "Europe/London",
}

// NewWeatherTool returns the weather tool. The reading is fixed; there is
// no real weather backend.
func NewWeatherTool(logger *log.Logger) Tool {
	return Tool{
		Name:        WeatherTool,
		Description: "Get the current weather in a given location",
		Parameters: schema.New(WeatherTool,
			schema.Req("location", schema.String, "The city name, e.g. San Francisco"),
		),
		Handler: Typed(func(_ context.Context, args struct {
			Location string `json:"location"`
		}) (interface{}, error) {
			logf(logger, "🔧 Tool: %s(location=%q)", WeatherTool, args.Location)
			w := Weather{Location: args.Location, Temperature: "26°C", Condition: "Sunny"}
			logf(logger, "✓ Result: %+v", w)
			return w, nil
		}),
	}
}

// NewTimeTool returns the city clock tool. now is injectable for tests;
// nil means time.Now.
func NewTimeTool(logger *log.Logger, now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        TimeTool,
		Description: "Get the current local time in a given city",
		Parameters: schema.New(TimeTool,
			schema.Req("city", schema.String, "The city name, e.g. Tokyo"),
		),
		Handler: Typed(func(_ context.Context, args struct {
			City string `json:"city"`
		}) (interface{}, error) {
			logf(logger, "🔧 Tool: %s(city=%q)", TimeTool, args.City)
			loc, err := ZoneFor(args.City)
			if err != nil {
				return nil, err
			}
			ct := CityTime{City: args.City, CurrentTime: now().In(loc).Format("03:04 PM")}
			logf(logger, "✓ Result: %+v", ct)
			return ct, nil
		}),
	}
}

// ZoneFor resolves a city to its time zone. Unknown cities use UTC.
func ZoneFor(city string) (*time.Location, error) {
	name, ok := cityZones[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %s: %w", name, err)
	}
	return loc, nil
}

// Builtins returns a registry with every built-in tool.
func Builtins(logger *log.Logger) *Registry {
	return NewRegistry(NewWeatherTool(logger), NewTimeTool(logger, nil))
}

func logf(logger *log.Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
