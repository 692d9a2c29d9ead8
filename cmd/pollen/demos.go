package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/pollen/internal/chat"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/output"
	"github.com/HexSleeves/pollen/internal/schema"
	"github.com/HexSleeves/pollen/internal/tools"
)

const (
	weatherSystem = "You are a helpful weather assistant."
	toolsSystem   = "You are a helpful assistant with tools."
)

// WeatherInfo is the reply shape of the structured command.
type WeatherInfo struct {
	Location  string  `json:"location"`
	TempC     float64 `json:"temp_c"`
	Condition string  `json:"condition"`
}

var weatherInfoSchema = strict(schema.New("WeatherInfo",
	schema.Req("location", schema.String, "City name"),
	schema.Req("temp_c", schema.Number, "Temperature in Celsius"),
	schema.Req("condition", schema.String, "Weather condition"),
))

// WeatherSummary is the reply shape of the tool-structured command.
type WeatherSummary struct {
	Location string `json:"location"`
	Summary  string `json:"summary"`
}

var weatherSummarySchema = strict(schema.New("WeatherSummary",
	schema.Req("location", schema.String, "City name"),
	schema.Req("summary", schema.String, "Brief weather description"),
))

func strict(s *schema.Schema) *schema.Schema {
	s.Strict = true
	return s
}

// resolve runs one non-streamed turn and prints the answer.
func resolve(ctx context.Context, cmd *cli.Command, title, system, prompt string, registry func(*env) *tools.Registry) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	var reg *tools.Registry
	if registry != nil {
		reg = registry(e)
	}
	s, err := e.session(reg)
	if err != nil {
		return e.finish("", nil, err)
	}

	e.banner(title, prompt)
	conv := chat.NewConversation(system)
	if err := conv.AddUser(prompt); err != nil {
		return e.finish("", nil, err)
	}

	sp := e.printer.Spinner("Waiting for the model...")
	answer, err := s.Resolve(ctx, conv)
	if err != nil {
		sp.Fail("request failed")
		return e.finish("", nil, err)
	}
	sp.Stop("done")
	e.printer.Answer(answer.Content)
	return e.finish(answer.Content, nil, nil)
}

func weatherTools(e *env) *tools.Registry {
	return tools.NewRegistry(tools.NewWeatherTool(e.logger))
}

func allTools(e *env) *tools.Registry {
	return tools.Builtins(e.logger)
}

func cmdAsk(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "Explain how AI works in simple terms.")
	return resolve(ctx, cmd, "Ask", chat.DefaultSystemPrompt, prompt, nil)
}

func cmdWeather(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "What's the weather like in Rawalpindi today?")
	return resolve(ctx, cmd, "Weather", weatherSystem, prompt, weatherTools)
}

func cmdMultiTool(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "What is the weather in Lahore and what time is it in Tokyo?")
	return resolve(ctx, cmd, "Multi-tool", toolsSystem, prompt, allTools)
}

// stream prints chunks as they arrive across every round of the turn.
func stream(ctx context.Context, cmd *cli.Command, title, system, prompt, effort string, registry func(*env) *tools.Registry) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	var reg *tools.Registry
	if registry != nil {
		reg = registry(e)
	}
	s, err := e.session(reg)
	if err != nil {
		return e.finish("", nil, err)
	}
	if effort != "" {
		s.Options.ReasoningEffort = effort
	}

	e.banner(title, prompt)
	conv := chat.NewConversation(system)
	if err := conv.AddUser(prompt); err != nil {
		return e.finish("", nil, err)
	}

	turn, err := s.ResolveStream(ctx, conv)
	if err != nil {
		return e.finish("", nil, err)
	}
	for chunk := range turn.Chunks() {
		e.printer.Chunk(chunk)
	}
	answer, err := turn.Answer()
	e.printer.Chunk("\n")
	if err != nil {
		return e.finish("", nil, err)
	}
	e.printer.Success("Streaming complete.")
	return e.finish(answer.Content, nil, nil)
}

func cmdStream(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "Tell me a story about a clever cat.")
	return stream(ctx, cmd, "Stream", "", prompt, cmd.String("reasoning-effort"), nil)
}

func cmdStreamTools(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "What’s the weather in Lahore?")
	return stream(ctx, cmd, "Stream + tools", weatherSystem, prompt, "", weatherTools)
}

// structured requests sch, decodes the validated reply into out and
// prints the fields returned by show.
func structured(ctx context.Context, cmd *cli.Command, title, system, prompt string, sch *schema.Schema, out interface{}, registry func(*env) *tools.Registry, show func() [][]string) error {
	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	var reg *tools.Registry
	if registry != nil {
		reg = registry(e)
	}
	s, err := e.session(reg)
	if err != nil {
		return e.finish("", nil, err)
	}

	e.banner(title, prompt)
	conv := chat.NewConversation(system)
	if err := conv.AddUser(prompt); err != nil {
		return e.finish("", nil, err)
	}

	res, err := s.ResolveStructured(ctx, conv, sch)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			e.printer.Section("Raw model output")
			e.printer.Println(verr.Raw)
			e.printer.Error("Validation failed:")
			for _, issue := range verr.Issues {
				e.printer.Printf("  - %s\n", issue)
			}
		}
		return e.finish("", nil, err)
	}
	e.printer.Section("Raw model output")
	e.printer.Println(res.Message.Content)
	if err := res.Decode(sch, out); err != nil {
		return e.finish("", nil, err)
	}

	fields := show()
	e.printer.Success("Parsed %s", sch.Name)
	e.printer.KeyValue(fields)
	if e.mode == output.ModeQuiet {
		for _, kv := range fields {
			fmt.Fprintf(e.stdout, "%s: %s\n", kv[0], kv[1])
		}
	}
	return e.finish(res.Message.Content, res.Data, nil)
}

func cmdStructured(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "Give me the current weather in Tokyo in structured format.")
	system := "You respond only with JSON matching the WeatherInfo schema."
	var info WeatherInfo
	return structured(ctx, cmd, "Structured", system, prompt, weatherInfoSchema, &info, nil, func() [][]string {
		return [][]string{
			{"📍 Location", info.Location},
			{"🌡️ Temp", fmt.Sprintf("%g°C", info.TempC)},
			{"⛅ Condition", info.Condition},
		}
	})
}

func cmdToolStructured(ctx context.Context, cmd *cli.Command) error {
	prompt := promptArg(cmd, "What is the weather in Lahore?")
	var sum WeatherSummary
	return structured(ctx, cmd, "Tool + structured", chat.DefaultSystemPrompt, prompt, weatherSummarySchema, &sum, weatherTools, func() [][]string {
		return [][]string{
			{"📍 Location", sum.Location},
			{"📝 Summary", sum.Summary},
		}
	})
}
