package tui

// Messages delivered to the model via tea.Program.Send.

// AnswerMsg carries the outcome of one submitted user turn.
type AnswerMsg struct {
	Text string
	Err  error
}

// ToolCallMsg is sent when the loop invokes a tool.
type ToolCallMsg struct {
	Round     int
	Name      string
	Arguments string
}

// ToolResultMsg is the result of a tool call.
type ToolResultMsg struct {
	Name    string
	Result  string
	IsError bool
}

// ToolDroppedMsg is sent when a tool request arrives after the round
// budget is spent.
type ToolDroppedMsg struct {
	Name string
}

// UsageMsg reports token usage of one completion.
type UsageMsg struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// LogMsg is a raw log line.
type LogMsg struct {
	Text    string
	IsError bool
}

// TickMsg refreshes the elapsed time in the status bar.
type TickMsg struct{}
