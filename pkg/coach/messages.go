package coach

import "github.com/teslashibe/go-focuscoach/pkg/attention"

// Messages are the coach lines shown on the dashboard. "{name}" is
// replaced with the user name.
type Messages struct {
	Welcome     string `json:"welcome"`
	Starting    string `json:"starting"`
	Halfway     string `json:"halfway"`
	FiveMinutes string `json:"five_minutes"`
	Complete    string `json:"complete"`
	Idle        string `json:"idle"`
	Distracted  string `json:"distracted"`
	Refocused   string `json:"refocused"`
	Paused      string `json:"paused"`
}

// DefaultMessages returns the standard coach lines.
func DefaultMessages() Messages {
	return Messages{
		Welcome:     "Welcome back, {name}! Ready to boost your productivity?",
		Starting:    "Focus session started. Don't touch your phone, {name}.",
		Halfway:     "You're halfway there, {name}. Keep going!",
		FiveMinutes: "Only 5 minutes left, stay strong, {name}!",
		Complete:    "Great job, {name}! Time for a break.",
		Idle:        "Click 'Start Focus' when you're ready to begin your session, {name}.",
		Distracted:  "{name}, eyes on the prize! Stay focused.",
		Refocused:   "Welcome back, {name}! Let's keep going.",
		Paused:      "Session paused, {name}. Focus up to continue!",
	}
}

func render(tmpl, name string) string {
	return attention.Render(tmpl, name)
}
