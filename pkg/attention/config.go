package attention

import (
	"strings"
	"time"
)

// Default debounce constants.
const (
	DefaultDistractionThreshold = 5 * time.Second
	DefaultRefocusCooldown      = 3 * time.Second
)

// Messages holds the spoken templates. "{name}" is replaced with the
// user's name.
type Messages struct {
	Distracted string `json:"distracted"`
	Refocused  string `json:"refocused"`
}

// DefaultMessages returns the standard coaching lines.
func DefaultMessages() Messages {
	return Messages{
		Distracted: "{name}, Don't get distracted now, we still have time to study. You're doing great!",
		Refocused:  "Great! You're back, {name}. Keep up the good work, fully focused",
	}
}

// Render fills in the user name. An empty name collapses the stray
// punctuation around the placeholder.
func Render(tmpl, name string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return strings.ReplaceAll(tmpl, "{name}", name)
	}
	r := strings.NewReplacer("{name}, ", "", ", {name}", "", " {name}", "", "{name}", "")
	out := r.Replace(tmpl)
	if out != "" {
		out = strings.ToUpper(out[:1]) + out[1:]
	}
	return out
}

// Config holds attention machine parameters.
//
// A refocus inside RefocusCooldown is not announced but still reaches
// OnRefocus with Announced false, so the session resumes. Set
// CooldownSilencesCallback for the strict form, where such a refocus
// produces neither speech nor a callback.
type Config struct {
	// DistractionThreshold is how long presence may be missing before a
	// distraction episode starts.
	DistractionThreshold time.Duration

	// RefocusCooldown is the minimum time since the last transition
	// message before a refocus is announced.
	RefocusCooldown time.Duration

	// CooldownSilencesCallback also withholds OnRefocus during the
	// cooldown. By default only the spoken message is withheld.
	CooldownSilencesCallback bool

	UserName string
	Messages Messages
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		DistractionThreshold: DefaultDistractionThreshold,
		RefocusCooldown:      DefaultRefocusCooldown,
		Messages:             DefaultMessages(),
	}
}

func (c *Config) applyDefaults() {
	if c.DistractionThreshold <= 0 {
		c.DistractionThreshold = DefaultDistractionThreshold
	}
	if c.RefocusCooldown < 0 {
		c.RefocusCooldown = 0
	}
	def := DefaultMessages()
	if c.Messages.Distracted == "" {
		c.Messages.Distracted = def.Distracted
	}
	if c.Messages.Refocused == "" {
		c.Messages.Refocused = def.Refocused
	}
}
