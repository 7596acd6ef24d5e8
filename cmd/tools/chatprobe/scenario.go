package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// Scenario is a scripted chat session:
//
//	url = "ws://localhost:3002/socket"
//	username = "probe"
//	messages = ["hello", "anyone here?"]
//	interval = "500ms"
//	linger = "3s"
type Scenario struct {
	URL      string   `toml:"url"`
	Username string   `toml:"username"`
	Messages []string `toml:"messages"`
	Interval string   `toml:"interval"`
	Linger   string   `toml:"linger"`

	interval time.Duration
	linger   time.Duration
}

// Step is one outbound frame of a scenario.
type Step struct {
	Event string
	Data  string
}

func defaultScenario() Scenario {
	return Scenario{
		URL:      "ws://localhost:3002/socket",
		Username: "probe",
		Messages: []string{"hello from chatprobe"},
		interval: 500 * time.Millisecond,
		linger:   2 * time.Second,
	}
}

func loadScenario(path string) (Scenario, error) {
	sc := defaultScenario()
	if _, err := toml.DecodeFile(path, &sc); err != nil {
		return Scenario{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := sc.resolve(); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func parseScenario(data string) (Scenario, error) {
	sc := defaultScenario()
	if _, err := toml.Decode(data, &sc); err != nil {
		return Scenario{}, err
	}
	return sc, sc.resolve()
}

func (s *Scenario) resolve() error {
	if s.URL == "" {
		return fmt.Errorf("url is required")
	}
	if s.Interval != "" {
		d, err := time.ParseDuration(s.Interval)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		s.interval = d
	}
	if s.Linger != "" {
		d, err := time.ParseDuration(s.Linger)
		if err != nil {
			return fmt.Errorf("linger: %w", err)
		}
		s.linger = d
	}
	return nil
}

// Frames returns the join followed by every message.
func (s Scenario) Frames() []Step {
	steps := make([]Step, 0, len(s.Messages)+1)
	steps = append(steps, Step{Event: chat.EventJoin, Data: s.Username})
	for _, msg := range s.Messages {
		steps = append(steps, Step{Event: chat.EventChatMessage, Data: msg})
	}
	return steps
}
