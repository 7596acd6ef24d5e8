package broadcast

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// Encode renders one outbound frame. A nil payload produces a frame without "data".
func Encode(event string, payload any) ([]byte, error) {
	frame, err := sonic.Marshal(chat.Outbound{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %q frame: %w", event, err)
	}
	return frame, nil
}

// Decode parses one inbound frame.
func Decode(raw []byte) (chat.Envelope, error) {
	var env chat.Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return chat.Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return chat.Envelope{}, fmt.Errorf("decode frame: missing event name")
	}
	return env, nil
}

// DecodeString reads a string payload. Absent or null data yields "".
func DecodeString(env chat.Envelope) (string, error) {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return "", nil
	}
	var s string
	if err := sonic.Unmarshal(env.Data, &s); err != nil {
		return "", fmt.Errorf("%q expects a string payload: %w", env.Event, err)
	}
	return s, nil
}
