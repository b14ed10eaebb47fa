package command

import (
	"encoding/json"
	"errors"
)

// Message errors
var (
	ErrUnknownMessage = errors.New("unknown command type")
)

const (
	ResponseStatusOk    = "ok"
	ResponseStatusError = "error"
)

// Response contains the command response status information
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// MessageName is a message ID type
type MessageName string

// Supported messages (sensor -> master)
const (
	PingName           MessageName = "cmd.ping"
	IsInstalledName    MessageName = "cmd.hook.installed"
	ReportMessageName  MessageName = "cmd.report.message"
	ReportMessagesName MessageName = "cmd.report.messages"
)

// Message represents the message interface
type Message interface {
	GetName() MessageName
}

// Ping is the no-payload liveness probe
type Ping struct{}

// GetName returns the command message ID for the ping command
func (m *Ping) GetName() MessageName {
	return PingName
}

// IsInstalled announces that interception is active in a process
type IsInstalled struct {
	PID     int    `json:"pid"`
	Session string `json:"session,omitempty"`
}

// GetName returns the command message ID for the 'is installed' command
func (m *IsInstalled) GetName() MessageName {
	return IsInstalledName
}

// ReportMessage carries a single informational string
type ReportMessage struct {
	Text string `json:"text"`
}

// GetName returns the command message ID for the 'report message' command
func (m *ReportMessage) GetName() MessageName {
	return ReportMessageName
}

// ReportMessages carries an ordered batch of event descriptions
type ReportMessages struct {
	Messages []string `json:"messages"`
}

// GetName returns the command message ID for the 'report messages' command
func (m *ReportMessages) GetName() MessageName {
	return ReportMessagesName
}

type messageWrapper struct {
	Name MessageName     `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode encodes the message instance to a JSON buffer object
func Encode(m Message) ([]byte, error) {
	obj := messageWrapper{
		Name: m.GetName(),
	}

	switch v := m.(type) {
	case *Ping:
	case *IsInstalled, *ReportMessage, *ReportMessages:
		var err error
		obj.Data, err = json.Marshal(v)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownMessage
	}

	return json.Marshal(&obj)
}

// Decode decodes JSON data into a message instance
func Decode(data []byte) (Message, error) {
	var wrapper messageWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}

	var msg Message
	switch wrapper.Name {
	case PingName:
		return &Ping{}, nil
	case IsInstalledName:
		msg = &IsInstalled{}
	case ReportMessageName:
		msg = &ReportMessage{}
	case ReportMessagesName:
		msg = &ReportMessages{}
	default:
		return nil, ErrUnknownMessage
	}

	if err := json.Unmarshal(wrapper.Data, msg); err != nil {
		return nil, err
	}

	return msg, nil
}
