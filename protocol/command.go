// Package protocol defines the closed message vocabularies exchanged with a
// layout session: commands flowing controller → engine and events flowing
// engine → controller. The serialization contract is a JSON object carrying
// a "type" discriminator alongside the message fields.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/graphlayout/model"
)

// Command type discriminators.
const (
	CommandInit        = "init"
	CommandReheat      = "reheat"
	CommandConfig      = "config"
	CommandPin         = "pin"
	CommandUnpin       = "unpin"
	CommandAlphaTarget = "alphaTarget"
	CommandAlpha       = "alpha"
	CommandRestart     = "restart"
	CommandStop        = "stop"

	// CommandUnknown is the fixed discriminator reported for unrecognized
	// wire types, keeping attacker-chosen strings out of metric labels.
	CommandUnknown = "unknown"
)

// Command is one controller → engine message. The set of implementations
// is closed; unknown wire types decode to UnknownCommand so the engine can
// ignore them instead of failing.
type Command interface {
	// Type returns the wire discriminator.
	Type() string
}

// InitCommand replaces the session graph and starts the layout running.
// Config is partial; unset fields take the engine defaults.
type InitCommand struct {
	Nodes  []model.Node        `json:"nodes"`
	Links  []model.Link        `json:"links"`
	Config model.PartialConfig `json:"config"`
}

// ReheatCommand overwrites the current alpha, restarting convergence.
type ReheatCommand struct {
	Alpha float64 `json:"alpha"`
}

// ConfigCommand merges a partial configuration into the live one.
type ConfigCommand struct {
	Config model.PartialConfig `json:"config"`
}

// PinCommand fixes one node, addressed by arena index, to (FX, FY). Nil
// coordinates release it. Out-of-range indices are dropped by the engine.
type PinCommand struct {
	NodeIndex int      `json:"nodeIndex"`
	FX        *float64 `json:"fx"`
	FY        *float64 `json:"fy"`
}

// UnpinCommand releases one node, addressed by ID.
type UnpinCommand struct {
	NodeID string `json:"nodeId"`
}

// AlphaTargetCommand sets the floor alpha decays toward.
type AlphaTargetCommand struct {
	Value float64 `json:"value"`
}

// AlphaCommand sets the current alpha.
type AlphaCommand struct {
	Value float64 `json:"value"`
}

// RestartCommand resumes a settled or stopped layout with alpha 0.3.
type RestartCommand struct{}

// StopCommand halts iteration until restart or a fresh init.
type StopCommand struct{}

// UnknownCommand is the decode result for an unrecognized discriminator.
// Sessions treat it as a forward-compatible no-op. Raw preserves the wire
// discriminator for logging; Type deliberately does not expose it.
type UnknownCommand struct {
	Raw string
}

func (InitCommand) Type() string        { return CommandInit }
func (ReheatCommand) Type() string      { return CommandReheat }
func (ConfigCommand) Type() string      { return CommandConfig }
func (PinCommand) Type() string         { return CommandPin }
func (UnpinCommand) Type() string       { return CommandUnpin }
func (AlphaTargetCommand) Type() string { return CommandAlphaTarget }
func (AlphaCommand) Type() string       { return CommandAlpha }
func (RestartCommand) Type() string     { return CommandRestart }
func (StopCommand) Type() string        { return CommandStop }
func (UnknownCommand) Type() string     { return CommandUnknown }

// MarshalCommand encodes a command as its JSON envelope.
func MarshalCommand(c Command) ([]byte, error) {
	switch cmd := c.(type) {
	case InitCommand:
		return marshalEnvelope(CommandInit, cmd)
	case ReheatCommand:
		return marshalEnvelope(CommandReheat, cmd)
	case ConfigCommand:
		return marshalEnvelope(CommandConfig, cmd)
	case PinCommand:
		return marshalEnvelope(CommandPin, cmd)
	case UnpinCommand:
		return marshalEnvelope(CommandUnpin, cmd)
	case AlphaTargetCommand:
		return marshalEnvelope(CommandAlphaTarget, cmd)
	case AlphaCommand:
		return marshalEnvelope(CommandAlpha, cmd)
	case RestartCommand:
		return marshalEnvelope(CommandRestart, cmd)
	case StopCommand:
		return marshalEnvelope(CommandStop, cmd)
	default:
		return nil, fmt.Errorf("MarshalCommand: unsupported command %T", c)
	}
}

// UnmarshalCommand decodes a JSON envelope into its concrete command.
// A well-formed envelope with an unrecognized type decodes to
// UnknownCommand rather than an error.
func UnmarshalCommand(data []byte) (Command, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("UnmarshalCommand: %w", err)
	}

	switch head.Type {
	case CommandInit:
		var cmd InitCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandReheat:
		var cmd ReheatCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandConfig:
		var cmd ConfigCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandPin:
		var cmd PinCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandUnpin:
		var cmd UnpinCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandAlphaTarget:
		var cmd AlphaTargetCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandAlpha:
		var cmd AlphaCommand
		if err := unmarshalBody(data, head.Type, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case CommandRestart:
		return RestartCommand{}, nil
	case CommandStop:
		return StopCommand{}, nil
	default:
		return UnknownCommand{Raw: head.Type}, nil
	}
}

type typedEnvelope struct {
	Type string `json:"type"`
}

func marshalEnvelope(kind string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	head, err := json.Marshal(typedEnvelope{Type: kind})
	if err != nil {
		return nil, err
	}
	if string(payload) == "{}" {
		return head, nil
	}
	// Splice the discriminator into the payload object: {"type":k, <fields>}.
	out := make([]byte, 0, len(head)+len(payload))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, payload[1:]...)
	return out, nil
}

func unmarshalBody(data []byte, kind string, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}
