package protocol

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/graphlayout/model"
)

func TestCommandRoundTrip(t *testing.T) {
	fx, fy := 100.0, -40.5
	cases := []struct {
		name string
		cmd  Command
	}{
		{
			name: "init",
			cmd: InitCommand{
				Nodes: []model.Node{{ID: "a", Kind: model.NodeKindMajor, Radius: 30}},
				Links: []model.Link{{SourceID: "a", TargetID: "a", Kind: model.LinkKindOverlap}},
			},
		},
		{name: "pin", cmd: PinCommand{NodeIndex: 3, FX: &fx, FY: &fy}},
		{name: "unpin", cmd: UnpinCommand{NodeID: "a"}},
		{name: "stop", cmd: StopCommand{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := MarshalCommand(tc.cmd)
			if err != nil {
				t.Fatalf("MarshalCommand: %v", err)
			}
			if !strings.Contains(string(data), `"type":"`+tc.cmd.Type()+`"`) {
				t.Fatalf("envelope %s missing type discriminator %q", data, tc.cmd.Type())
			}

			decoded, err := UnmarshalCommand(data)
			if err != nil {
				t.Fatalf("UnmarshalCommand(%s): %v", data, err)
			}
			if decoded.Type() != tc.cmd.Type() {
				t.Fatalf("round trip type = %q, want %q", decoded.Type(), tc.cmd.Type())
			}
		})
	}
}

func TestPinRoundTripPreservesCoordinates(t *testing.T) {
	fx := 12.5
	data, err := MarshalCommand(PinCommand{NodeIndex: 1, FX: &fx, FY: nil})
	if err != nil {
		t.Fatalf("MarshalCommand: %v", err)
	}
	decoded, err := UnmarshalCommand(data)
	if err != nil {
		t.Fatalf("UnmarshalCommand: %v", err)
	}
	pin, ok := decoded.(PinCommand)
	if !ok {
		t.Fatalf("decoded %T, want PinCommand", decoded)
	}
	if pin.NodeIndex != 1 {
		t.Fatalf("NodeIndex = %d, want 1", pin.NodeIndex)
	}
	if pin.FX == nil || *pin.FX != 12.5 {
		t.Fatalf("FX = %v, want 12.5", pin.FX)
	}
	if pin.FY != nil {
		t.Fatalf("FY = %v, want nil (release semantics)", *pin.FY)
	}
}

func TestUnknownCommandTypeIsNoop(t *testing.T) {
	decoded, err := UnmarshalCommand([]byte(`{"type":"teleport","x":1}`))
	if err != nil {
		t.Fatalf("unknown type must decode, got error: %v", err)
	}
	unknown, ok := decoded.(UnknownCommand)
	if !ok {
		t.Fatalf("decoded %T, want UnknownCommand", decoded)
	}
	// The wire string is kept for logging only; Type reports the fixed
	// discriminator so it is safe to use as a metric label.
	if unknown.Type() != CommandUnknown {
		t.Fatalf("Type() = %q, want %q", unknown.Type(), CommandUnknown)
	}
	if unknown.Raw != "teleport" {
		t.Fatalf("Raw = %q, want teleport", unknown.Raw)
	}
}

func TestMalformedCommandIsError(t *testing.T) {
	if _, err := UnmarshalCommand([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestEventRoundTrip(t *testing.T) {
	tick := TickEvent{Positions: []float64{1, 2, 3, 4}, Alpha: 0.42}
	data, err := MarshalEvent(tick)
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}
	decoded, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	got, ok := decoded.(TickEvent)
	if !ok {
		t.Fatalf("decoded %T, want TickEvent", decoded)
	}
	if len(got.Positions) != 4 || got.Positions[2] != 3 {
		t.Fatalf("positions = %v, want [1 2 3 4]", got.Positions)
	}
	if got.Alpha != 0.42 {
		t.Fatalf("alpha = %v, want 0.42", got.Alpha)
	}

	settled := SettledEvent{Alpha: 0.0009}
	data, err = MarshalEvent(settled)
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}
	decoded, err = UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	if got, ok := decoded.(SettledEvent); !ok || got.Alpha != 0.0009 {
		t.Fatalf("decoded = %#v, want SettledEvent{0.0009}", decoded)
	}
}

func TestUnknownEventTypeIsError(t *testing.T) {
	if _, err := UnmarshalEvent([]byte(`{"type":"pulse"}`)); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
