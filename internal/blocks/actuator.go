package blocks

import (
	"fmt"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// MockPinsChannels is the number of channels on a MockPins bank.
const MockPinsChannels = 8

// MockPins is a simulated bank of digital outputs.
//
// Fields: 1 states (uint bitmask, live). It has no persisted settings.
type MockPins struct {
	states uint8
	caps   cbox.Capabilities
}

// NewMockPins returns a bank with every channel off.
func NewMockPins(*cbox.Container) cbox.Object {
	m := &MockPins{}
	m.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeMockPins): cbox.Self(m),
		IfaceIoArray:                   func() any { return IoArray(m) },
	}
	return m
}

// TypeID returns TypeMockPins.
func (m *MockPins) TypeID() cbox.TypeID { return TypeMockPins }

// StreamFrom validates and discards the input; channel states are driven
// by actuators only.
func (m *MockPins) StreamFrom(in *cbox.DataIn) error {
	_, err := readSettings(in)
	return err
}

// StreamTo writes the channel bitmask, channel 1 in bit 0.
func (m *MockPins) StreamTo(out *cbox.DataOut) error {
	return message(nil).putUint(1, uint64(m.states)).writeTo(out)
}

// StreamPersistedTo writes nothing; channel states are not restored.
func (m *MockPins) StreamPersistedTo(*cbox.DataOut) error { return nil }

// Update does nothing; channels change only through SetChannel.
func (m *MockPins) Update(cbox.Tick) cbox.Tick { return cbox.TickNever }

// Implements exposes the bank as IoArray.
func (m *MockPins) Implements(iface cbox.InterfaceID) any { return m.caps.Lookup(iface) }

// Channels returns MockPinsChannels.
func (m *MockPins) Channels() int { return MockPinsChannels }

// Channel returns the state of ch and whether ch exists.
func (m *MockPins) Channel(ch int) (on, ok bool) {
	if ch < 1 || ch > MockPinsChannels {
		return false, false
	}
	return m.states&(1<<(ch-1)) != 0, true
}

// SetChannel drives ch and reports whether ch exists.
func (m *MockPins) SetChannel(ch int, on bool) bool {
	if ch < 1 || ch > MockPinsChannels {
		return false
	}
	if on {
		m.states |= 1 << (ch - 1)
	} else {
		m.states &^= 1 << (ch - 1)
	}
	return true
}

// DigitalActuator drives one channel of an IoArray. When it names a
// balancer that resolves, the output is only switched on while the
// balancer grants it a share. A balancer that is missing, or that has not
// granted anything for grantTimeout, does not constrain the output.
//
// Fields: 1 hw_device_id (uint), 2 channel (uint), 3 invert (bool),
// 4 desired_state (bool), 5 balancer_id (uint), all persisted;
// 6 state (bool, live), 7 granted (uint, live).
type DigitalActuator struct {
	hwDevice cbox.Ref[IoArray]
	channel  uint8
	invert   bool
	desired  bool
	balancer cbox.Ref[Balancer]

	state     bool
	granted   uint8
	grantedAt cbox.Tick
	tracking  bool // balancer resolved; grantedAt holds the last grant
	lastTick  cbox.Tick

	caps cbox.Capabilities
}

// NewDigitalActuator returns an unbound actuator.
func NewDigitalActuator(objects *cbox.Container) cbox.Object {
	a := &DigitalActuator{
		hwDevice: cbox.NewRef[IoArray](objects, IfaceIoArray),
		balancer: cbox.NewRef[Balancer](objects, IfaceBalancer),
	}
	a.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeDigitalActuator): cbox.Self(a),
		IfaceActuatorDigital:                  func() any { return ActuatorDigital(a) },
		IfaceBalancerClient:                   func() any { return BalancerClient(a) },
	}
	return a
}

// TypeID returns TypeDigitalActuator.
func (a *DigitalActuator) TypeID() cbox.TypeID { return TypeDigitalActuator }

// StreamFrom replaces the settings. Retargeting the balancer drops the
// current grant.
func (a *DigitalActuator) StreamFrom(in *cbox.DataIn) error {
	f, err := readSettings(in)
	if err != nil {
		return err
	}
	hw, err := f.idField(1)
	if err != nil {
		return err
	}
	channel := f.uintField(2)
	if channel > MockPinsChannels {
		return fmt.Errorf("%w: channel %d", ErrFieldRange, channel)
	}
	balancer, err := f.idField(5)
	if err != nil {
		return err
	}

	a.hwDevice.SetID(hw)
	a.channel = uint8(channel)
	a.invert = f.boolField(3)
	a.desired = f.boolField(4)
	if balancer != a.balancer.ID() {
		a.balancer.SetID(balancer)
		a.dropGrant()
	}
	return nil
}

// StreamTo writes the settings followed by the live state and grant.
func (a *DigitalActuator) StreamTo(out *cbox.DataOut) error {
	return a.persisted().putBool(6, a.state).putUint(7, uint64(a.granted)).writeTo(out)
}

// StreamPersistedTo writes fields 1 to 5.
func (a *DigitalActuator) StreamPersistedTo(out *cbox.DataOut) error {
	return a.persisted().writeTo(out)
}

func (a *DigitalActuator) persisted() message {
	return message(nil).
		putUint(1, uint64(a.hwDevice.ID())).
		putUint(2, uint64(a.channel)).
		putBool(3, a.invert).
		putBool(4, a.desired).
		putUint(5, uint64(a.balancer.ID()))
}

// Update applies the desired state to the hardware channel. The actual
// state stays off while the channel cannot be resolved.
func (a *DigitalActuator) Update(now cbox.Tick) cbox.Tick {
	a.lastTick = now
	want := a.desired
	if share, limited := a.grant(now); limited && share == 0 {
		want = false
	}

	a.state = false
	if hw, ok := a.hwDevice.Lock(); ok && a.channel != 0 {
		if hw.SetChannel(int(a.channel), want != a.invert) {
			a.state = want
		}
	}
	return now + actuatorPeriod
}

// Implements exposes ActuatorDigital and BalancerClient.
func (a *DigitalActuator) Implements(iface cbox.InterfaceID) any { return a.caps.Lookup(iface) }

// grant returns the share the balancer last handed out and whether it
// limits the output at now. Until the first grant arrives the share is 0.
func (a *DigitalActuator) grant(now cbox.Tick) (uint8, bool) {
	if _, ok := a.balancer.Lock(); !ok {
		a.dropGrant()
		return 0, false
	}
	if !a.tracking {
		a.tracking = true
		a.granted = 0
		a.grantedAt = now
	}
	if now-a.grantedAt > grantTimeout {
		return 0, false
	}
	return a.granted, true
}

func (a *DigitalActuator) dropGrant() {
	a.granted = 0
	a.tracking = false
}

// Desired returns the requested output state.
func (a *DigitalActuator) Desired() bool { return a.desired }

// SetDesired changes the requested state; it takes effect on the next update.
func (a *DigitalActuator) SetDesired(on bool) { a.desired = on }

// State returns the state last written to the channel.
func (a *DigitalActuator) State() bool { return a.state }

// BalancedBy returns the configured balancer ID, resolved or not.
func (a *DigitalActuator) BalancedBy() cbox.ObjectID { return a.balancer.ID() }

// Requested asks for the full share while the actuator wants to be on.
func (a *DigitalActuator) Requested() uint8 {
	if a.desired {
		return 100
	}
	return 0
}

// Grant records share as handed out at the actuator's latest update.
func (a *DigitalActuator) Grant(share uint8) {
	a.granted = share
	a.grantedAt = a.lastTick
	a.tracking = true
}
