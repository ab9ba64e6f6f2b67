package blocks

import (
	"bytes"
	"errors"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nerrad567/blox-core/internal/cbox"
)

func newTestContainer(t *testing.T) *cbox.Container {
	t.Helper()
	reg := cbox.NewRegistry()
	Register(reg)
	return cbox.NewContainer(reg)
}

func create(t *testing.T, objects *cbox.Container, typeID cbox.TypeID, settings message) cbox.ObjectID {
	t.Helper()
	id, err := objects.Create(typeID, 0x01, cbox.NewDataIn(settings))
	if err != nil {
		t.Fatalf("Create(%d) error = %v", typeID, err)
	}
	return id
}

func persisted(t *testing.T, obj cbox.Object) []byte {
	t.Helper()
	out := cbox.NewDataOut()
	if err := obj.StreamPersistedTo(out); err != nil {
		t.Fatalf("StreamPersistedTo() error = %v", err)
	}
	return out.Bytes()
}

func fetch[T any](t *testing.T, objects *cbox.Container, id cbox.ObjectID) T {
	t.Helper()
	obj, ok := objects.Fetch(id)
	if !ok {
		t.Fatalf("object %d missing", id)
	}
	v, ok := obj.(T)
	if !ok {
		t.Fatalf("object %d is %T", id, obj)
	}
	return v
}

func TestRegister_SystemTypesNotCreatable(t *testing.T) {
	reg := cbox.NewRegistry()
	Register(reg)

	for _, typeID := range []cbox.TypeID{TypeSysInfo, TypeGroups} {
		if !reg.Known(typeID) {
			t.Errorf("type %d not registered", typeID)
		}
		_, _, err := reg.Create(nil, typeID, cbox.NewDataIn(nil), false)
		if !errors.Is(err, cbox.ErrInvalidType) {
			t.Errorf("Create(%d) error = %v, want ErrInvalidType", typeID, err)
		}
	}
}

func TestInterfaceIDsDoNotCollideWithTypes(t *testing.T) {
	ifaces := []cbox.InterfaceID{
		IfaceProcessValue, IfaceTempSensor, IfaceIoArray,
		IfaceActuatorDigital, IfaceBalancerClient, IfaceBalancer,
	}
	for _, entry := range Types() {
		for _, iface := range ifaces {
			if cbox.InterfaceID(entry.ID) == iface {
				t.Errorf("interface %#x collides with type %s", iface, entry.Name)
			}
		}
	}
}

func TestPersistedRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		typeID   cbox.TypeID
		settings message
	}{
		{"process value", TypeProcessValue, message(nil).putSint(1, -1280).putUint(2, 12)},
		{"temp sensor", TypeTempSensorMock, message(nil).putSint(1, 5120).putBool(2, true)},
		{"pair", TypeSensorSetpointPair, message(nil).putUint(1, 10).putUint(2, 11)},
		{"actuator", TypeDigitalActuator, message(nil).putUint(1, 3).putUint(2, 4).putBool(3, true).putBool(4, true).putUint(5, 9)},
		{"mock pins", TypeMockPins, nil},
		{"balancer", TypeBalancer, nil},
		{"defaults", TypeProcessValue, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := newTestContainer(t)
			id := create(t, objects, tt.typeID, tt.settings)
			obj, _ := objects.Fetch(id)

			if got := persisted(t, obj); !bytes.Equal(got, tt.settings) {
				t.Errorf("StreamPersistedTo() = %x, want %x", got, []byte(tt.settings))
			}
		})
	}
}

func TestStreamFrom_MalformedLeavesObjectUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated varint", []byte{0x08, 0x80}},
		{"truncated tag", []byte{0x80}},
		{"field zero", []byte{0x00, 0x01}},
		{"sensor id out of range", message(nil).putSint(1, 7).putUint(2, 70000)},
		{"setting out of range", message(nil).putUint(1, protowire.EncodeZigZag(1<<40))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := newTestContainer(t)
			id := create(t, objects, TypeProcessValue, message(nil).putSint(1, 42).putUint(2, 3))
			pv := fetch[*ProcessValueBlock](t, objects, id)
			before := persisted(t, pv)

			if err := pv.StreamFrom(cbox.NewDataIn(tt.input)); err == nil {
				t.Fatal("StreamFrom() succeeded on malformed input")
			}
			if after := persisted(t, pv); !bytes.Equal(before, after) {
				t.Errorf("settings changed: %x -> %x", before, after)
			}
		})
	}
}

func TestStreamFrom_IgnoresLiveFields(t *testing.T) {
	objects := newTestContainer(t)
	sensorID := create(t, objects, TypeTempSensorMock, message(nil).putSint(1, 256).putBool(2, true))
	sensor := fetch[*TempSensorMock](t, objects, sensorID)
	sensor.Update(0)

	full := cbox.NewDataOut()
	if err := sensor.StreamTo(full); err != nil {
		t.Fatalf("StreamTo() error = %v", err)
	}
	before := persisted(t, sensor)

	if err := sensor.StreamFrom(cbox.NewDataIn(full.Bytes())); err != nil {
		t.Fatalf("StreamFrom(read-back) error = %v", err)
	}
	if after := persisted(t, sensor); !bytes.Equal(before, after) {
		t.Errorf("persisted settings changed after writing read-back: %x -> %x", before, after)
	}
}

func TestProcessValue_FollowsSensor(t *testing.T) {
	objects := newTestContainer(t)
	sensorID := create(t, objects, TypeTempSensorMock, message(nil).putSint(1, 512).putBool(2, true))
	pvID := create(t, objects, TypeProcessValue, message(nil).putSint(1, 100).putUint(2, uint64(sensorID)))

	sensor := fetch[*TempSensorMock](t, objects, sensorID)
	pv := fetch[*ProcessValueBlock](t, objects, pvID)

	sensor.Update(0)
	if next := pv.Update(0); next != sensorPeriod {
		t.Errorf("Update() next = %d, want %d", next, sensorPeriod)
	}
	if v, ok := pv.Value(); !ok || v != 512 {
		t.Errorf("Value() = %d, %v; want 512, true", v, ok)
	}

	if err := objects.Remove(sensorID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	pv.Update(sensorPeriod)
	if _, ok := pv.Value(); ok {
		t.Error("Value() valid after sensor removal")
	}
}

func TestProcessValue_ExposesCapabilities(t *testing.T) {
	objects := newTestContainer(t)
	id := create(t, objects, TypeProcessValue, message(nil).putSint(1, 9))

	v, ok := objects.FetchAs(id, IfaceProcessValue)
	if !ok {
		t.Fatal("FetchAs(IfaceProcessValue) failed")
	}
	pv, ok := v.(ProcessValue)
	if !ok {
		t.Fatalf("capability is %T", v)
	}
	if pv.Setting() != 9 {
		t.Errorf("Setting() = %d, want 9", pv.Setting())
	}
	if _, ok := objects.FetchAs(id, IfaceTempSensor); ok {
		t.Error("process value exposes TempSensor")
	}
}

func TestSensorSetpointPair(t *testing.T) {
	objects := newTestContainer(t)
	sensorID := create(t, objects, TypeTempSensorMock, message(nil).putSint(1, 300).putBool(2, true))
	pvID := create(t, objects, TypeProcessValue, message(nil).putSint(1, 40))
	pairID := create(t, objects, TypeSensorSetpointPair, message(nil).putUint(1, uint64(sensorID)).putUint(2, uint64(pvID)))

	fetch[*TempSensorMock](t, objects, sensorID).Update(0)
	pair := fetch[*SensorSetpointPair](t, objects, pairID)

	if v, ok := pair.Value(); !ok || v != 300 {
		t.Errorf("Value() = %d, %v; want 300, true", v, ok)
	}
	if pair.Setting() != 40 {
		t.Errorf("Setting() = %d, want 40", pair.Setting())
	}
	pair.SetSetting(55)
	if got := fetch[*ProcessValueBlock](t, objects, pvID).Setting(); got != 55 {
		t.Errorf("setpoint Setting() = %d, want 55", got)
	}

	// A pair cannot use another pair as its setpoint.
	other := create(t, objects, TypeSensorSetpointPair, message(nil).putUint(2, uint64(pairID)))
	if got := fetch[*SensorSetpointPair](t, objects, other).Setting(); got != 0 {
		t.Errorf("chained pair Setting() = %d, want 0", got)
	}
}

func TestDigitalActuator_DrivesChannel(t *testing.T) {
	tests := []struct {
		name      string
		invert    bool
		desired   bool
		wantPin   bool
		wantState bool
	}{
		{"on", false, true, true, true},
		{"off", false, false, false, false},
		{"inverted on", true, true, false, true},
		{"inverted off", true, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := newTestContainer(t)
			pinsID := create(t, objects, TypeMockPins, nil)
			actID := create(t, objects, TypeDigitalActuator, message(nil).
				putUint(1, uint64(pinsID)).
				putUint(2, 3).
				putBool(3, tt.invert).
				putBool(4, tt.desired))

			act := fetch[*DigitalActuator](t, objects, actID)
			if next := act.Update(10); next != 10+actuatorPeriod {
				t.Errorf("Update() next = %d", next)
			}

			pin, ok := fetch[*MockPins](t, objects, pinsID).Channel(3)
			if !ok || pin != tt.wantPin {
				t.Errorf("Channel(3) = %v, %v; want %v", pin, ok, tt.wantPin)
			}
			if act.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", act.State(), tt.wantState)
			}
		})
	}
}

func TestDigitalActuator_UnresolvedHardware(t *testing.T) {
	objects := newTestContainer(t)
	actID := create(t, objects, TypeDigitalActuator, message(nil).putUint(1, 99).putUint(2, 1).putBool(4, true))
	act := fetch[*DigitalActuator](t, objects, actID)

	act.Update(0)
	if act.State() {
		t.Error("State() on with missing hardware")
	}
}

func TestDigitalActuator_RejectsBadChannel(t *testing.T) {
	objects := newTestContainer(t)
	_, err := objects.Create(TypeDigitalActuator, 0x01, cbox.NewDataIn(message(nil).putUint(2, 9)))
	if !errors.Is(err, cbox.ErrInvalidDefinition) || !errors.Is(err, ErrFieldRange) {
		t.Errorf("Create() error = %v, want ErrInvalidDefinition wrapping ErrFieldRange", err)
	}
	if objects.Len() != 0 {
		t.Errorf("Len() = %d after failed create", objects.Len())
	}
}

func TestBalancer_ScalesGrants(t *testing.T) {
	objects := newTestContainer(t)
	pinsID := create(t, objects, TypeMockPins, nil)
	balancerID := create(t, objects, TypeBalancer, nil)

	var actuators []cbox.ObjectID
	for ch := uint64(1); ch <= 4; ch++ {
		actuators = append(actuators, create(t, objects, TypeDigitalActuator, message(nil).
			putUint(1, uint64(pinsID)).
			putUint(2, ch).
			putBool(4, true).
			putUint(5, uint64(balancerID))))
	}
	// Not balanced; must be ignored.
	create(t, objects, TypeDigitalActuator, message(nil).putUint(1, uint64(pinsID)).putUint(2, 8).putBool(4, true))

	balancer := fetch[*BalancerBlock](t, objects, balancerID)
	balancer.Update(0)

	for _, id := range actuators {
		granted, ok := balancer.Granted(id)
		if !ok || granted != 25 {
			t.Errorf("Granted(%d) = %d, %v; want 25, true", id, granted, ok)
		}
		act := fetch[*DigitalActuator](t, objects, id)
		act.Update(0)
		if !act.State() {
			t.Errorf("actuator %d off despite grant", id)
		}
	}

	if err := objects.Remove(actuators[0]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	balancer.Update(balancerPeriod)
	if _, ok := balancer.Granted(actuators[0]); ok {
		t.Error("removed client still tracked")
	}
	if granted, _ := balancer.Granted(actuators[1]); granted != 33 {
		t.Errorf("Granted() after removal = %d, want 33", granted)
	}
}

func TestDigitalActuator_BalancerGrant(t *testing.T) {
	objects := newTestContainer(t)
	pinsID := create(t, objects, TypeMockPins, nil)
	balancerID := create(t, objects, TypeBalancer, nil)
	actID := create(t, objects, TypeDigitalActuator, message(nil).
		putUint(1, uint64(pinsID)).
		putUint(2, 1).
		putBool(4, true).
		putUint(5, uint64(balancerID)))

	act := fetch[*DigitalActuator](t, objects, actID)
	balancer := fetch[*BalancerBlock](t, objects, balancerID)

	act.Update(0)
	if act.State() {
		t.Fatal("actuator on before its balancer granted a share")
	}

	balancer.Update(0)
	act.Update(actuatorPeriod)
	if !act.State() {
		t.Fatal("actuator off despite a full grant")
	}

	act.Grant(0)
	act.Update(2 * actuatorPeriod)
	if act.State() {
		t.Error("actuator on with a zero grant")
	}

	// A balancer that stops granting, for example because its group is
	// inactive, no longer holds the output off.
	act.Update(2*actuatorPeriod + grantTimeout + 1)
	if !act.State() {
		t.Error("stale zero grant still holds the actuator off")
	}
}

func TestDigitalActuator_MissingBalancer(t *testing.T) {
	objects := newTestContainer(t)
	pinsID := create(t, objects, TypeMockPins, nil)
	balancerID := create(t, objects, TypeBalancer, nil)
	actID := create(t, objects, TypeDigitalActuator, message(nil).
		putUint(1, uint64(pinsID)).
		putUint(2, 1).
		putBool(4, true).
		putUint(5, uint64(balancerID)))

	act := fetch[*DigitalActuator](t, objects, actID)
	act.Grant(0)
	act.Update(0)
	if act.State() {
		t.Fatal("actuator on with a zero grant")
	}

	if err := objects.Remove(balancerID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	act.Update(actuatorPeriod)
	if !act.State() {
		t.Error("actuator held off by a deleted balancer")
	}
	if act.BalancedBy() != balancerID {
		t.Errorf("BalancedBy() = %d, want %d kept for a recreated balancer", act.BalancedBy(), balancerID)
	}

	// A balancer ID that never existed does not constrain either.
	other := create(t, objects, TypeDigitalActuator, message(nil).
		putUint(1, uint64(pinsID)).
		putUint(2, 2).
		putBool(4, true).
		putUint(5, 200))
	unbound := fetch[*DigitalActuator](t, objects, other)
	unbound.Update(0)
	if !unbound.State() {
		t.Error("actuator held off by an unknown balancer")
	}
}

func TestGroups_WriteNotifiesAndKeepsSystemBit(t *testing.T) {
	var notified []cbox.GroupMask
	g := NewGroups(func(m cbox.GroupMask) { notified = append(notified, m) })

	if g.Active() != cbox.DefaultActiveGroups {
		t.Fatalf("Active() = %#x, want %#x", g.Active(), cbox.DefaultActiveGroups)
	}
	if err := g.StreamFrom(cbox.NewDataIn(message(nil).putUint(1, 0x06))); err != nil {
		t.Fatalf("StreamFrom() error = %v", err)
	}
	want := cbox.GroupMask(0x06) | cbox.SystemGroup
	if g.Active() != want {
		t.Errorf("Active() = %#x, want %#x", g.Active(), want)
	}
	if len(notified) != 1 || notified[0] != want {
		t.Errorf("notified = %v", notified)
	}

	if err := g.StreamFrom(cbox.NewDataIn(message(nil).putUint(1, 0x1FF))); err == nil {
		t.Error("StreamFrom() accepted mask wider than 8 bits")
	}
	if g.Active() != want {
		t.Error("rejected write changed the mask")
	}
}

func TestSysInfo(t *testing.T) {
	s := NewSysInfo([]byte{0xDE, 0xAD}, "1.0.0")
	s.Update(1234)

	if err := s.StreamFrom(cbox.NewDataIn(message(nil).putUint(3, 9))); err != nil {
		t.Errorf("StreamFrom() error = %v", err)
	}
	if got := persisted(t, s); len(got) != 0 {
		t.Errorf("StreamPersistedTo() = %x, want empty", got)
	}

	out := cbox.NewDataOut()
	if err := s.StreamTo(out); err != nil {
		t.Fatalf("StreamTo() error = %v", err)
	}
	want := message(nil).
		putBytes(1, []byte{0xDE, 0xAD}).
		putBytes(2, []byte("1.0.0")).
		putUint(3, ProtocolVersion).
		putUint(4, 1234)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("StreamTo() = %x, want %x", out.Bytes(), []byte(want))
	}
	if s.Implements(cbox.InterfaceID(TypeSysInfo)) != s {
		t.Error("SysInfo does not expose itself")
	}
}

func TestSystemObjects(t *testing.T) {
	objs := SystemObjects([]byte("dev"), "dev", nil)
	if len(objs) != 2 {
		t.Fatalf("got %d system objects", len(objs))
	}
	if objs[0].ID != SysInfoID || objs[0].Object.TypeID() != TypeSysInfo {
		t.Errorf("objs[0] = %d/%d", objs[0].ID, objs[0].Object.TypeID())
	}
	if objs[1].ID != GroupsID || objs[1].Object.TypeID() != TypeGroups {
		t.Errorf("objs[1] = %d/%d", objs[1].ID, objs[1].Object.TypeID())
	}
}
