package blocks

import "github.com/nerrad567/blox-core/internal/cbox"

// TempSensorMock is a simulated temperature sensor. Its reading follows
// the configured setting while connected.
//
// Fields: 1 setting (sint, persisted), 2 connected (bool, persisted),
// 3 value (sint, live).
type TempSensorMock struct {
	setting   int32
	connected bool

	value int32
	valid bool

	caps cbox.Capabilities
}

// NewTempSensorMock returns a disconnected sensor at 0.
func NewTempSensorMock(*cbox.Container) cbox.Object {
	s := &TempSensorMock{}
	s.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeTempSensorMock): cbox.Self(s),
		IfaceTempSensor:                      func() any { return TempSensor(s) },
	}
	return s
}

// TypeID returns TypeTempSensorMock.
func (s *TempSensorMock) TypeID() cbox.TypeID { return TypeTempSensorMock }

func (s *TempSensorMock) StreamFrom(in *cbox.DataIn) error {
	f, err := readSettings(in)
	if err != nil {
		return err
	}
	setting, err := f.sintField(1)
	if err != nil {
		return err
	}
	s.setting = setting
	s.connected = f.boolField(2)
	return nil
}

func (s *TempSensorMock) StreamTo(out *cbox.DataOut) error {
	return s.persisted().putSint(3, s.value).writeTo(out)
}

func (s *TempSensorMock) StreamPersistedTo(out *cbox.DataOut) error {
	return s.persisted().writeTo(out)
}

func (s *TempSensorMock) persisted() message {
	return message(nil).putSint(1, s.setting).putBool(2, s.connected)
}

// Update copies the setting into the reading while connected.
func (s *TempSensorMock) Update(now cbox.Tick) cbox.Tick {
	s.valid = s.connected
	if s.valid {
		s.value = s.setting
	} else {
		s.value = 0
	}
	return now + sensorPeriod
}

// Implements exposes TempSensor.
func (s *TempSensorMock) Implements(iface cbox.InterfaceID) any { return s.caps.Lookup(iface) }

// Value returns the last reading.
func (s *TempSensorMock) Value() (int32, bool) { return s.value, s.valid }
