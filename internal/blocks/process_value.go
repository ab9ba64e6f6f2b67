package blocks

import "github.com/nerrad567/blox-core/internal/cbox"

// ProcessValueBlock is a setpoint with an optional sensor feeding its value.
//
// Fields: 1 setting (sint, persisted), 2 sensor_id (uint, persisted),
// 3 value (sint, live), 4 valid (bool, live).
type ProcessValueBlock struct {
	setting int32
	sensor  cbox.Ref[TempSensor]

	value int32
	valid bool

	caps cbox.Capabilities
}

// NewProcessValue returns an unbound process value with setting 0.
func NewProcessValue(objects *cbox.Container) cbox.Object {
	p := &ProcessValueBlock{sensor: cbox.NewRef[TempSensor](objects, IfaceTempSensor)}
	p.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeProcessValue): cbox.Self(p),
		IfaceProcessValue:                  func() any { return ProcessValue(p) },
	}
	return p
}

// TypeID returns TypeProcessValue.
func (p *ProcessValueBlock) TypeID() cbox.TypeID { return TypeProcessValue }

// StreamFrom replaces the setting and the sensor link.
func (p *ProcessValueBlock) StreamFrom(in *cbox.DataIn) error {
	f, err := readSettings(in)
	if err != nil {
		return err
	}
	setting, err := f.sintField(1)
	if err != nil {
		return err
	}
	sensorID, err := f.idField(2)
	if err != nil {
		return err
	}

	p.setting = setting
	p.sensor.SetID(sensorID)
	return nil
}

func (p *ProcessValueBlock) StreamTo(out *cbox.DataOut) error {
	return p.persisted().putSint(3, p.value).putBool(4, p.valid).writeTo(out)
}

func (p *ProcessValueBlock) StreamPersistedTo(out *cbox.DataOut) error {
	return p.persisted().writeTo(out)
}

func (p *ProcessValueBlock) persisted() message {
	return message(nil).putSint(1, p.setting).putUint(2, uint64(p.sensor.ID()))
}

// Update samples the sensor. The value is invalid while the sensor is
// unresolved.
func (p *ProcessValueBlock) Update(now cbox.Tick) cbox.Tick {
	p.value, p.valid = 0, false
	if sensor, ok := p.sensor.Lock(); ok {
		p.value, p.valid = sensor.Value()
	}
	return now + sensorPeriod
}

// Implements exposes ProcessValue.
func (p *ProcessValueBlock) Implements(iface cbox.InterfaceID) any { return p.caps.Lookup(iface) }

// Value returns the last sampled reading.
func (p *ProcessValueBlock) Value() (int32, bool) { return p.value, p.valid }
func (p *ProcessValueBlock) Setting() int32       { return p.setting }
func (p *ProcessValueBlock) SetSetting(v int32)   { p.setting = v }

// SensorSetpointPair couples a sensor with the setpoint of a process value
// and exposes both as one process value. The setpoint must be a
// ProcessValueBlock, so pairs cannot reference each other in a cycle.
//
// Fields: 1 sensor_id (uint, persisted), 2 setpoint_id (uint, persisted),
// 3 value (sint, live), 4 setting (sint, live).
type SensorSetpointPair struct {
	sensor   cbox.Ref[TempSensor]
	setpoint cbox.Ref[ProcessValue]

	caps cbox.Capabilities
}

// NewSensorSetpointPair returns an unbound pair.
func NewSensorSetpointPair(objects *cbox.Container) cbox.Object {
	p := &SensorSetpointPair{
		sensor:   cbox.NewRef[TempSensor](objects, IfaceTempSensor),
		setpoint: cbox.NewRef[ProcessValue](objects, cbox.InterfaceID(TypeProcessValue)),
	}
	p.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeSensorSetpointPair): cbox.Self(p),
		IfaceProcessValue:                        func() any { return ProcessValue(p) },
	}
	return p
}

// TypeID returns TypeSensorSetpointPair.
func (p *SensorSetpointPair) TypeID() cbox.TypeID { return TypeSensorSetpointPair }

func (p *SensorSetpointPair) StreamFrom(in *cbox.DataIn) error {
	f, err := readSettings(in)
	if err != nil {
		return err
	}
	sensorID, err := f.idField(1)
	if err != nil {
		return err
	}
	setpointID, err := f.idField(2)
	if err != nil {
		return err
	}

	p.sensor.SetID(sensorID)
	p.setpoint.SetID(setpointID)
	return nil
}

// StreamTo writes the links followed by the values resolved now.
func (p *SensorSetpointPair) StreamTo(out *cbox.DataOut) error {
	value, _ := p.Value()
	return p.persisted().putSint(3, value).putSint(4, p.Setting()).writeTo(out)
}

func (p *SensorSetpointPair) StreamPersistedTo(out *cbox.DataOut) error {
	return p.persisted().writeTo(out)
}

func (p *SensorSetpointPair) persisted() message {
	return message(nil).putUint(1, uint64(p.sensor.ID())).putUint(2, uint64(p.setpoint.ID()))
}

// Update does nothing; values are resolved on read.
func (p *SensorSetpointPair) Update(cbox.Tick) cbox.Tick { return cbox.TickNever }

// Implements exposes ProcessValue.
func (p *SensorSetpointPair) Implements(iface cbox.InterfaceID) any { return p.caps.Lookup(iface) }

// Value returns the sensor reading, invalid while the sensor is unresolved.
func (p *SensorSetpointPair) Value() (int32, bool) {
	if sensor, ok := p.sensor.Lock(); ok {
		return sensor.Value()
	}
	return 0, false
}

// Setting returns the setpoint's setting, 0 while unresolved.
func (p *SensorSetpointPair) Setting() int32 {
	if sp, ok := p.setpoint.Lock(); ok {
		return sp.Setting()
	}
	return 0
}

// SetSetting forwards to the setpoint, if resolved.
func (p *SensorSetpointPair) SetSetting(v int32) {
	if sp, ok := p.setpoint.Lock(); ok {
		sp.SetSetting(v)
	}
}
