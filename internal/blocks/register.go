package blocks

import "github.com/nerrad567/blox-core/internal/cbox"

// Register adds every shipped block type to r. System types are registered
// by name only, so they cannot be created over the wire.
func Register(r *cbox.Registry) {
	for _, entry := range Types() {
		r.Register(entry)
	}
}

// Types returns the type table in registration order.
func Types() []cbox.TypeEntry {
	return []cbox.TypeEntry{
		{ID: TypeProcessValue, Name: "ProcessValue", New: NewProcessValue},
		{ID: TypeSysInfo, Name: "SysInfo"},
		{ID: TypeGroups, Name: "Groups"},
		{ID: TypeTempSensorMock, Name: "TempSensorMock", New: NewTempSensorMock},
		{ID: TypeSensorSetpointPair, Name: "SensorSetpointPair", New: NewSensorSetpointPair},
		{ID: TypeMockPins, Name: "MockPins", New: NewMockPins},
		{ID: TypeDigitalActuator, Name: "DigitalActuator", New: NewDigitalActuator},
		{ID: TypeBalancer, Name: "Balancer", New: NewBalancer},
	}
}
