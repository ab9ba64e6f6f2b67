package blocks

import "github.com/nerrad567/blox-core/internal/cbox"

// Type IDs of the shipped blocks.
const (
	TypeProcessValue       cbox.TypeID = 7
	TypeSysInfo            cbox.TypeID = 256
	TypeGroups             cbox.TypeID = 257
	TypeTempSensorMock     cbox.TypeID = 258
	TypeSensorSetpointPair cbox.TypeID = 260
	TypeMockPins           cbox.TypeID = 261
	TypeDigitalActuator    cbox.TypeID = 262
	TypeBalancer           cbox.TypeID = 263
)

// Interface IDs. They share the number space with type IDs and are kept
// clear of every registered type.
const (
	IfaceProcessValue    cbox.InterfaceID = 0x0201
	IfaceTempSensor      cbox.InterfaceID = 0x0202
	IfaceIoArray         cbox.InterfaceID = 0x0203
	IfaceActuatorDigital cbox.InterfaceID = 0x0204
	IfaceBalancerClient  cbox.InterfaceID = 0x0205
	IfaceBalancer        cbox.InterfaceID = 0x0206
)

// Fixed IDs of the system objects.
const (
	SysInfoID cbox.ObjectID = 1
	GroupsID  cbox.ObjectID = 2
)

// Update periods in ticks.
const (
	sensorPeriod   cbox.Tick = 1000
	actuatorPeriod cbox.Tick = 100
	balancerPeriod cbox.Tick = 1000

	// grantTimeout is how long a balancer grant stays in force.
	grantTimeout = 2 * balancerPeriod
)

// TempSensor is a temperature source. Values are in 1/256 degC.
type TempSensor interface {
	// Value returns the last reading and whether it is valid.
	Value() (int32, bool)
}

// ProcessValue is a controlled quantity with a setpoint.
type ProcessValue interface {
	Value() (int32, bool)
	Setting() int32
	SetSetting(v int32)
}

// IoArray is a bank of digital channels, numbered from 1.
type IoArray interface {
	Channels() int

	// Channel returns the state of ch and whether ch exists.
	Channel(ch int) (on, ok bool)

	// SetChannel drives ch and reports whether ch exists.
	SetChannel(ch int, on bool) bool
}

// ActuatorDigital is an on/off output.
type ActuatorDigital interface {
	Desired() bool
	SetDesired(on bool)
	State() bool
}

// BalancerClient asks a balancer for a share of a constrained resource.
type BalancerClient interface {
	// BalancedBy returns the ID of the balancer the client registers with.
	BalancedBy() cbox.ObjectID

	// Requested returns the share wanted, 0..100.
	Requested() uint8

	// Grant hands the client its share, 0..100.
	Grant(share uint8)
}

// Balancer distributes a resource between its clients.
type Balancer interface {
	Granted(client cbox.ObjectID) (uint8, bool)
}
