package blocks

import (
	"github.com/nerrad567/blox-core/internal/cbox"
)

// ProtocolVersion is reported by SysInfo.
const ProtocolVersion = 1

// SysInfo reports the controller identity. It has no writable settings;
// writes are accepted and ignored.
//
// Fields: 1 device_id (bytes), 2 version (string), 3 protocol (uint),
// 4 uptime_ms (uint, live).
type SysInfo struct {
	deviceID []byte
	version  string
	uptime   cbox.Tick
	caps     cbox.Capabilities
}

// NewSysInfo returns the system info object.
func NewSysInfo(deviceID []byte, version string) *SysInfo {
	s := &SysInfo{deviceID: deviceID, version: version}
	s.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeSysInfo): cbox.Self(s),
	}
	return s
}

func (s *SysInfo) TypeID() cbox.TypeID { return TypeSysInfo }

// StreamFrom validates and discards the input.
func (s *SysInfo) StreamFrom(in *cbox.DataIn) error {
	_, err := readSettings(in)
	return err
}

func (s *SysInfo) StreamTo(out *cbox.DataOut) error {
	return message(nil).
		putBytes(1, s.deviceID).
		putBytes(2, []byte(s.version)).
		putUint(3, ProtocolVersion).
		putUint(4, uint64(s.uptime)).
		writeTo(out)
}

// StreamPersistedTo writes nothing; SysInfo has no durable settings.
func (s *SysInfo) StreamPersistedTo(*cbox.DataOut) error { return nil }

// Update records now as the uptime.
func (s *SysInfo) Update(now cbox.Tick) cbox.Tick {
	s.uptime = now
	return now + sensorPeriod
}

func (s *SysInfo) Implements(iface cbox.InterfaceID) any { return s.caps.Lookup(iface) }

// Uptime returns the tick of the last update.
func (s *SysInfo) Uptime() cbox.Tick { return s.uptime }

// Groups holds the active group mask. Writing it changes which objects
// the scheduler updates.
//
// Fields: 1 active (uint). The system group is always set.
type Groups struct {
	active   cbox.GroupMask
	onChange func(cbox.GroupMask)
	caps     cbox.Capabilities
}

// NewGroups returns the groups object. onChange, if set, is called with the
// new mask after every successful write.
func NewGroups(onChange func(cbox.GroupMask)) *Groups {
	g := &Groups{active: cbox.DefaultActiveGroups, onChange: onChange}
	g.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeGroups): cbox.Self(g),
	}
	return g
}

func (g *Groups) TypeID() cbox.TypeID { return TypeGroups }

// StreamFrom sets the mask, forcing the system group on, and notifies
// the change callback. Masks wider than 8 bits are rejected.
func (g *Groups) StreamFrom(in *cbox.DataIn) error {
	s, err := readSettings(in)
	if err != nil {
		return err
	}
	active := s.uintField(1)
	if active > 0xFF {
		return ErrFieldRange
	}

	g.active = cbox.GroupMask(active) | cbox.SystemGroup
	if g.onChange != nil {
		g.onChange(g.active)
	}
	return nil
}

// StreamTo writes the active mask.
func (g *Groups) StreamTo(out *cbox.DataOut) error {
	return g.StreamPersistedTo(out)
}

func (g *Groups) StreamPersistedTo(out *cbox.DataOut) error {
	return message(nil).putUint(1, uint64(g.active)).writeTo(out)
}

func (g *Groups) Update(cbox.Tick) cbox.Tick { return cbox.TickNever }

// Implements exposes only the Groups type itself.
func (g *Groups) Implements(iface cbox.InterfaceID) any { return g.caps.Lookup(iface) }

// Active returns the current mask.
func (g *Groups) Active() cbox.GroupMask { return g.active }

// SystemObject is a system object and the ID it lives at.
type SystemObject struct {
	ID     cbox.ObjectID
	Object cbox.Object
}

// SystemObjects builds the objects the daemon adds below the first user ID.
func SystemObjects(deviceID []byte, version string, onGroups func(cbox.GroupMask)) []SystemObject {
	return []SystemObject{
		{ID: SysInfoID, Object: NewSysInfo(deviceID, version)},
		{ID: GroupsID, Object: NewGroups(onGroups)},
	}
}
