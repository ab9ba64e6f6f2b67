package cbox

import (
	"errors"
	"fmt"
	"testing"
)

const (
	testTypeCounter TypeID      = 100
	testTypeLink    TypeID      = 101
	testIfaceValuer InterfaceID = 0x4001
)

type valuer interface {
	Value() uint32
}

// counter stores one u32 setting and counts its updates.
type counter struct {
	value   uint32
	updates int
	caps    Capabilities
}

func newCounter(*Container) Object {
	c := &counter{}
	c.caps = Capabilities{
		InterfaceID(testTypeCounter): Self(c),
		testIfaceValuer:              Self(valuer(c)),
	}
	return c
}

func (c *counter) TypeID() TypeID { return testTypeCounter }
func (c *counter) Value() uint32  { return c.value }

func (c *counter) StreamFrom(in *DataIn) error {
	v, err := in.ReadU32()
	if err != nil {
		return err
	}
	if in.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", in.Len())
	}
	c.value = v
	return nil
}

func (c *counter) StreamTo(out *DataOut) error {
	out.WriteU32(c.value)
	return nil
}

func (c *counter) StreamPersistedTo(out *DataOut) error { return c.StreamTo(out) }

func (c *counter) Update(now Tick) Tick {
	c.updates++
	return now + 1000
}

func (c *counter) Implements(iface InterfaceID) any { return c.caps.Lookup(iface) }

// link holds a Ref to a valuer.
type link struct {
	target Ref[valuer]
}

func newLink(objects *Container) Object {
	return &link{target: NewRef[valuer](objects, testIfaceValuer)}
}

func (l *link) TypeID() TypeID { return testTypeLink }

func (l *link) StreamFrom(in *DataIn) error {
	id, err := in.ReadU16()
	if err != nil {
		return err
	}
	l.target.SetID(ObjectID(id))
	in.Drain()
	return nil
}

func (l *link) StreamTo(out *DataOut) error {
	out.WriteU16(uint16(l.target.ID()))
	return nil
}

func (l *link) StreamPersistedTo(out *DataOut) error { return l.StreamTo(out) }
func (l *link) Update(Tick) Tick                     { return TickNever }

func (l *link) Implements(iface InterfaceID) any {
	if iface == InterfaceID(testTypeLink) {
		return l
	}
	return nil
}

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(TypeEntry{ID: testTypeCounter, Name: "Counter", New: newCounter})
	reg.Register(TypeEntry{ID: testTypeLink, Name: "Link", New: newLink})
	return reg
}

func u32(v uint32) []byte {
	out := NewDataOut()
	out.WriteU32(v)
	return out.Bytes()
}

func u16(v uint16) []byte {
	out := NewDataOut()
	out.WriteU16(v)
	return out.Bytes()
}

func TestDataIn_ShortReads(t *testing.T) {
	in := NewDataIn([]byte{0x01, 0x02, 0x03})

	v, err := in.ReadU16()
	if err != nil {
		t.Fatalf("ReadU16() error = %v", err)
	}
	if v != 0x0201 {
		t.Errorf("ReadU16() = %#x, want 0x0201", v)
	}

	if _, err := in.ReadU32(); !errors.Is(err, ErrShortRead) {
		t.Errorf("ReadU32() error = %v, want ErrShortRead", err)
	}
	if in.Consumed() != 2 {
		t.Errorf("Consumed() = %d after failed read, want 2", in.Consumed())
	}
	if n := in.Drain(); n != 1 {
		t.Errorf("Drain() = %d, want 1", n)
	}
}

func TestDataIn_ReadBlob(t *testing.T) {
	out := NewDataOut()
	if err := out.WriteBlob([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	out.WriteU8(0xCC)

	in := NewDataIn(out.Bytes())
	blob, err := in.ReadBlob()
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if blob.Len() != 2 {
		t.Errorf("blob.Len() = %d, want 2", blob.Len())
	}
	b, _ := in.ReadU8()
	if b != 0xCC {
		t.Errorf("byte after blob = %#x, want 0xCC", b)
	}

	truncated := NewDataIn([]byte{0x05, 0x00, 0x01})
	if _, err := truncated.ReadBlob(); !errors.Is(err, ErrShortRead) {
		t.Errorf("ReadBlob() on truncated input error = %v, want ErrShortRead", err)
	}
	if truncated.Consumed() != 0 {
		t.Errorf("Consumed() = %d after failed blob, want 0", truncated.Consumed())
	}
}

func TestRegistry_Register_DuplicatePanics(t *testing.T) {
	reg := testRegistry()
	defer func() {
		if recover() == nil {
			t.Error("Register() with duplicate id did not panic")
		}
	}()
	reg.Register(TypeEntry{ID: testTypeCounter, Name: "Again", New: newCounter})
}

func TestRegistry_Create(t *testing.T) {
	reg := testRegistry()
	objects := NewContainer(reg)

	tests := []struct {
		name     string
		typeID   TypeID
		def      []byte
		wantErr  error
		wantUsed int
	}{
		{"valid", testTypeCounter, u32(7), nil, 4},
		{"unknown type", 999, []byte{1, 2, 3}, ErrInvalidType, 3},
		{"short definition", testTypeCounter, []byte{1, 2}, ErrInvalidDefinition, 2},
		{"trailing bytes", testTypeCounter, append(u32(1), 0xFF), ErrInvalidDefinition, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewDataIn(tt.def)
			obj, used, err := reg.Create(objects, tt.typeID, in, false)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if used != tt.wantUsed {
				t.Errorf("Create() consumed %d, want %d", used, tt.wantUsed)
			}
			if in.Len() != 0 {
				t.Errorf("definition not drained: %d bytes left", in.Len())
			}
			if tt.wantErr == nil && obj == nil {
				t.Error("Create() returned nil object without error")
			}
		})
	}
}

func TestRegistry_Create_DryRunConsumesSameBytes(t *testing.T) {
	reg := testRegistry()
	objects := NewContainer(reg)

	for _, def := range [][]byte{u32(42), {1}, append(u32(3), 9, 9, 9)} {
		stream := append(append([]byte{}, def...), 0xEE)

		created := NewDataIn(stream)
		realSub, _ := created.Sub(len(def))
		_, realUsed, _ := reg.Create(objects, testTypeCounter, realSub, false)

		dry := NewDataIn(stream)
		drySub, _ := dry.Sub(len(def))
		obj, dryUsed, err := reg.Create(objects, testTypeCounter, drySub, true)
		if err != nil {
			t.Fatalf("dry run error = %v", err)
		}
		if obj != nil {
			t.Error("dry run constructed an object")
		}
		if dryUsed != realUsed {
			t.Errorf("dry run consumed %d, real create consumed %d", dryUsed, realUsed)
		}
		if created.Consumed() != dry.Consumed() {
			t.Errorf("outer stream positions differ: real %d, dry %d", created.Consumed(), dry.Consumed())
		}
	}
}

func TestContainer_CreateAllocatesMonotonically(t *testing.T) {
	objects := NewContainer(testRegistry(), WithStartID(100))

	first, err := objects.Create(testTypeCounter, 0x01, NewDataIn(u32(1)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first != 100 {
		t.Errorf("first id = %d, want 100", first)
	}

	second, _ := objects.Create(testTypeCounter, 0x01, NewDataIn(u32(2)))
	if err := objects.Remove(second); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	third, _ := objects.Create(testTypeCounter, 0x01, NewDataIn(u32(3)))
	if third <= second {
		t.Errorf("id %d reused after removing %d", third, second)
	}
}

func TestContainer_SystemRange(t *testing.T) {
	objects := NewContainer(testRegistry(), WithStartID(100))
	sys := newCounter(objects)
	if err := objects.Add(1, SystemGroup, sys); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := objects.Remove(1); !errors.Is(err, ErrSystemObject) {
		t.Errorf("Remove(system) error = %v, want ErrSystemObject", err)
	}
	if err := objects.CreateWithID(5, testTypeCounter, 1, NewDataIn(u32(1))); !errors.Is(err, ErrInvalidObjectID) {
		t.Errorf("CreateWithID(system range) error = %v, want ErrInvalidObjectID", err)
	}
	if got := objects.Clear(); len(got) != 0 {
		t.Errorf("Clear() removed %v, want nothing", got)
	}
	if _, ok := objects.Fetch(1); !ok {
		t.Error("system object missing after Clear()")
	}
}

func TestContainer_CreateWithIDAdvancesAllocator(t *testing.T) {
	objects := NewContainer(testRegistry())

	if err := objects.CreateWithID(50, testTypeCounter, 1, NewDataIn(u32(1))); err != nil {
		t.Fatalf("CreateWithID() error = %v", err)
	}
	if err := objects.CreateWithID(50, testTypeCounter, 1, NewDataIn(u32(1))); !errors.Is(err, ErrInvalidObjectID) {
		t.Errorf("duplicate CreateWithID() error = %v, want ErrInvalidObjectID", err)
	}

	id, err := objects.Create(testTypeCounter, 1, NewDataIn(u32(2)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != 51 {
		t.Errorf("next id = %d, want 51", id)
	}
}

func TestContainer_IDsExhausted(t *testing.T) {
	objects := NewContainer(testRegistry())
	objects.Reserve(0xFFFF)

	in := NewDataIn(u32(1))
	if _, err := objects.Create(testTypeCounter, 1, in); !errors.Is(err, ErrIDsExhausted) {
		t.Errorf("Create() error = %v, want ErrIDsExhausted", err)
	}
	if in.Len() != 0 {
		t.Errorf("definition not drained: %d bytes left", in.Len())
	}
}

func TestContainer_Capacity(t *testing.T) {
	objects := NewContainer(testRegistry(), WithCapacity(2))
	for i := range 2 {
		if _, err := objects.Create(testTypeCounter, 1, NewDataIn(u32(uint32(i)))); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}
	if _, err := objects.Create(testTypeCounter, 1, NewDataIn(u32(9))); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Create() beyond capacity error = %v, want ErrOutOfMemory", err)
	}
}

func TestContainer_AllOrderedByID(t *testing.T) {
	objects := NewContainer(testRegistry())
	for _, id := range []ObjectID{30, 10, 20} {
		if err := objects.CreateWithID(id, testTypeCounter, 1, NewDataIn(u32(uint32(id)))); err != nil {
			t.Fatalf("CreateWithID(%d) error = %v", id, err)
		}
	}

	var got []ObjectID
	for e := range objects.All() {
		got = append(got, e.ID())
	}
	want := []ObjectID{10, 20, 30}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("All() order = %v, want %v", got, want)
	}
}

func TestEntry_UpdateHonoursNextTick(t *testing.T) {
	objects := NewContainer(testRegistry())
	id, _ := objects.Create(testTypeCounter, 1, NewDataIn(u32(0)))
	e, _ := objects.Entry(id)

	if !e.Update(0) {
		t.Fatal("first Update() did not run")
	}
	if e.Update(500) {
		t.Error("Update() ran before the requested tick")
	}
	if !e.Update(1000) {
		t.Error("Update() did not run at the requested tick")
	}

	c := e.Object().(*counter)
	if c.updates != 2 {
		t.Errorf("updates = %d, want 2", c.updates)
	}
}

func TestRef_Lock(t *testing.T) {
	objects := NewContainer(testRegistry())
	target, _ := objects.Create(testTypeCounter, 1, NewDataIn(u32(77)))
	other, _ := objects.Create(testTypeLink, 1, NewDataIn(u16(0)))

	ref := NewRef[valuer](objects, testIfaceValuer)
	if _, ok := ref.Lock(); ok {
		t.Error("unbound Ref resolved")
	}

	ref.SetID(target)
	v, ok := ref.Lock()
	if !ok {
		t.Fatal("Ref did not resolve live target")
	}
	if v.Value() != 77 {
		t.Errorf("Value() = %d, want 77", v.Value())
	}

	ref.SetID(other)
	if ref.Valid() {
		t.Error("Ref resolved object without the interface")
	}

	ref.SetID(target)
	if err := objects.Remove(target); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if ref.Valid() {
		t.Error("Ref resolved after target was removed")
	}
}

func TestFetchAs_OwnTypeReturnsSelf(t *testing.T) {
	objects := NewContainer(testRegistry())
	id, _ := objects.Create(testTypeCounter, 1, NewDataIn(u32(5)))

	obj, _ := objects.Fetch(id)
	self, ok := objects.FetchAs(id, InterfaceID(testTypeCounter))
	if !ok {
		t.Fatal("FetchAs(own type) failed")
	}
	if self != obj {
		t.Error("FetchAs(own type) did not return the object itself")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrObjectNotFound, StatusObjectNotFound},
		{fmt.Errorf("wrapped: %w", ErrInvalidType), StatusInvalidType},
		{fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrShortRead), StatusInvalidDefinition},
		{ErrShortRead, StatusInvalidFrame},
		{errors.New("boom"), StatusUnknownError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
