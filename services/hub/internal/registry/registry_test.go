package registry

import (
	"testing"

	"go.viam.com/test"

	"sensorhub-go/errcode"
	"sensorhub-go/types"
)

func info(id types.SensorID) *types.SensorInfo {
	return &types.SensorInfo{ID: id, Type: types.SensorLight, MaxSamples: 4}
}

func TestAllocFindFree(t *testing.T) {
	r := New(3)
	test.That(t, r.Cap(), test.ShouldEqual, 3)

	i0, err := r.Alloc(info(10), nil, nil, types.NewDataGroup(4))
	test.That(t, err, test.ShouldBeNil)
	i1, err := r.Alloc(info(11), nil, nil, types.NewDataGroup(4))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i0, test.ShouldEqual, 0)
	test.That(t, i1, test.ShouldEqual, 1)

	h := r.At(i1)
	test.That(t, h, test.ShouldNotBeNil)
	test.That(t, h.Status, test.ShouldEqual, types.StatusValid)
	test.That(t, h.Bit, test.ShouldEqual, uint32(2))
	test.That(t, h.Line, test.ShouldEqual, -1)
	test.That(t, h.MaxSamples, test.ShouldEqual, 4)

	idx, ok := r.Find(11)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, idx, test.ShouldEqual, 1)
	_, ok = r.Find(99)
	test.That(t, ok, test.ShouldBeFalse)

	r.Free(i0)
	test.That(t, r.Len(), test.ShouldEqual, 1)
	test.That(t, r.At(i0), test.ShouldBeNil)
	_, ok = r.Find(10)
	test.That(t, ok, test.ShouldBeFalse)

	// The freed slot is reused first.
	i2, err := r.Alloc(info(12), nil, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i2, test.ShouldEqual, 0)
}

func TestAllocNeverEvicts(t *testing.T) {
	r := New(2)
	for id := types.SensorID(1); id <= 2; id++ {
		_, err := r.Alloc(info(id), nil, nil, nil)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, r.Full(), test.ShouldBeTrue)
	_, err := r.Alloc(info(3), nil, nil, nil)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.MaxSensorsReached)
	test.That(t, r.Len(), test.ShouldEqual, 2)

	_, ok := r.Find(1)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestAllocDuplicateID(t *testing.T) {
	r := New(4)
	_, err := r.Alloc(info(7), nil, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = r.Alloc(info(7), nil, nil, nil)
	test.That(t, errcode.Of(err), test.ShouldEqual, errcode.SensorAlreadyCreated)
	test.That(t, r.Len(), test.ShouldEqual, 1)
}

func TestEachAscending(t *testing.T) {
	r := New(4)
	for _, id := range []types.SensorID{5, 6, 7} {
		_, err := r.Alloc(info(id), nil, nil, nil)
		test.That(t, err, test.ShouldBeNil)
	}
	r.Free(1)

	var seen []int
	r.Each(func(h *Handle) bool {
		seen = append(seen, h.Index)
		return true
	})
	test.That(t, seen, test.ShouldResemble, []int{0, 2})
}

func TestCapacityClamp(t *testing.T) {
	test.That(t, New(0).Cap(), test.ShouldEqual, 8)
	test.That(t, New(100).Cap(), test.ShouldEqual, Limit)
}
