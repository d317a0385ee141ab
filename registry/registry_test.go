package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiscoverFiltersToHealthy(t *testing.T) {
	r := New(0)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})
	r.Register(Instance{ID: "b", ServiceName: "svc", Status: Unhealthy})

	instances := r.Discover("svc")
	require.Len(t, instances, 1)
	require.Equal(t, "a", instances[0].ID)
}

func TestDeregisterRemovesInstance(t *testing.T) {
	r := New(0)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})
	require.True(t, r.Deregister("a"))
	require.False(t, r.Deregister("a"))
	require.Empty(t, r.Discover("svc"))
}

func TestHeartbeatExpiryReapsInstance(t *testing.T) {
	r := New(30 * time.Millisecond)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})
	require.Len(t, r.Discover("svc"), 1)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, r.Discover("svc"))
}

func TestUpdateHeartbeatPreventsExpiry(t *testing.T) {
	r := New(50 * time.Millisecond)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})

	time.Sleep(30 * time.Millisecond)
	require.True(t, r.UpdateHeartbeat("a"))
	time.Sleep(30 * time.Millisecond)

	require.Len(t, r.Discover("svc"), 1)
}

func TestUpdateStatusFiresEventOnlyOnChange(t *testing.T) {
	r := New(0)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})

	var events []EventType
	r.OnEvent(func(e Event) { events = append(events, e.Type) })

	require.True(t, r.UpdateStatus("a", Healthy)) // no change, no event
	require.True(t, r.UpdateStatus("a", Unhealthy))
	require.Equal(t, []EventType{EventStatusChange}, events)
}

func TestConnectionCountingFlooredAtZero(t *testing.T) {
	r := New(0)
	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})
	r.ReleaseConnection("a")
	inst, _ := r.Get("a")
	require.Equal(t, 0, inst.ActiveConnections)

	r.RecordConnection("a")
	r.RecordConnection("a")
	r.ReleaseConnection("a")
	inst, _ = r.Get("a")
	require.Equal(t, 1, inst.ActiveConnections)
}

func TestRegisterAndDeregisterFireEvents(t *testing.T) {
	r := New(0)
	var events []EventType
	r.OnEvent(func(e Event) { events = append(events, e.Type) })

	r.Register(Instance{ID: "a", ServiceName: "svc", Status: Healthy})
	r.Deregister("a")

	require.Equal(t, []EventType{EventRegister, EventDeregister}, events)
}
