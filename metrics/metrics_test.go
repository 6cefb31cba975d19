package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/packet"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Observe(demod.Stats{Locks: 3, Corrupt: 1, Delivered: 2})
	m.Observe(demod.Stats{Locks: 5, Lost: 1, Corrupt: 1, Delivered: 3})

	for _, c := range []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"locks", m.locks, 5},
		{"lost", m.lost, 1},
		{"corrupt", m.corrupt, 1},
		{"mismatched", m.mismatched, 0},
		{"delivered", m.delivered, 3},
	} {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("%s: expected %f got %f\n", c.name, c.want, got)
		}
	}
}

func TestPacket(t *testing.T) {
	m := New(prometheus.NewRegistry())

	var p packet.Packet
	packet.Subaru.Command.Insert(&p, 2)

	m.Packet(packet.NewMessage(p, packet.Subaru))
	m.Packet(packet.NewMessage(p, packet.Subaru))

	if got := testutil.ToFloat64(m.packets.WithLabelValues("Unlock")); got != 2 {
		t.Fatalf("expected 2 unlock packets, got %f\n", got)
	}
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
