package radio

import (
	log "github.com/sirupsen/logrus"
)

// ClipMonitor warns when the front end is driven near full scale. After a
// warning further warnings are suppressed until Holdoff clean blocks have
// been seen.
type ClipMonitor struct {
	Level   float32
	Holdoff int
	Log     log.FieldLogger

	suppress int
	clipped  uint64
}

func NewClipMonitor(logger log.FieldLogger) *ClipMonitor {
	return &ClipMonitor{Level: 0.95, Holdoff: 100, Log: logger}
}

// Check reports whether any component in block exceeds the clipping level.
func (m *ClipMonitor) Check(block []complex64) bool {
	clipping := false
	for _, s := range block {
		if abs32(real(s)) > m.Level || abs32(imag(s)) > m.Level {
			clipping = true
			break
		}
	}

	if !clipping {
		if m.suppress > 0 {
			m.suppress--
		}
		return false
	}

	m.clipped++
	if m.suppress == 0 {
		m.Log.WithField("clipped_blocks", m.clipped).Warn("signal may be clipping, try reducing gain")
		m.suppress += m.Holdoff
	}

	return true
}

// Clipped returns the number of clipping blocks seen.
func (m *ClipMonitor) Clipped() uint64 {
	return m.clipped
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
