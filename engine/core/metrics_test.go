package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 250; j++ {
				m.Registered()
				m.Deferred()
				m.Destroyed()
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())

	m.Scoped()
	m.Promoted(3)
	m.Leaked()
	m.Frame()
	m.Frame()

	assert.Equal(t, Stats{
		Registered: 1000,
		Deferred:   1000,
		Scoped:     1,
		Promoted:   3,
		Destroyed:  1000,
		Leaked:     1,
		Frames:     2,
	}, m.Snapshot())
}
