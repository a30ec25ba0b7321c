package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/activity"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/topology"
)

type noopAlerter struct{}

func (noopAlerter) AlertDown(context.Context, string, time.Duration, bool)      {}
func (noopAlerter) AlertRecovered(context.Context, string, time.Duration, bool) {}

func TestToSet_BuildsMembershipSet(t *testing.T) {
	set := toSet([]string{"a", "b", "a"})
	require.Len(t, set, 2)
	_, ok := set["b"]
	assert.True(t, ok)
}

func TestToSet_EmptyInputYieldsEmptySet(t *testing.T) {
	set := toSet(nil)
	assert.Empty(t, set)
}

func TestDomainStatuses_ReportsOneEntryPerDomain(t *testing.T) {
	topo := topology.New("source-1", "mirror-1")
	mon := activity.New("mirror-1", noopAlerter{}, time.Now)
	defer mon.Stop()

	e := &Engine{
		domains: []*Domain{
			{
				SourceServerID: "source-1",
				MirrorServerID: "mirror-1",
				Topology:       topo,
				Activity:       mon,
			},
		},
	}

	statuses := e.DomainStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "source-1", statuses[0].SourceServerID)
	assert.Equal(t, "mirror-1", statuses[0].MirrorServerID)
	assert.NotEmpty(t, statuses[0].NextSyncIn)
	assert.NotEmpty(t, statuses[0].ActivityState)
}

func TestDomainStatuses_EmptyEngineReturnsEmptySlice(t *testing.T) {
	e := &Engine{}
	assert.Empty(t, e.DomainStatuses())
}
