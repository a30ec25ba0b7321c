package janitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaintenance struct {
	purgeLogsCount int64
	purgeLogsErr   error
	emergencyCount int64
	emergencyErr   error
}

func (f fakeMaintenance) PurgeLogs(context.Context) (int64, error) { return f.purgeLogsCount, f.purgeLogsErr }
func (f fakeMaintenance) EmergencyPurge(context.Context) (int64, error) {
	return f.emergencyCount, f.emergencyErr
}

func TestPurgeLogs_ReturnsCount(t *testing.T) {
	j := New(fakeMaintenance{purgeLogsCount: 42})
	n, err := j.PurgeLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPurgeLogs_PropagatesError(t *testing.T) {
	j := New(fakeMaintenance{purgeLogsErr: errors.New("connection lost")})
	_, err := j.PurgeLogs(context.Background())
	assert.Error(t, err)
}

func TestEmergencyPurge_ReturnsCount(t *testing.T) {
	j := New(fakeMaintenance{emergencyCount: 7})
	n, err := j.EmergencyPurge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
