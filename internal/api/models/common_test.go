package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/cityscope/internal/api/models"
)

func TestTimestamp_JSON(t *testing.T) {
	amsterdam := time.FixedZone("CEST", 2*60*60)
	ts := models.Timestamp(time.Date(2024, 5, 1, 14, 0, 0, 500, amsterdam))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-05-01T12:00:00Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Time().Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	var empty models.Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.True(t, empty.Time().IsZero())
}

func TestTimestampPtr(t *testing.T) {
	assert.Nil(t, models.TimestampPtr(nil))
	assert.Nil(t, models.TimestampPtr(&time.Time{}))

	now := time.Now()
	require.NotNil(t, models.TimestampPtr(&now))
}
