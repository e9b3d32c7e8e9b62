package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"roadapp/api/internal/model"
)

func TestForwardedTypeID(t *testing.T) {
	assert.Equal(t, 100002, ForwardedTypeID(1, 2))
	assert.Equal(t, 110002, ForwardedTypeID(2, 2))
	assert.Equal(t, 140001, ForwardedTypeID(5, 1))
	// Unknown category keeps the raw event code.
	assert.Equal(t, 42, ForwardedTypeID(9, 42))
}

func TestForwardedAlarmType(t *testing.T) {
	name, severity := ForwardedAlarmType(100001)
	assert.Equal(t, "Emergency alarm", name)
	assert.Equal(t, model.SeverityCritical, severity)

	name, severity = ForwardedAlarmType(999999)
	assert.Equal(t, "Device alarm (999999)", name)
	assert.Equal(t, model.SeverityInfo, severity)
}

func TestTaxonomiesStayDistinct(t *testing.T) {
	// Query-path family code 2 (Overspeed) and forwarded 100002 share a
	// concept but live in separate taxonomies with separate keys.
	name, _ := ForwardedAlarmType(ForwardedTypeID(1, 2))
	assert.Equal(t, "Overspeed", name)
	assert.NotEqual(t, 2, ForwardedTypeID(1, 2))
}
