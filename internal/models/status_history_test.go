package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryMetadataValidate(t *testing.T) {
	engineer := uuid.New()

	tests := []struct {
		name    string
		meta    models.HistoryMetadata
		wantErr bool
	}{
		{"created carries nothing", models.HistoryMetadata{Action: models.HistoryActionCreated}, false},
		{"assigned with assignment", models.HistoryMetadata{Action: models.HistoryActionAssigned, Assignment: &models.AssignmentDetails{EngineerID: engineer}}, false},
		{"assigned without payload", models.HistoryMetadata{Action: models.HistoryActionAssigned}, true},
		{"assigned with nil engineer", models.HistoryMetadata{Action: models.HistoryActionAssigned, Assignment: &models.AssignmentDetails{}}, true},
		{"resolved with wrong payload", models.HistoryMetadata{Action: models.HistoryActionResolved, Otp: &models.OtpDetails{}}, true},
		{"visited may carry otp", models.HistoryMetadata{Action: models.HistoryActionVisited, Otp: &models.OtpDetails{}}, false},
		{"visited without otp", models.HistoryMetadata{Action: models.HistoryActionVisited}, false},
		{"removed with extra payload", models.HistoryMetadata{Action: models.HistoryActionRemoved, Reopen: &models.ReopenDetails{}}, true},
		{"edit needs changes", models.HistoryMetadata{Action: models.HistoryActionEdited, Edit: &models.EditDetails{}}, true},
		{"unknown action", models.HistoryMetadata{Action: "escalated"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHistoryEntry_StoresTaggedMetadata(t *testing.T) {
	complaintID := uuid.New()
	engineer := uuid.New()
	previous := models.StatusPending
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	entry, err := models.NewHistoryEntry(complaintID, models.StatusAssigned, &previous, nil, "", models.HistoryMetadata{
		Action:     models.HistoryActionAssigned,
		Assignment: &models.AssignmentDetails{EngineerID: engineer},
	}, at)
	require.NoError(t, err)

	assert.Equal(t, models.HistoryActionAssigned, entry.Action)
	assert.Nil(t, entry.Remarks)

	decoded, err := entry.DecodeMetadata()
	require.NoError(t, err)
	require.NotNil(t, decoded.Assignment)
	assert.Equal(t, engineer, decoded.Assignment.EngineerID)
}

func TestAnalyticsPeriodPrevious(t *testing.T) {
	to := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	p := models.AnalyticsPeriod{From: to.AddDate(0, 0, -30), To: to}

	prev := p.Previous()

	assert.Equal(t, p.From, prev.To)
	assert.Equal(t, p.Length(), prev.Length())
	assert.True(t, p.Contains(p.From))
	assert.False(t, p.Contains(p.To))
}
