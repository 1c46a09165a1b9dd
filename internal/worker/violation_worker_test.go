package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
)

func TestToRowMapsPayload(t *testing.T) {
	examID := uuid.New()
	row, err := toRow(&repository.ViolationPayload{
		ExamID:       examID.String(),
		StudentEmail: "student@example.com",
		Type:         string(model.ViolationTabSwitch),
		Details:      "tab hidden",
		Timestamp:    1700000000,
	})
	require.NoError(t, err)

	assert.Equal(t, examID, row.ExamID)
	assert.Equal(t, "student@example.com", row.StudentEmail)
	assert.Equal(t, model.ViolationTabSwitch, row.Type)
	assert.Equal(t, "tab hidden", row.Details)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), row.RecordedAt)
}

func TestToRowRejectsInvalidExamID(t *testing.T) {
	_, err := toRow(&repository.ViolationPayload{
		ExamID: "not-a-uuid",
		Type:   string(model.ViolationTabSwitch),
	})
	require.Error(t, err)
}

func TestToRowRejectsUnknownViolationType(t *testing.T) {
	_, err := toRow(&repository.ViolationPayload{
		ExamID: uuid.New().String(),
		Type:   "telepathy",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown violation type")
}
