package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
)

type hourAnnouncerMock struct {
	report    *models.PlaybackReport
	err       error
	announced string
}

func (m *hourAnnouncerMock) Compose(hour, minute int) ([]models.Fragment, error) {
	if hour > 23 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hour must be between 0 and 23")
	}
	if minute == 0 {
		return []models.Fragment{{Name: "HRS14_O"}}, nil
	}
	return []models.Fragment{{Name: "HRS14"}, {Name: "MIN05"}}, nil
}

func (m *hourAnnouncerMock) CheckFragments(context.Context) models.FragmentReport {
	return models.FragmentReport{Total: 107, Available: 106, Missing: []models.FragmentProbe{{Fragment: models.Fragment{Name: "MIN37"}}}}
}

func (m *hourAnnouncerMock) AnnounceNow(_ context.Context, unitID string) (*models.PlaybackReport, error) {
	m.announced = unitID
	return m.report, m.err
}

func TestHourHandlerCompose(t *testing.T) {
	h := NewHourHandler(&hourAnnouncerMock{})

	c, w := newContext(http.MethodGet, "/audio/hours/compose?hour=14&minute=5", "", adminClaims())
	h.Compose(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MIN05")

	c, w = newContext(http.MethodGet, "/audio/hours/compose?hour=14", "", adminClaims())
	h.Compose(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "HRS14_O")

	c, w = newContext(http.MethodGet, "/audio/hours/compose?hour=ten", "", adminClaims())
	h.Compose(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext(http.MethodGet, "/audio/hours/compose?hour=24&minute=0", "", adminClaims())
	h.Compose(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHourHandlerCheck(t *testing.T) {
	h := NewHourHandler(&hourAnnouncerMock{})
	c, w := newContext(http.MethodGet, "/audio/hours/check", "", adminClaims())
	h.Check(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MIN37")
}

func TestHourHandlerAnnounceFailureKeepsReport(t *testing.T) {
	mock := &hourAnnouncerMock{
		report: &models.PlaybackReport{State: models.PlaybackFailed, FailedFragment: "MIN05"},
		err:    appErrors.Clone(appErrors.ErrFragmentMissing, "fragment MIN05 is missing"),
	}
	h := NewHourHandler(mock)

	c, w := newContext(http.MethodPost, "/units/unit-a/hour-announcement", "", adminClaims())
	c.Params = gin.Params{{Key: "unitId", Value: "unit-a"}}
	h.Announce(c)

	require.Equal(t, http.StatusFailedDependency, w.Code)
	assert.Equal(t, "unit-a", mock.announced)
	assert.Contains(t, w.Body.String(), `"failed_fragment":"MIN05"`)
	assert.Contains(t, w.Body.String(), "FRAGMENT_MISSING")
}

func TestHourHandlerAnnounce(t *testing.T) {
	mock := &hourAnnouncerMock{report: &models.PlaybackReport{State: models.PlaybackDone}}
	h := NewHourHandler(mock)

	c, w := newContext(http.MethodPost, "/units/unit-a/hour-announcement", "", adminClaims())
	c.Params = gin.Params{{Key: "unitId", Value: "unit-a"}}
	h.Announce(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"done"`)
}
