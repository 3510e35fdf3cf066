package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/storage"
)

func newInsightRouter(t *testing.T, resolver fakeResolver, finder fakeFinder) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()

	store, mock := newMockStorage(t)
	router := mux.NewRouter()
	NewInsightHandlers(store, newTestAuthz(t, resolver, finder)).RegisterRoutes(router)
	return router, mock
}

func insightFinder(businessID int64) fakeFinder {
	return fakeFinder{
		finderKey(authz.ResourceTypeInsight, businessID): {
			ID: businessID, Type: authz.ResourceTypeInsight, BusinessID: businessID,
		},
	}
}

func TestRevenueSummaryEmployeeAllowed(t *testing.T) {
	// Insight reads admit all three roles, including employees
	resolver := fakeResolver{resolverKey(12, 1): authz.RoleEmployee}
	router, mock := newInsightRouter(t, resolver, insightFinder(1))

	mock.ExpectQuery("FROM payments").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"order_count", "payment_count", "collected", "refunded"}).
			AddRow(int64(4), int64(3), int64(10000), int64(0)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/businesses/1/insights/revenue", nil, 12))

	require.Equal(t, http.StatusOK, rec.Code)

	var summary storage.RevenueSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(10000), summary.CollectedCents)
}

func TestRevenueSummaryNonMemberDenied(t *testing.T) {
	router, mock := newInsightRouter(t, fakeResolver{}, insightFinder(1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/businesses/1/insights/revenue", nil, 999))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
