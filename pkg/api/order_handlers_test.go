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

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/storage"
)

func orderColumns() []string {
	return []string{"id", "business_id", "customer_id", "status", "total_cents", "currency", "created_at", "updated_at"}
}

// newOrderRouter wires order routes over fake authz data and a mocked store
func newOrderRouter(t *testing.T, resolver fakeResolver, finder fakeFinder) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()

	store, mock := newMockStorage(t)
	router := mux.NewRouter()
	NewOrderHandlers(store, newTestAuthz(t, resolver, finder), audit.NewNoOpLogger()).RegisterRoutes(router)
	return router, mock
}

func TestGetOrderAsCustomer(t *testing.T) {
	customerID := int64(20)
	finder := fakeFinder{
		finderKey(authz.ResourceTypeOrder, 100): {
			ID: 100, Type: authz.ResourceTypeOrder, BusinessID: 1, OwnerID: &customerID,
		},
	}
	// The customer holds no membership; only the owner short-circuit admits them.
	router, mock := newOrderRouter(t, fakeResolver{}, finder)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow(int64(100), int64(1), customerID, "pending", int64(2500), "USD", testTime(), testTime()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/orders/100", nil, customerID))

	assert.Equal(t, http.StatusOK, rec.Code)

	var order storage.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, int64(100), order.ID)
}

func TestGetOrderStrangerDenied(t *testing.T) {
	customerID := int64(20)
	finder := fakeFinder{
		finderKey(authz.ResourceTypeOrder, 100): {
			ID: 100, Type: authz.ResourceTypeOrder, BusinessID: 1, OwnerID: &customerID,
		},
	}
	router, mock := newOrderRouter(t, fakeResolver{}, finder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/orders/100", nil, 999))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	// Denied before any store query ran
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusAsManager(t *testing.T) {
	finder := fakeFinder{
		finderKey(authz.ResourceTypeOrder, 100): {ID: 100, Type: authz.ResourceTypeOrder, BusinessID: 1},
	}
	resolver := fakeResolver{resolverKey(11, 1): authz.RoleManager}
	router, mock := newOrderRouter(t, resolver, finder)

	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(storage.OrderStatusShipped, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("PUT", "/orders/100/status",
		jsonBody(t, &UpdateOrderStatusRequest{Status: "shipped"}), 11))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusEmployeeDenied(t *testing.T) {
	finder := fakeFinder{
		finderKey(authz.ResourceTypeOrder, 100): {ID: 100, Type: authz.ResourceTypeOrder, BusinessID: 1},
	}
	resolver := fakeResolver{resolverKey(12, 1): authz.RoleEmployee}
	router, mock := newOrderRouter(t, resolver, finder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("PUT", "/orders/100/status",
		jsonBody(t, &UpdateOrderStatusRequest{Status: "shipped"}), 12))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderEmployeeOfBusinessAllowed(t *testing.T) {
	finder := fakeFinder{
		finderKey(authz.ResourceTypeOrder, 100): {ID: 100, Type: authz.ResourceTypeOrder, BusinessID: 1},
	}
	resolver := fakeResolver{resolverKey(12, 1): authz.RoleEmployee}
	router, mock := newOrderRouter(t, resolver, finder)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow(int64(100), int64(1), nil, "pending", int64(900), "USD", testTime(), testTime()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/orders/100", nil, 12))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderUnknownResourceDenied(t *testing.T) {
	router, _ := newOrderRouter(t, fakeResolver{resolverKey(10, 1): authz.RoleOwner}, fakeFinder{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/orders/404", nil, 10))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetOrderUnauthenticated(t *testing.T) {
	router, _ := newOrderRouter(t, fakeResolver{}, fakeFinder{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/100", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderForBusiness(t *testing.T) {
	finder := fakeFinder{
		finderKey(authz.ResourceTypeBusiness, 1): {ID: 1, Type: authz.ResourceTypeBusiness, BusinessID: 1},
	}
	resolver := fakeResolver{resolverKey(12, 1): authz.RoleEmployee}
	router, mock := newOrderRouter(t, resolver, finder)

	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(1), nil, storage.OrderStatusPending, int64(2500), "USD").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(101), testTime(), testTime()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/businesses/1/orders",
		jsonBody(t, &storage.CreateOrderRequest{TotalCents: 2500}), 12))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersNonMemberDenied(t *testing.T) {
	finder := fakeFinder{
		finderKey(authz.ResourceTypeBusiness, 1): {ID: 1, Type: authz.ResourceTypeBusiness, BusinessID: 1},
	}
	router, _ := newOrderRouter(t, fakeResolver{}, finder)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/businesses/1/orders", nil, 999))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
