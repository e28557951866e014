package controllers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/tests/testutil"
)

func setupOrderRouter(current *models.Master) *gin.Engine {
	router := setupTestRouter()
	orders := router.Group("/orders", testutil.MockAuthMiddleware(current))
	orders.GET("", ListOrders)
	orders.POST("", CreateOrder)
	orders.GET("/:id", GetOrder)
	orders.PUT("/:id", UpdateOrder)
	orders.DELETE("/:id", DeleteOrder)
	orders.PATCH("/:id/status", ChangeOrderStatus)
	orders.GET("/:id/distribution", GetOrderDistribution)
	orders.POST("/:id/image", UploadOrderImage)
	return router
}

func newOrderBody(masters ...map[string]interface{}) map[string]interface{} {
	assignments := make([]interface{}, 0, len(masters))
	for _, m := range masters {
		assignments = append(assignments, m)
	}
	return map[string]interface{}{
		"client_name":  "Иван Петров",
		"client_phone": "+7 999 111-22-33",
		"car_model":    "Toyota Camry",
		"car_number":   "а123вс77",
		"masters":      assignments,
		"works": []interface{}{
			map[string]interface{}{"name": "Замена стартера", "price": "6000"},
		},
		"materials": []interface{}{
			map[string]interface{}{"name": "Провод", "price": "500", "quantity": 2},
		},
		"parts": []interface{}{
			map[string]interface{}{"name": "Стартер", "price": "3000"},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	inactive := testutil.CreateMaster(t, db, "Уволенный", models.RoleMaster)
	testutil.Deactivate(t, db, inactive)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, data map[string]interface{})
	}{
		{
			name: "Successfully create order with explicit shares",
			requestBody: newOrderBody(
				map[string]interface{}{"master_id": first.ID, "work_percentage": "70"},
				map[string]interface{}{"master_id": second.ID, "work_percentage": "30"},
			),
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, data map[string]interface{}) {
				assert.Equal(t, "pending", data["status"])
				assert.Equal(t, "А123ВС77", data["car_number"])
				assert.Equal(t, "10000", data["total_amount"])
				assert.Equal(t, float64(director.ID), data["created_by_id"])
				masters := data["masters"].([]interface{})
				require.Len(t, masters, 2)
				assert.Equal(t, "70", masters[0].(map[string]interface{})["work_percentage"])
			},
		},
		{
			name: "Omitted shares default to an equal split",
			requestBody: newOrderBody(
				map[string]interface{}{"master_id": first.ID},
				map[string]interface{}{"master_id": second.ID},
				map[string]interface{}{"master_id": director.ID},
			),
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, data map[string]interface{}) {
				masters := data["masters"].([]interface{})
				require.Len(t, masters, 3)
				assert.Equal(t, "33.34", masters[0].(map[string]interface{})["work_percentage"])
				assert.Equal(t, "33.33", masters[1].(map[string]interface{})["work_percentage"])
			},
		},
		{
			name: "Fail when shares do not sum to 100",
			requestBody: newOrderBody(
				map[string]interface{}{"master_id": first.ID, "work_percentage": "60"},
				map[string]interface{}{"master_id": second.ID, "work_percentage": "30"},
			),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedError:  "INCONSISTENT_PERCENTAGES",
		},
		{
			name:           "Fail with inactive master",
			requestBody:    newOrderBody(map[string]interface{}{"master_id": inactive.ID}),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedError:  "INVALID_ASSIGNMENT",
		},
		{
			name:           "Fail without masters",
			requestBody:    newOrderBody(),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name: "Fail with missing client name",
			requestBody: func() map[string]interface{} {
				body := newOrderBody(map[string]interface{}{"master_id": first.ID})
				delete(body, "client_name")
				return body
			}(),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupOrderRouter(director)

			w := performRequest(router, http.MethodPost, "/orders", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(t, w))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, responseData(t, w))
			}
		})
	}
}

func TestListOrders_Visibility(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: first, WorkPercentage: "100"})
	testutil.CreateOrder(t, db, director, "2000", testutil.Assignment{Master: second, WorkPercentage: "100"})
	testutil.CreateOrder(t, db, director, "3000",
		testutil.Assignment{Master: first, WorkPercentage: "50"},
		testutil.Assignment{Master: second, WorkPercentage: "50"},
	)

	tests := []struct {
		name          string
		actor         *models.Master
		query         string
		expectedTotal float64
		expectedItems int
	}{
		{"Director sees every order", director, "", 3, 3},
		{"Master sees assigned orders", first, "", 2, 2},
		{"Other master sees assigned orders", second, "", 2, 2},
		{"Pagination limits the page", director, "?page=2&limit=2", 3, 1},
		{"Status filter", director, "?status=completed", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupOrderRouter(tt.actor)
			w := performRequest(router, http.MethodGet, "/orders"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)

			response := decodeResponse(t, w)
			assert.Len(t, response["data"].([]interface{}), tt.expectedItems)
			pagination := response["pagination"].(map[string]interface{})
			assert.Equal(t, tt.expectedTotal, pagination["total"])
		})
	}

	router := setupOrderRouter(director)
	w := performRequest(router, http.MethodGet, "/orders?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = performRequest(router, http.MethodGet, "/orders?date_from=01.01.2024", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder_Authorization(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	assigned := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	other := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: assigned, WorkPercentage: "100"})
	path := fmt.Sprintf("/orders/%d", order.ID)

	w := performRequest(setupOrderRouter(assigned), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(setupOrderRouter(director), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(setupOrderRouter(other), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))

	w = performRequest(setupOrderRouter(director), http.MethodGet, "/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(setupOrderRouter(director), http.MethodGet, "/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeOrderStatus_CompletionAllocatesBonuses(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000",
		testutil.Assignment{Master: first, WorkPercentage: "70"},
		testutil.Assignment{Master: second, WorkPercentage: "30"},
	)
	router := setupOrderRouter(first)
	statusPath := fmt.Sprintf("/orders/%d/status", order.ID)

	w := performRequest(router, http.MethodPatch, statusPath, map[string]interface{}{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := responseData(t, w)
	assert.Equal(t, "pending", data["from"])
	assert.Equal(t, "completed", data["to"])
	allocation := data["allocation"].(map[string]interface{})
	assert.Equal(t, "5000", allocation["owner_amount"])
	assert.Equal(t, "5000", allocation["workers_amount"])

	var bonuses []models.Bonus
	require.NoError(t, db.Order("master_id").Find(&bonuses).Error)
	require.Len(t, bonuses, 2)
	assert.Equal(t, "3500", bonuses[0].Amount.String())
	assert.Equal(t, "1500", bonuses[1].Amount.String())

	w = performRequest(router, http.MethodGet, fmt.Sprintf("/orders/%d/distribution", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	distribution := responseData(t, w)
	assert.Equal(t, false, distribution["preview"])
	assert.Len(t, distribution["allocation"].(map[string]interface{})["bonuses"], 2)

	w = performRequest(router, http.MethodPatch, statusPath, map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ALLOCATION", errorCode(t, w))

	w = performRequest(router, http.MethodPut, fmt.Sprintf("/orders/%d", order.ID), map[string]interface{}{"client_name": "Новое имя"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "STATE_CONFLICT", errorCode(t, w))

	w = performRequest(setupOrderRouter(director), http.MethodDelete, fmt.Sprintf("/orders/%d", order.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "STATE_CONFLICT", errorCode(t, w))
}

func TestChangeOrderStatus_Errors(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	other := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	statusPath := fmt.Sprintf("/orders/%d/status", order.ID)

	w := performRequest(setupOrderRouter(master), http.MethodPatch, statusPath, map[string]interface{}{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(setupOrderRouter(master), http.MethodPatch, statusPath, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(setupOrderRouter(other), http.MethodPatch, statusPath, map[string]interface{}{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(setupOrderRouter(master), http.MethodPatch, statusPath, map[string]interface{}{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(setupOrderRouter(master), http.MethodPatch, statusPath, map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "STATE_CONFLICT", errorCode(t, w))

	var count int64
	require.NoError(t, db.Model(&models.Bonus{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetOrderDistribution_Preview(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "3000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	testutil.SetOwnerPercentage(t, db, "40")

	w := performRequest(setupOrderRouter(director), http.MethodGet, fmt.Sprintf("/orders/%d/distribution", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := responseData(t, w)
	assert.Equal(t, true, data["preview"])
	allocation := data["allocation"].(map[string]interface{})
	assert.Equal(t, "1200", allocation["owner_amount"])
	assert.Equal(t, "1800", allocation["workers_amount"])

	var count int64
	require.NoError(t, db.Model(&models.OrderAllocation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateAndDeleteOrder(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: first, WorkPercentage: "100"})
	router := setupOrderRouter(director)
	path := fmt.Sprintf("/orders/%d", order.ID)

	w := performRequest(router, http.MethodPut, path, map[string]interface{}{
		"car_model": "Kia Rio",
		"masters": []interface{}{
			map[string]interface{}{"master_id": first.ID, "work_percentage": "40"},
			map[string]interface{}{"master_id": second.ID, "work_percentage": "60"},
		},
		"works": []interface{}{
			map[string]interface{}{"name": "Ремонт проводки", "price": "2500.50"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := responseData(t, w)
	assert.Equal(t, "Kia Rio", data["car_model"])
	assert.Equal(t, "2500.5", data["total_amount"])
	assert.Len(t, data["masters"], 2)

	w = performRequest(router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newImageUploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadOrderImage(t *testing.T) {
	db := setupTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	other := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: master, WorkPercentage: "100"})

	mockImages := services.NewMockImageService()
	previous := services.GetImageService()
	mockImages.SetAsMockForTesting()
	t.Cleanup(func() { services.SetImageService(previous) })

	path := fmt.Sprintf("/orders/%d/image", order.ID)
	router := setupOrderRouter(master)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newImageUploadRequest(t, path, "before.png", []byte("png-bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := responseData(t, w)
	firstKey := fmt.Sprintf("orders/%d/mock_before.png", order.ID)
	assert.Equal(t, firstKey, data["image_s3_key"])
	assert.Contains(t, data["image_url"], firstKey)
	assert.True(t, mockImages.ImageExists(firstKey))

	// a new photo replaces the previous one in storage
	w = httptest.NewRecorder()
	router.ServeHTTP(w, newImageUploadRequest(t, path, "after.jpg", []byte("jpeg-bytes")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mockImages.ImageExists(firstKey))
	assert.Equal(t, 1, mockImages.Count())

	w = performRequest(router, http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, responseData(t, w)["image_url"], "mock_after.jpg")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newImageUploadRequest(t, path, "notes.txt", []byte("text")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = httptest.NewRecorder()
	setupOrderRouter(other).ServeHTTP(w, newImageUploadRequest(t, path, "other.png", []byte("png-bytes")))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, mockImages.Count())
}
