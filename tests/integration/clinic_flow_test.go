package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/clinicdesk/internal/models"
)

func TestRecordVisit_DecrementsStock(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("visits")
	_, err := SeedUser(ctx, testDB.Pool, email, password, models.RoleNurse)
	require.NoError(t, err)
	medicine, err := SeedMedicine(ctx, testDB.Pool, "Paracetamol", 10)
	require.NoError(t, err)

	cookie, err := testServer.SignIn(email, password)
	require.NoError(t, err)

	resp, err := testServer.RequestWithSession("POST", "/visits", cookie, map[string]any{
		"student_name": "Jamie Rivera",
		"reason":       "headache",
		"treatment":    "rest and fluids",
		"medicine_id":  medicine.ID,
		"quantity":     3,
	})
	require.NoError(t, err)

	var visit struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &visit))
	assert.Equal(t, 3, visit.Quantity)

	// Stock was decremented in the same transaction
	resp, err = testServer.RequestWithSession("GET", "/medicines/"+medicine.ID, cookie, nil)
	require.NoError(t, err)
	var got struct {
		Stock int `json:"stock"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &got))
	assert.Equal(t, 7, got.Stock)
}

func TestRecordVisit_InsufficientStockRejected(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("stockout")
	_, err := SeedUser(ctx, testDB.Pool, email, password, models.RoleNurse)
	require.NoError(t, err)
	medicine, err := SeedMedicine(ctx, testDB.Pool, "Ibuprofen", 2)
	require.NoError(t, err)

	cookie, err := testServer.SignIn(email, password)
	require.NoError(t, err)

	resp, err := testServer.RequestWithSession("POST", "/visits", cookie, map[string]any{
		"student_name": "Sam Lee",
		"reason":       "sprain",
		"medicine_id":  medicine.ID,
		"quantity":     5,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Stock is untouched after the rejected dispense
	resp, err = testServer.RequestWithSession("GET", "/medicines/"+medicine.ID, cookie, nil)
	require.NoError(t, err)
	var got struct {
		Stock int `json:"stock"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &got))
	assert.Equal(t, 2, got.Stock)
}

func TestAppointments_CreateAndQR(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("appointments")
	_, err := SeedUser(ctx, testDB.Pool, email, password, models.RoleNurse)
	require.NoError(t, err)

	cookie, err := testServer.SignIn(email, password)
	require.NoError(t, err)

	startsAt := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	resp, err := testServer.RequestWithSession("POST", "/appointments", cookie, map[string]string{
		"student_name": "Alex Kim",
		"starts_at":    startsAt,
		"reason":       "vaccination",
	})
	require.NoError(t, err)

	var created struct {
		ID          string `json:"id"`
		StudentName string `json:"student_name"`
	}
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &created))
	assert.Equal(t, "Alex Kim", created.StudentName)

	resp, err = testServer.RequestWithSession("GET", "/appointments", cookie, nil)
	require.NoError(t, err)
	var list struct {
		Appointments []struct {
			ID string `json:"id"`
		} `json:"appointments"`
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &list))
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, created.ID, list.Appointments[0].ID)

	// The check-in QR code renders as PNG
	resp, err = testServer.RequestWithSession("GET", "/appointments/"+created.ID+"/qr", cookie, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestAppointments_PastStartRejected(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	email, password := TestUser("pastappt")
	_, err := SeedUser(ctx, testDB.Pool, email, password, models.RoleNurse)
	require.NoError(t, err)

	cookie, err := testServer.SignIn(email, password)
	require.NoError(t, err)

	startsAt := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
	resp, err := testServer.RequestWithSession("POST", "/appointments", cookie, map[string]string{
		"student_name": "Alex Kim",
		"starts_at":    startsAt,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReports_RoleGate(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	nurseEmail, nursePassword := TestUser("nurse")
	_, err := SeedUser(ctx, testDB.Pool, nurseEmail, nursePassword, models.RoleNurse)
	require.NoError(t, err)
	adminEmail, adminPassword := TestUser("admin")
	_, err = SeedUser(ctx, testDB.Pool, adminEmail, adminPassword, models.RoleAdmin)
	require.NoError(t, err)

	payload := map[string]string{
		"kind": "visit_summary",
		"from": "2026-08-01",
		"to":   "2026-08-31",
	}

	nurseCookie, err := testServer.SignIn(nurseEmail, nursePassword)
	require.NoError(t, err)
	resp, err := testServer.RequestWithSession("POST", "/reports", nurseCookie, payload)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	adminCookie, err := testServer.SignIn(adminEmail, adminPassword)
	require.NoError(t, err)
	resp, err = testServer.RequestWithSession("POST", "/reports", adminCookie, payload)
	require.NoError(t, err)
	var report struct {
		Kind    string `json:"kind"`
		Content string `json:"content"`
		Model   string `json:"model"`
	}
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &report))
	assert.Equal(t, "visit_summary", report.Kind)
	assert.Equal(t, "Stub report content.", report.Content)
	assert.Equal(t, "stub-model", report.Model)
}

func TestAuditTrail_AdminOnly(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	nurseEmail, nursePassword := TestUser("auditnurse")
	_, err := SeedUser(ctx, testDB.Pool, nurseEmail, nursePassword, models.RoleNurse)
	require.NoError(t, err)
	adminEmail, adminPassword := TestUser("auditadmin")
	_, err = SeedUser(ctx, testDB.Pool, adminEmail, adminPassword, models.RoleAdmin)
	require.NoError(t, err)

	nurseCookie, err := testServer.SignIn(nurseEmail, nursePassword)
	require.NoError(t, err)
	resp, err := testServer.RequestWithSession("GET", "/audit", nurseCookie, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	adminCookie, err := testServer.SignIn(adminEmail, adminPassword)
	require.NoError(t, err)
	resp, err = testServer.RequestWithSession("GET", "/audit", adminCookie, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
