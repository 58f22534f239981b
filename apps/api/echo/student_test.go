package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/student"
	"github.com/trezcool/makazi/core/user"
)

func Test_studentApi_create(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	deps.createRoom(t, "A1", 2)
	deps.createStudent(t, "Taken Kid", "taken@test.cd", "RN-000", 100)

	staffToken := getToken(t, staff)
	reqMsg := "this field is required"

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "required fields", token: staffToken, wantCode: http.StatusBadRequest, body: []byte(`{}`),
			wantData: marchallObj(t, map[string]string{"name": reqMsg, "email": reqMsg, "roll_number": reqMsg}),
		},
		{
			name: "duplicate email", token: staffToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, RegisterStudentRequest{NewStudent: student.NewStudent{Name: "Jo Kid", Email: "taken@test.cd", RollNumber: "RN-001"}}),
			wantData: marchallObj(t, map[string]string{"email": "a student with this email already exists"}),
		},
		{
			name: "registered", token: staffToken, wantCode: http.StatusCreated,
			body: marchallObj(t, RegisterStudentRequest{
				NewStudent:   student.NewStudent{Name: "Jo Kid", Email: "jo@test.cd", RollNumber: "RN-001", TotalFee: 900},
				Installments: &billing.NewInstallmentPlan{TotalFee: 900, Count: 3, StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
				AutoAllocate: true,
			}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/students"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var resp RegisterStudentResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if resp.ID == "" || resp.TotalFee != 900 {
					t.Errorf("failed! student = %+v", resp.Student)
				}
				if len(resp.Installments) != 3 || resp.Installments[0].Amount != 300 {
					t.Errorf("failed! installments = %+v; want 3 of 300", resp.Installments)
				}
				if resp.Allocation == nil || resp.Allocation.StudentID != resp.ID {
					t.Errorf("failed! allocation = %+v", resp.Allocation)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_query(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	jo := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 100)
	ben := deps.createStudent(t, "Ben Jr", "ben@test.cd", "RN-002", 100)

	staffToken := getToken(t, staff)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Get all", path: "/v1/students", token: staffToken, wantData: marchallList(t, jo, ben)},
		{name: "search (unknown)", path: "/v1/students?search=lol", token: staffToken, wantData: marchallList(t)},
		{name: "search by name", path: "/v1/students?search=ben", token: staffToken, wantData: marchallList(t, ben)},
		{name: "search by roll number", path: "/v1/students?search=rn-001", token: staffToken, wantData: marchallList(t, jo)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_retrieve(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	std := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 900)
	rm := deps.createRoom(t, "A1", 2)

	ctx := context.Background()
	alloc, err := deps.roomSvc.Allocate(ctx, std.ID, rm.ID)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err = deps.billingSvc.Generate(ctx, std.ID, billing.NewInstallmentPlan{TotalFee: 900, Count: 3, StartDate: start}); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if _, err = deps.billingSvc.MarkPaid(ctx, std.ID, 1); err != nil {
		t.Fatalf("MarkPaid() failed: %v", err)
	}

	staffToken := getToken(t, staff)

	req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+std.ID, staffToken)
	deps.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp StudentDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if resp.Room == nil || resp.Room.ID != rm.ID {
		t.Errorf("failed! room = %+v; want %s", resp.Room, rm.ID)
	}
	if resp.Allocation == nil || resp.Allocation.ID != alloc.ID {
		t.Errorf("failed! allocation = %+v; want %s", resp.Allocation, alloc.ID)
	}
	if len(resp.Installments) != 3 {
		t.Errorf("failed! installments = %+v; want 3", resp.Installments)
	}
	if resp.TotalPaid != 300 || resp.RemainingFee != 600 {
		t.Errorf("failed! totals = {%v %v}; want {300 600}", resp.TotalPaid, resp.RemainingFee)
	}

	// unknown student
	tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"})}
	req, rec = newAuthRequest(http.MethodGet, "/v1/students/nope", staffToken)
	deps.app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_studentApi_update(t *testing.T) {
	deps := setupServer(t)

	admin := deps.createUser(t, "Admin", "admin1", "admin@test.cd", "", user.AllRoles, true)
	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	std := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 900)

	tests := []httpTest{
		{
			name: "only admin can change the fee", token: getToken(t, staff), wantCode: http.StatusForbidden,
			body:     []byte(`{"name":"Jo Kid","email":"jo@test.cd","total_fee":100}`),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "staff updates contact info", token: getToken(t, staff), wantCode: http.StatusOK,
			body: []byte(`{"name":"Jo Kid Jr","email":"jo@test.cd","phone":"0812345678"}`),
		},
		{
			name: "admin changes the fee", token: getToken(t, admin), wantCode: http.StatusOK,
			body: []byte(`{"name":"Jo Kid Jr","email":"jo@test.cd","total_fee":1200}`),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = "/v1/students/" + std.ID

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var got student.Student
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Name != "Jo Kid Jr" {
					t.Errorf("failed! name = %q; want Jo Kid Jr", got.Name)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_destroy(t *testing.T) {
	deps := setupServer(t)

	admin := deps.createUser(t, "Admin", "admin1", "admin@test.cd", "", user.AllRoles, true)
	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	std := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 900)

	req, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+std.ID, getToken(t, staff))
	deps.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/students/"+std.ID, getToken(t, admin))
	deps.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusNoContent)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/students/"+std.ID, getToken(t, admin))
	deps.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"})}, rec)
}
