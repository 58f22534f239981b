package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/user"
)

func Test_roomApi_create(t *testing.T) {
	deps := setupServer(t)

	admin := deps.createUser(t, "Admin", "admin1", "admin@test.cd", "", user.AllRoles, true)
	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	deps.createRoom(t, "A1", 2)

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, staff), wantCode: http.StatusForbidden,
			body:     marchallObj(t, room.NewRoom{Number: "B1"}),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: adminToken, wantCode: http.StatusBadRequest, body: []byte(`{}`),
			wantData: marchallObj(t, map[string]string{"number": "this field is required"}),
		},
		{
			name: "duplicate number", token: adminToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, room.NewRoom{Number: "a1"}),
			wantData: marchallObj(t, map[string]string{"number": "a room with this number already exists"}),
		},
		{name: "default capacity", token: adminToken, wantCode: http.StatusCreated, body: marchallObj(t, room.NewRoom{Number: "B1"}), extra: 2},
		{name: "explicit capacity", token: adminToken, wantCode: http.StatusCreated, body: marchallObj(t, room.NewRoom{Number: "B2", Capacity: 4}), extra: 4},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/rooms"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var rm room.Room
				if err := json.Unmarshal(rec.Body.Bytes(), &rm); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if want := tt.extra.(int); rm.Capacity != want {
					t.Errorf("failed! capacity = %d; want %d", rm.Capacity, want)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_roomApi_query(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	rm1 := deps.createRoom(t, "A1", 1)
	rm2 := deps.createRoom(t, "A2", 2)
	std := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 100)

	if _, err := deps.roomSvc.Allocate(context.Background(), std.ID, rm1.ID); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}

	staffToken := getToken(t, staff)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/rooms", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "all rooms with occupancy", path: "/v1/rooms", token: staffToken,
			wantData: marchallList(t,
				room.Occupancy{Room: rm1, Occupied: 1, Vacant: 0},
				room.Occupancy{Room: rm2, Occupied: 0, Vacant: 2},
			),
		},
		{
			name: "only available rooms", path: "/v1/rooms/available", token: staffToken,
			wantData: marchallList(t, room.Occupancy{Room: rm2, Occupied: 0, Vacant: 2}),
		},
		{name: "retrieve", path: "/v1/rooms/" + rm1.ID, token: staffToken, wantData: marchallObj(t, rm1)},
		{name: "unknown room", path: "/v1/rooms/nope", token: staffToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "room not found"})},
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

func Test_roomApi_allocations(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	rm := deps.createRoom(t, "A1", 1)
	jo := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 100)
	ben := deps.createStudent(t, "Ben Jr", "ben@test.cd", "RN-002", 100)

	staffToken := getToken(t, staff)

	tests := []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/allocations", wantCode: http.StatusBadRequest, body: []byte(`{}`),
			wantData: marchallObj(t, map[string]string{"student_id": "this field is required"}),
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/allocations", wantCode: http.StatusNotFound,
			body:     marchallObj(t, AllocationRequest{StudentID: "nope", RoomID: rm.ID}),
			wantData: marchallObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "allocated", method: http.MethodPost, path: "/v1/allocations", wantCode: http.StatusCreated,
			body: marchallObj(t, AllocationRequest{StudentID: jo.ID, RoomID: rm.ID}),
		},
		{
			name: "room full", method: http.MethodPost, path: "/v1/allocations", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, AllocationRequest{StudentID: ben.ID, RoomID: rm.ID}),
			wantData: marchallObj(t, httpErr{Error: "room is already at full capacity"}),
		},
		{
			name: "no room with capacity left", method: http.MethodPost, path: "/v1/allocations", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, AllocationRequest{StudentID: ben.ID}),
			wantData: marchallObj(t, httpErr{Error: "no room with free capacity left"}),
		},
		{name: "vacated", method: http.MethodDelete, path: "/v1/allocations/" + jo.ID, wantCode: http.StatusOK},
		{
			name: "already vacated", method: http.MethodDelete, path: "/v1/allocations/" + jo.ID, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "student is not allocated to any room"}),
		},
	}
	for _, tt := range tests {
		tt.token = staffToken

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)

			switch tt.name {
			case "allocated":
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var alloc room.Allocation
				if err := json.Unmarshal(rec.Body.Bytes(), &alloc); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if alloc.StudentID != jo.ID || alloc.RoomID != rm.ID || !alloc.Open() {
					t.Errorf("failed! allocation = %+v", alloc)
				}
			case "vacated":
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var alloc room.Allocation
				if err := json.Unmarshal(rec.Body.Bytes(), &alloc); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if alloc.Open() {
					t.Errorf("failed! allocation still open: %+v", alloc)
				}
			default:
				checkCodeAndData(t, tt, rec)
			}
		})
	}
}

func Test_roomApi_queryStudents(t *testing.T) {
	deps := setupServer(t)

	staff := deps.createUser(t, "Staff", "staff1", "staff@test.cd", "", []string{user.RoleStaff}, true)
	rm := deps.createRoom(t, "A1", 2)
	jo := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 100)

	if _, err := deps.roomSvc.Allocate(context.Background(), jo.ID, rm.ID); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}

	req, rec := newAuthRequest(http.MethodGet, "/v1/rooms/"+rm.ID+"/students", getToken(t, staff))
	deps.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var details []room.AllocationDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if len(details) != 1 || details[0].StudentName != "Jo Kid" || details[0].RoomNumber != "A1" {
		t.Errorf("failed! details = %+v; want Jo Kid in A1", details)
	}
}

func Test_roomApi_updateAndDestroy(t *testing.T) {
	deps := setupServer(t)

	admin := deps.createUser(t, "Admin", "admin1", "admin@test.cd", "", user.AllRoles, true)
	rm := deps.createRoom(t, "A1", 2)
	jo := deps.createStudent(t, "Jo Kid", "jo@test.cd", "RN-001", 100)
	ben := deps.createStudent(t, "Ben Jr", "ben@test.cd", "RN-002", 100)

	ctx := context.Background()
	if _, err := deps.roomSvc.Allocate(ctx, jo.ID, rm.ID); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	if _, err := deps.roomSvc.Allocate(ctx, ben.ID, rm.ID); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{
			name: "capacity below occupancy", method: http.MethodPut, path: "/v1/rooms/" + rm.ID, wantCode: http.StatusBadRequest,
			body:     []byte(`{"number":"A1","capacity":1}`),
			wantData: marchallObj(t, httpErr{Error: "capacity cannot be lower than current occupancy"}),
		},
		{name: "updated", method: http.MethodPut, path: "/v1/rooms/" + rm.ID, wantCode: http.StatusOK, body: []byte(`{"number":"A1b","capacity":3}`)},
		{
			name: "occupied room not deleted", method: http.MethodDelete, path: "/v1/rooms/" + rm.ID, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "room still has students allocated to it"}),
		},
	}
	for _, tt := range tests {
		tt.token = adminToken

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			deps.app.ServeHTTP(rec, req)

			if tt.name == "updated" {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var got room.Room
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Number != "A1b" || got.Capacity != 3 {
					t.Errorf("failed! room = %+v; want {A1b 3}", got)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// vacate then delete
	if _, err := deps.roomSvc.Vacate(ctx, jo.ID); err != nil {
		t.Fatalf("Vacate() failed: %v", err)
	}
	if _, err := deps.roomSvc.Vacate(ctx, ben.ID); err != nil {
		t.Fatalf("Vacate() failed: %v", err)
	}
	req, rec := newAuthRequest(http.MethodDelete, "/v1/rooms/"+rm.ID, adminToken)
	deps.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusNoContent)
	}
}
