package student_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/student"
	dummydb "github.com/trezcool/makazi/storage/database/dummy"
)

func setup(t *testing.T) (*student.Service, *dummydb.DB) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	return student.NewService(dummydb.NewStudentRepository(db)), db
}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	validate := validator.New()
	enLocale := en.New()
	uniTranslator := ut.New(enLocale, enLocale)
	translator, _ := uniTranslator.GetTranslator(enLocale.Locale())
	core.InitValidators(validate, translator)
	return validate
}

func createStudent(ctx context.Context, t *testing.T, svc *student.Service, ns student.NewStudent) student.Student {
	t.Helper()
	std, err := svc.Create(ctx, ns)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", ns.Name, err)
	}
	return std
}

func TestService_Create(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	validate := newValidator(t)

	ns := student.NewStudent{
		Name:       " Jo Kid ",
		Email:      "JO@test.cd",
		Phone:      "0812345678",
		RollNumber: "RN-001",
		NationalID: "NID-001",
		Year:       "2",
		TotalFee:   1500,
	}
	if err := ns.Validate(ctx, validate, svc); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if ns.Name != "Jo Kid" || ns.Email != "jo@test.cd" {
		t.Errorf("Validate() cleaned = {%q %q}, want trimmed name and lowered email", ns.Name, ns.Email)
	}

	std := createStudent(ctx, t, svc, ns)
	if std.ID == "" || std.CreatedAt.IsZero() || std.TotalFee != 1500 {
		t.Errorf("Create() = %+v, want an ID, timestamps and the total fee", std)
	}

	got, err := svc.GetByID(ctx, std.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Email != "jo@test.cd" {
		t.Errorf("GetByID().Email = %q, want jo@test.cd", got.Email)
	}
	if _, err = svc.GetByID(ctx, "nope"); errors.Cause(err) != student.ErrNotFound {
		t.Errorf("GetByID(unknown) error = %v, want %v", err, student.ErrNotFound)
	}
}

func TestService_CheckUniqueness(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	std := createStudent(ctx, t, svc, student.NewStudent{
		Name:       "Jo Kid",
		Email:      "jo@test.cd",
		RollNumber: "RN-001",
		NationalID: "NID-001",
	})

	tests := []struct {
		name       string
		email      string
		rollNumber string
		nationalID string
		wantField  string
	}{
		{"duplicate email", "JO@test.cd", "RN-002", "NID-002", "email"},
		{"duplicate roll number", "ben@test.cd", "rn-001", "NID-002", "roll_number"},
		{"duplicate national ID", "ben@test.cd", "RN-002", "NID-001", "national_id"},
		{"all unique", "ben@test.cd", "RN-002", "NID-002", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.email, tt.rollNumber, tt.nationalID)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("CheckUniqueness() error = %v, want nil", err)
				}
				return
			}
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			if !ok {
				t.Fatalf("CheckUniqueness() error = %v, want a validation error", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != tt.wantField {
				t.Errorf("validation errors = %+v, want one on field %q", vErr.Fields, tt.wantField)
			}
		})
	}

	// the original record is excluded when updating
	if err := svc.CheckUniqueness(ctx, std.Email, std.RollNumber, std.NationalID, std); err != nil {
		t.Errorf("CheckUniqueness(excluding self) error = %v, want nil", err)
	}
}

func TestService_Query(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	createStudent(ctx, t, svc, student.NewStudent{Name: "Jo Kid", Email: "jo@test.cd", Phone: "0812345678", RollNumber: "RN-001", Year: "1"})
	createStudent(ctx, t, svc, student.NewStudent{Name: "Ben Jr", Email: "ben@test.cd", RollNumber: "RN-002", Year: "2"})
	createStudent(ctx, t, svc, student.NewStudent{Name: "Jobless Boy", Email: "jb@test.cd", RollNumber: "RN-003", Year: "2"})

	tests := []struct {
		name   string
		filter *student.QueryFilter
		want   []string
	}{
		{"nil filter matches all", nil, []string{"Jo Kid", "Ben Jr", "Jobless Boy"}},
		{"empty filter matches all", &student.QueryFilter{}, []string{"Jo Kid", "Ben Jr", "Jobless Boy"}},
		{"search by name", &student.QueryFilter{Search: "jo"}, []string{"Jo Kid", "Jobless Boy"}},
		{"search by email", &student.QueryFilter{Search: "ben@"}, []string{"Ben Jr"}},
		{"search by phone", &student.QueryFilter{Search: "081234"}, []string{"Jo Kid"}},
		{"search by roll number", &student.QueryFilter{Search: "rn-003"}, []string{"Jobless Boy"}},
		{"by year", &student.QueryFilter{Year: "2"}, []string{"Ben Jr", "Jobless Boy"}},
		{"search and year", &student.QueryFilter{Search: "jo", Year: "2"}, []string{"Jobless Boy"}},
		{"no match", &student.QueryFilter{Search: "nope"}, nil},
		{"created in the future", &student.QueryFilter{CreatedFrom: time.Now().UTC().Add(time.Hour)}, nil},
		{"created until now", &student.QueryFilter{CreatedTo: time.Now().UTC().Add(time.Hour)}, []string{"Jo Kid", "Ben Jr", "Jobless Boy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students, err := svc.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(students) != len(tt.want) {
				t.Fatalf("Query() names = %v, want %v", names(students), tt.want)
			}
			for _, name := range tt.want {
				if !containsName(students, name) {
					t.Errorf("Query() names = %v, want them to include %q", names(students), name)
				}
			}
		})
	}
}

func names(students []student.Student) []string {
	res := make([]string, 0, len(students))
	for _, std := range students {
		res = append(res, std.Name)
	}
	return res
}

func containsName(students []student.Student, name string) bool {
	for _, std := range students {
		if std.Name == name {
			return true
		}
	}
	return false
}

func TestService_Update(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	std := createStudent(ctx, t, svc, student.NewStudent{
		Name:       "Jo Kid",
		Email:      "jo@test.cd",
		RollNumber: "RN-001",
		TotalFee:   1000,
	})

	// the total fee is kept when not provided
	got, err := svc.Update(ctx, std, student.UpdateStudent{Name: "Jo Kid Jr", Email: std.Email, Year: "3"})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.Name != "Jo Kid Jr" || got.Year != "3" || got.TotalFee != 1000 {
		t.Errorf("Update() = {%q %q %v}, want {Jo Kid Jr 3 1000}", got.Name, got.Year, got.TotalFee)
	}
	if got.RollNumber != "RN-001" {
		t.Errorf("RollNumber = %q, want the immutable RN-001", got.RollNumber)
	}

	fee := 1200.0
	got, err = svc.Update(ctx, got, student.UpdateStudent{Name: got.Name, Email: got.Email, TotalFee: &fee})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if got.TotalFee != 1200 {
		t.Errorf("TotalFee = %v, want 1200", got.TotalFee)
	}
}

func TestService_Delete_cascades(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	std := createStudent(ctx, t, svc, student.NewStudent{
		Name:       "Jo Kid",
		Email:      "jo@test.cd",
		RollNumber: "RN-001",
		TotalFee:   300,
	})

	conf := &core.Config{DefaultRoomCapacity: 2, ReminderHorizonDays: 7}
	roomSvc := room.NewService(dummydb.NewRoomRepository(db), conf)
	billingRepo := dummydb.NewBillingRepository(db)
	billingSvc := billing.NewService(billingRepo, nil, conf)

	rm, err := roomSvc.Create(ctx, room.NewRoom{Number: "A1"})
	if err != nil {
		t.Fatalf("room Create() failed: %v", err)
	}
	if _, err = roomSvc.Allocate(ctx, std.ID, rm.ID); err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err = billingSvc.Generate(ctx, std.ID, billing.NewInstallmentPlan{TotalFee: 300, Count: 3, StartDate: start}); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if _, err = billingSvc.AddPayment(ctx, std.ID, billing.NewPayment{Amount: 50}); err != nil {
		t.Fatalf("AddPayment() failed: %v", err)
	}

	if err = svc.Delete(ctx, std.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err = svc.GetByID(ctx, std.ID); errors.Cause(err) != student.ErrNotFound {
		t.Errorf("GetByID(deleted) error = %v, want %v", err, student.ErrNotFound)
	}
	if _, err = roomSvc.GetStudentAllocation(ctx, std.ID); errors.Cause(err) != room.ErrNotAllocated {
		t.Errorf("GetStudentAllocation(deleted) error = %v, want %v", err, room.ErrNotAllocated)
	}
	insts, err := billingSvc.QuerySchedule(ctx, std.ID)
	if err != nil {
		t.Fatalf("QuerySchedule() failed: %v", err)
	}
	if len(insts) != 0 {
		t.Errorf("QuerySchedule(deleted) = %+v, want none", insts)
	}
	pmts, err := billingSvc.QueryPayments(ctx, std.ID)
	if err != nil {
		t.Fatalf("QueryPayments() failed: %v", err)
	}
	if len(pmts) != 0 {
		t.Errorf("QueryPayments(deleted) = %+v, want none", pmts)
	}
}
