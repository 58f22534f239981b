package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/student"
	"github.com/trezcool/makazi/core/user"
	emailsvc "github.com/trezcool/makazi/services/email"
	dummydb "github.com/trezcool/makazi/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testLogger struct{}

func (testLogger) Enable(bool)                  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

type testDeps struct {
	app        Server
	conf       *core.Config
	usrRepo    user.Repository
	usrSvc     *user.Service
	studentSvc *student.Service
	roomSvc    *room.Service
	billingSvc *billing.Service
}

func newTestConfig() *core.Config {
	return &core.Config{
		AppName:                   "Makazi",
		Env:                       "TEST",
		TestMode:                  true,
		WorkDir:                   core.Getwd(),
		SecretKey:                 "sekrit",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		DefaultRoomCapacity:       2,
		ReminderHorizonDays:       7,
		Server: core.ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func setupServer(t *testing.T) testDeps {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := newTestConfig()
	logger := testLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	validate := validator.New()
	enLocale := en.New()
	uniTranslator := ut.New(enLocale, enLocale)
	translator, _ := uniTranslator.GetTranslator(enLocale.Locale())
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	deps := testDeps{
		conf:       conf,
		usrRepo:    dummydb.NewUserRepository(db),
		studentSvc: student.NewService(dummydb.NewStudentRepository(db)),
		roomSvc:    room.NewService(dummydb.NewRoomRepository(db), conf),
		billingSvc: billing.NewService(dummydb.NewBillingRepository(db), mailSvc, conf),
	}
	deps.usrSvc = user.NewService(deps.usrRepo, mailSvc, conf)

	deps.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        deps.usrSvc,
		StudentSvc:     deps.studentSvc,
		RoomSvc:        deps.roomSvc,
		BillingSvc:     deps.billingSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return deps
}

func (d testDeps) createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("SetPassword() failed: %v", err)
		}
	}
	usr, err := d.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", uname, err)
	}
	return usr
}

func (d testDeps) createStudent(t *testing.T, name, email, rollNumber string, totalFee float64) student.Student {
	t.Helper()

	std, err := d.studentSvc.Create(context.Background(), student.NewStudent{
		Name:       name,
		Email:      email,
		RollNumber: rollNumber,
		TotalFee:   totalFee,
	})
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	return std
}

func (d testDeps) createRoom(t *testing.T, number string, capacity int) room.Room {
	t.Helper()

	rm, err := d.roomSvc.Create(context.Background(), room.NewRoom{Number: number, Capacity: capacity})
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", number, err)
	}
	return rm
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func Test_home(t *testing.T) {
	deps := setupServer(t)

	req, rec := newRequest(http.MethodGet, "/")
	deps.app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	if want := "Welcome to Makazi API!"; rec.Body.String() != want {
		t.Errorf("failed! body = %q; want %q", rec.Body.String(), want)
	}
}
