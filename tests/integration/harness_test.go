package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"github.com/kendall-kelly/usta-go-api/routes"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/kendall-kelly/usta-go-api/tests/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// apiSuite wires the production router over a fresh sqlite database per test.
// Every request goes through real token validation and principal loading.
type apiSuite struct {
	suite.Suite
	router   *gin.Engine
	db       *gorm.DB
	cfg      *config.Config
	svc      *services.Services
	recorder *realtime.Recorder
}

func (s *apiSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(s.T())
}

func (s *apiSuite) SetupTest() {
	testutil.RequireTestEnvironment(s.T())

	s.db = testutil.NewTestDB(s.T())
	s.cfg = testutil.TestConfig()
	config.SetConfig(s.cfg)
	s.recorder = realtime.NewRecorder()
	s.svc = services.New(s.db, s.cfg, s.recorder, nil)
	s.router = routes.NewRouter(routes.Dependencies{Config: s.cfg, Services: s.svc})
}

func (s *apiSuite) TearDownTest() {
	config.SetConfig(nil)
}

// request performs a JSON request; bearer may be empty
func (s *apiSuite) request(method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

// register signs up through the API and returns the user id and bearer header
func (s *apiSuite) register(name, email string, role models.Role) (uint, string) {
	w, response := s.request(http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": "correct-horse-battery",
		"role":     string(role),
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	data := response["data"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	return uint(user["id"].(float64)), "Bearer " + data["token"].(string)
}

// admin creates an admin directly; admins cannot sign up
func (s *apiSuite) admin() string {
	user := testutil.CreateUser(s.T(), s.db, models.RoleAdmin, "Admin")
	return testutil.BearerFor(s.T(), s.svc.Tokens, user)
}

func data(response map[string]interface{}) map[string]interface{} {
	d, _ := response["data"].(map[string]interface{})
	return d
}

func errorCode(response map[string]interface{}) string {
	e, _ := response["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func idOf(response map[string]interface{}) uint {
	return uint(data(response)["id"].(float64))
}

func path(format string, args ...interface{}) string {
	return "/api/v1" + fmt.Sprintf(format, args...)
}
