package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/metrics"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"github.com/kendall-kelly/usta-go-api/routes"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/kendall-kelly/usta-go-api/tests/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// serverSuite runs the full stack behind a real listener, the way clients see it
type serverSuite struct {
	suite.Suite
	server *httptest.Server
	client *http.Client
	db     *gorm.DB
	svc    *services.Services
	hub    *realtime.Hub
}

func (s *serverSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(s.T())
	s.client = &http.Client{Timeout: 5 * time.Second}
}

func (s *serverSuite) SetupTest() {
	testutil.RequireTestEnvironment(s.T())

	s.db = testutil.NewTestDB(s.T())
	cfg := testutil.TestConfig()
	config.SetConfig(cfg)
	s.hub = realtime.NewHub()
	collector := metrics.NewCollector()
	s.svc = services.New(s.db, cfg, s.hub, collector)

	s.server = httptest.NewServer(routes.NewRouter(routes.Dependencies{
		Config:   cfg,
		Services: s.svc,
		Hub:      s.hub,
		Metrics:  collector,
	}))
}

func (s *serverSuite) TearDownTest() {
	s.server.Close()
	config.SetConfig(nil)
}

type apiResponse struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
}

func (r apiResponse) object() map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(r.Data, &out)
	return out
}

func (r apiResponse) list() []map[string]interface{} {
	var out []map[string]interface{}
	_ = json.Unmarshal(r.Data, &out)
	return out
}

func (r apiResponse) id() uint {
	return uint(r.object()["id"].(float64))
}

func (r apiResponse) code() string {
	code, _ := r.Error["code"].(string)
	return code
}

// call sends a JSON request to the running server; token may be empty
func (s *serverSuite) call(method, token string, body interface{}, format string, args ...interface{}) (int, apiResponse) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.server.URL+"/api/v1"+fmt.Sprintf(format, args...), reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	var out apiResponse
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// signUp registers through the API and returns the new user's id and raw token
func (s *serverSuite) signUp(name, email string, role models.Role) (uint, string) {
	status, resp := s.call(http.MethodPost, "", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": "correct-horse-battery",
		"role":     string(role),
	}, "/auth/register")
	s.Require().Equal(http.StatusCreated, status, resp.Error)

	data := resp.object()
	user := data["user"].(map[string]interface{})
	return uint(user["id"].(float64)), data["token"].(string)
}

func (s *serverSuite) adminToken() string {
	user := testutil.CreateUser(s.T(), s.db, models.RoleAdmin, "Admin")
	token, _, err := s.svc.Tokens.Issue(user)
	s.Require().NoError(err)
	return token
}
