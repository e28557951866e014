package integration

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/routes"
	"github.com/vipauto/autoelectric-crm/services"
	"github.com/vipauto/autoelectric-crm/tests/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// apiSuite runs requests through the full router backed by a fresh in-memory database per test
type apiSuite struct {
	suite.Suite
	router *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	tokens *services.TokenService
}

// SetupSuite runs once before all tests
func (s *apiSuite) SetupSuite() {
	testutil.MustSetTestEnvironment(s.T())
	gin.SetMode(gin.TestMode)
	services.PasswordCost = bcrypt.MinCost

	s.cfg = testutil.TestConfig()
	s.tokens = services.NewTokenService(s.cfg)
	config.SetConfig(s.cfg)
}

// SetupTest runs before each test
func (s *apiSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	config.SetDB(s.db)
	services.NewMockImageService().SetAsMockForTesting()
	s.router = routes.NewRouter(s.cfg)
}

func (s *apiSuite) createMaster(fullName string, role models.Role) *models.Master {
	return testutil.CreateMaster(s.T(), s.db, fullName, role)
}

func (s *apiSuite) token(master *models.Master) string {
	token, _, err := s.tokens.Issue(master)
	s.Require().NoError(err)
	return token
}

func (s *apiSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *apiSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

// data returns the data object of a success envelope
func (s *apiSuite) data(w *httptest.ResponseRecorder) map[string]interface{} {
	response := s.decode(w)
	s.Require().Equal(true, response["success"], w.Body.String())
	data, ok := response["data"].(map[string]interface{})
	s.Require().True(ok, w.Body.String())
	return data
}

// list returns the data array of a success envelope
func (s *apiSuite) list(w *httptest.ResponseRecorder) []interface{} {
	response := s.decode(w)
	s.Require().Equal(true, response["success"], w.Body.String())
	items, ok := response["data"].([]interface{})
	s.Require().True(ok, w.Body.String())
	return items
}

func (s *apiSuite) errorCode(w *httptest.ResponseRecorder) string {
	response := s.decode(w)
	s.Require().Equal(false, response["success"], w.Body.String())
	errorData, ok := response["error"].(map[string]interface{})
	s.Require().True(ok, w.Body.String())
	code, _ := errorData["code"].(string)
	return code
}
