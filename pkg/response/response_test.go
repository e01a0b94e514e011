package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "Resilix/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func run(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/alerts/", nil)
	AbortWithError(c, err)
	return w
}

func TestAbortWithErrorMapsCodes(t *testing.T) {
	w := run(apperrors.Rejected(map[string][]string{"alert_type": {"This field is required."}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"alert_type":["This field is required."]}`, w.Body.String())

	w = run(apperrors.Storage(errors.New("disk full"), "save alert"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"save alert"}`, w.Body.String())

	w = run(apperrors.WithCode(apperrors.CodeNotFound, "alert not found"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"alert not found"}`, w.Body.String())

	w = run(errors.New("plain"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, "ok", gin.H{"n": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":200,"msg":"ok","data":{"n":1}}`, w.Body.String())
}
