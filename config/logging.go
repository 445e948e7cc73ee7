package config

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/models"
)

func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	ErrorStatusWithProblems(message, httpStatusCode, w, err, nil)
}

// ErrorStatusWithProblems is ErrorStatus with a list of individual problems,
// used for validation failures
func ErrorStatusWithProblems(message string, httpStatusCode int, w http.ResponseWriter, err error, problems []string) {
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if httpStatusCode >= http.StatusInternalServerError {
		zap.S().Errorw(message, "error", err)
	} else {
		zap.S().Debugw(message, "error", err)
	}

	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{
		Message:  message,
		Error:    errText,
		Problems: problems,
	}})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_, _ = w.Write(b)
}
