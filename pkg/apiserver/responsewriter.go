package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/sirupsen/logrus"
)

// writeError maps any error onto the coded taxonomy before it crosses the
// boundary, so internal failures never leak detail.
func writeError(w http.ResponseWriter, err error) {
	ce := model.AsCoded(err)
	if ce.Status >= 500 {
		logrus.Errorf("request failed: %v", err)
	}
	o := model.ErrorResponse{
		Status:  ce.Status,
		Code:    ce.Code,
		Message: ce.Message,
	}
	res, _ := json.Marshal(o)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.Status)
	_, _ = w.Write(res)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	res, err := json.Marshal(data)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}
