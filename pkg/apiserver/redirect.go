package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/lnkr-io/lnkr-domains/pkg/backend"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
)

func hostCandidates(r *http.Request) backend.HostCandidates {
	return backend.HostCandidates{
		ForwardedHost: r.Header.Get("X-Forwarded-Host"),
		OriginalHost:  r.Header.Get("X-Original-Host"),
		ServerName:    r.Host,
	}
}

// redirect serves GET /{shortCode} on every bound domain, custom ones
// included. Failures redirect to the edge-rendered error page with a
// structured reason code so each outcome gets its own page; only a
// password-protected link goes to the interactive password page instead.
func (h *handler) redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	link, err := h.backend.ResolveRedirect(r.Context(), shortCode, hostCandidates(r))
	if err != nil {
		if errors.Is(err, model.ErrPasswordRequired) {
			http.Redirect(w, r, "/protected/"+url.PathEscape(shortCode), http.StatusFound)
			return
		}
		code := model.AsCoded(err).Code
		http.Redirect(w, r, "/error?error="+url.QueryEscape(code), http.StatusFound)
		return
	}

	http.Redirect(w, r, link.OriginalURL, http.StatusMovedPermanently)
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	var input model.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Password == "" {
		writeError(w, model.NewValidationError("password must be provided"))
		return
	}

	link, err := h.backend.UnlockLink(r.Context(), shortCode, hostCandidates(r), input.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, model.UnlockResponse{URL: link.OriginalURL})
}
