package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lnkr-io/lnkr-domains/pkg/backend"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/lnkr-io/lnkr-domains/pkg/version"
)

type handler struct {
	backend backend.Backend
}

func newHandler(b backend.Backend) *handler {
	return &handler{
		backend: b,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	v := version.Get()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(`{"success": false}`))
	}
}

func (h *handler) createDomain(w http.ResponseWriter, r *http.Request) {
	var input model.CreateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, model.NewValidationError("invalid request body"))
		return
	}
	if input.DomainName == "" {
		writeError(w, model.NewValidationError("domainName must be provided"))
		return
	}

	resp, err := h.backend.ReserveDomain(r.Context(), input, requesterFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) getDomain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resp, err := h.backend.GetDomain(r.Context(), id, requesterFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) listDomains(w http.ResponseWriter, r *http.Request) {
	requester := requesterFromContext(r.Context())

	// The query may name another owner; whether the requester may see that
	// owner's domains is the backend's call.
	owner := requester
	if ownerID := r.URL.Query().Get("ownerId"); ownerID != "" {
		owner = model.Owner{Type: model.OwnerType(r.URL.Query().Get("ownerType")), ID: ownerID}
		if owner.Type == "" {
			owner.Type = model.OwnerTypeUser
		}
	}

	resp, err := h.backend.ListDomains(r.Context(), owner, requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) verifyDomain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resp, err := h.backend.VerifyDomain(r.Context(), id, requesterFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) sslStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resp, err := h.backend.PollSslStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) transferDomain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input model.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, model.NewValidationError("invalid request body"))
		return
	}

	resp, err := h.backend.TransferOwnership(r.Context(), id, input, requesterFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) deleteDomain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.backend.DeleteDomain(r.Context(), id, requesterFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
