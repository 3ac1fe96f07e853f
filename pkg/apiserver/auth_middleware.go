package apiserver

import (
	"context"
	"net/http"

	"github.com/lnkr-io/lnkr-domains/pkg/model"
)

type ContextKey string

const RequesterKey ContextKey = "requester"

// requesterMiddleware extracts the requester identity placed in headers by
// the upstream auth layer. Session issuance itself is out of scope here;
// routes behind this middleware only need to know who is asking so that
// ownership checks can run.
func requesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get("X-Owner-Id")
		ownerType := model.OwnerType(r.Header.Get("X-Owner-Type"))
		if ownerType == "" {
			ownerType = model.OwnerTypeUser
		}

		if ownerID == "" || ownerType.IsValid() != nil {
			writeError(w, model.NewUnauthorizedError())
			return
		}

		requester := model.Owner{Type: ownerType, ID: ownerID}
		ctx := context.WithValue(r.Context(), RequesterKey, requester)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requesterFromContext(ctx context.Context) model.Owner {
	requester, _ := ctx.Value(RequesterKey).(model.Owner)
	return requester
}
