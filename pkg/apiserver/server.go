package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/lnkr-io/lnkr-domains/pkg/backend"
	"github.com/lnkr-io/lnkr-domains/pkg/version"
	"github.com/sirupsen/logrus"
)

type apiServer struct {
	ctx  context.Context
	log  *logrus.Entry
	port int
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int) *apiServer {
	return &apiServer{
		ctx:  ctx,
		log:  log,
		port: port,
	}
}

func (a *apiServer) Start(backend backend.Backend) error {
	logrus.Infof("Version: %s", version.Get())

	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(a.log))
	h := newHandler(backend)

	// When functioning properly, these routes return the running version
	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)

	api := router.PathPrefix("/v1").Subrouter()

	// All domain-lifecycle routes require a requester identity. Ownership
	// itself is checked per operation in the backend.
	domains := api.PathPrefix("/domains").Subrouter()
	domains.Use(requesterMiddleware)
	domains.Path("").Methods("POST").HandlerFunc(h.createDomain)
	domains.Path("").Methods("GET").HandlerFunc(h.listDomains)
	domains.Path("/{id}").Methods("GET").HandlerFunc(h.getDomain)
	domains.Path("/{id}").Methods("DELETE").HandlerFunc(h.deleteDomain)
	domains.Path("/{id}/verify").Methods("POST").HandlerFunc(h.verifyDomain)
	domains.Path("/{id}/ssl").Methods("GET").HandlerFunc(h.sslStatus)
	domains.Path("/{id}/transfer").Methods("POST").HandlerFunc(h.transferDomain)

	// The redirect surface answers on any bound hostname, so it hangs off
	// the root, after the API routes.
	router.Path("/{shortCode}/unlock").Methods("POST").HandlerFunc(h.unlock)
	router.Path("/{shortCode}").Methods("GET").HandlerFunc(h.redirect)

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: ghandlers.CORS()(router),
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	go backend.StartReclaimDaemon(a.ctx.Done())

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}
