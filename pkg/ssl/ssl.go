package ssl

import (
	"context"
	"errors"

	"github.com/lnkr-io/lnkr-domains/pkg/model"
)

// ErrHostnameLimit is returned when the provider refuses new hostnames
// because the account's hostname quota is exhausted. Callers surface this
// distinctly from a generic provisioning failure.
var ErrHostnameLimit = errors.New("ssl provider hostname limit reached")

// Provisioner makes a custom hostname servable. The orchestrator does not
// care whether that happens through a SaaS SSL API or by programming the
// edge routing table directly; both are the same capability.
type Provisioner interface {
	Name() string
	Provision(ctx context.Context, domainName string) (certificateID string, status model.SslStatus, err error)
	Status(ctx context.Context, domainName, certificateID string) (model.SslStatus, error)
	Deprovision(ctx context.Context, domainName string) error
}

// Noop backs dev/degraded mode: hostnames are reported active immediately
// and nothing external is touched.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Provision(context.Context, string) (string, model.SslStatus, error) {
	return "", model.SslStatusActive, nil
}

func (Noop) Status(context.Context, string, string) (model.SslStatus, error) {
	return model.SslStatusActive, nil
}

func (Noop) Deprovision(context.Context, string) error { return nil }
