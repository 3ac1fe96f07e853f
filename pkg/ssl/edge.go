package ssl

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/sirupsen/logrus"
)

// edgeProvisioner programs the edge worker's routing table directly: a
// CNAME in the platform zone maps the custom hostname onto the worker
// ingress, which terminates TLS for any hostname routed at it. A hostname
// is servable as soon as the record set is programmed, so status reports
// ACTIVE immediately after a successful upsert.
type edgeProvisioner struct {
	zoneID     string
	baseDomain string
	workerHost string
	recordTTL  int64
	svc        *route53.Route53
}

func NewEdge(zoneID, workerHost string, recordTTLSeconds int64) (Provisioner, error) {
	s, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	svc := route53.New(s, &aws.Config{
		MaxRetries: aws.Int(3),
	})

	z, err := svc.GetHostedZone(&route53.GetHostedZoneInput{
		Id: aws.String(zoneID),
	})
	if err != nil {
		return nil, err
	}

	return &edgeProvisioner{
		zoneID:     aws.StringValue(z.HostedZone.Id),
		baseDomain: strings.TrimSuffix(aws.StringValue(z.HostedZone.Name), "."),
		workerHost: workerHost,
		recordTTL:  recordTTLSeconds,
		svc:        svc,
	}, nil
}

func (p *edgeProvisioner) Name() string { return "edge-worker" }

func (p *edgeProvisioner) Provision(ctx context.Context, domainName string) (string, model.SslStatus, error) {
	if err := p.change(ctx, "UPSERT", domainName); err != nil {
		return "", model.SslStatusFailed, fmt.Errorf("failed to program edge route for %v: %v", domainName, err)
	}
	logrus.Infof("edge route programmed for %v -> %v", domainName, p.workerHost)
	return p.routeName(domainName), model.SslStatusActive, nil
}

func (p *edgeProvisioner) Status(ctx context.Context, domainName, certificateID string) (model.SslStatus, error) {
	name := p.routeName(domainName)
	out, err := p.svc.ListResourceRecordSetsWithContext(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(p.zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: aws.String(route53.RRTypeCname),
		MaxItems:        aws.String("1"),
	})
	if err != nil {
		return model.SslStatusPending, err
	}

	for _, rrs := range out.ResourceRecordSets {
		if strings.TrimSuffix(aws.StringValue(rrs.Name), ".") == name {
			return model.SslStatusActive, nil
		}
	}
	return model.SslStatusPending, nil
}

func (p *edgeProvisioner) Deprovision(ctx context.Context, domainName string) error {
	if err := p.change(ctx, "DELETE", domainName); err != nil {
		return fmt.Errorf("failed to remove edge route for %v: %v", domainName, err)
	}
	return nil
}

func (p *edgeProvisioner) change(ctx context.Context, action, domainName string) error {
	rrs := &route53.ResourceRecordSet{
		Type: aws.String(route53.RRTypeCname),
		Name: aws.String(p.routeName(domainName)),
		TTL:  aws.Int64(p.recordTTL),
		ResourceRecords: []*route53.ResourceRecord{
			{Value: aws.String(p.workerHost)},
		},
	}

	rrsInput := route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(p.zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []*route53.Change{
				{
					Action:            aws.String(action),
					ResourceRecordSet: rrs,
				},
			},
		},
	}

	_, err := p.svc.ChangeResourceRecordSetsWithContext(ctx, &rrsInput)
	return err
}

// routeName keys the routing table by custom hostname inside the platform
// zone, e.g. go.example.com -> go.example.com.routes.lnkr.to.
func (p *edgeProvisioner) routeName(domainName string) string {
	return fmt.Sprintf("%s.routes.%s", domainName, p.baseDomain)
}
