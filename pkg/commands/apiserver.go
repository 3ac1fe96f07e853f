package commands

import (
	"time"

	"github.com/lnkr-io/lnkr-domains/pkg/apiserver"
	"github.com/lnkr-io/lnkr-domains/pkg/backend"
	"github.com/lnkr-io/lnkr-domains/pkg/cache"
	"github.com/lnkr-io/lnkr-domains/pkg/db"
	"github.com/lnkr-io/lnkr-domains/pkg/dnsverify"
	"github.com/lnkr-io/lnkr-domains/pkg/model"
	"github.com/lnkr-io/lnkr-domains/pkg/quota"
	"github.com/lnkr-io/lnkr-domains/pkg/ratelimit"
	"github.com/lnkr-io/lnkr-domains/pkg/ssl"
	"github.com/lnkr-io/lnkr-domains/pkg/version"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/maps"
	"gorm.io/gorm"
)

type apiServerCommand struct{}

func (s *apiServerCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalContext()

	log := logrus.WithField("command", "api-server")

	log.Infof("version: %v", version.Get())

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	plans := model.DefaultPlanTable()
	if err := plans.ApplyDomainCapOverrides(c.String("plan-caps")); err != nil {
		return err
	}
	log.Infof("plan ids configured: %v", maps.Keys(plans))

	var limiterStore ratelimit.Store
	var cachePort cache.Cache
	if addr := c.String("redis-addr"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: c.String("redis-password"),
		})
		limiterStore = ratelimit.NewRedisStore(client)
		cachePort = cache.NewRedis(client)
	} else {
		log.Warn("no redis configured, using in-memory rate limits and no cache")
		memory := ratelimit.NewMemoryStore()
		memory.StartJanitor(ctx, 2*time.Minute)
		limiterStore = memory
		cachePort = cache.NewNoop()
	}

	validator := quota.NewValidator(quota.NoPlanLookup{}, plans, database, c.StringSlice("domain-blacklist"))

	verifier := dnsverify.New(
		c.String("cname-target"),
		c.String("backend-host"),
		c.StringSlice("edge-fragment"),
		time.Duration(c.Int64("dns-timeout-seconds"))*time.Second,
	)

	var provisioner ssl.Provisioner
	switch c.String("ssl-provider") {
	case "saas":
		provisioner = ssl.NewSaaS(c.String("ssl-api-url"), c.String("ssl-api-token"), 10*time.Second)
	case "edge":
		provisioner, err = ssl.NewEdge(c.String("route53-zone-id"), c.String("edge-worker-host"), c.Int64("record-ttl-seconds"))
		if err != nil {
			return err
		}
	default:
		log.Warn("no ssl provider configured, hostnames will be reported active without provisioning")
		provisioner = ssl.Noop{}
	}

	back, err := backend.NewBackend(backend.Config{
		CnameTarget:         c.String("cname-target"),
		CanonicalDomain:     c.String("canonical-domain"),
		InfraHostFragments:  c.StringSlice("infra-host-fragment"),
		VerificationBaseURL: c.String("public-url"),
		ReservationTTL:      time.Duration(c.Int64("reservation-ttl-seconds")) * time.Second,
		ReclaimIntervalSecs: c.Int64("reclaim-interval-seconds"),
	}, database, ratelimit.NewLimiter(limiterStore), validator, verifier, provisioner, cachePort,
		nil, nil, nil)
	if err != nil {
		return err
	}

	apiServer := apiserver.NewAPIServer(ctx, log, c.Int("port"))

	if err := apiServer.Start(back); err != nil {
		return err
	}

	return nil
}

func serverCommand() *cli.Command {
	cmd := apiServerCommand{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the HTTP Server",
			EnvVars: []string{"LNKR_PORT", "PORT"},
			Value:   4316,
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"LNKR_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"LNKR_SQL_DSN", "SQL_DSN"},
			Value:   "file:lnkr.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for rate limits and caching, empty to run without",
			EnvVars: []string{"LNKR_REDIS_ADDR", "REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			EnvVars: []string{"LNKR_REDIS_PASSWORD", "REDIS_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "canonical-domain",
			Usage:   "The platform's default short-link domain",
			EnvVars: []string{"LNKR_CANONICAL_DOMAIN"},
			Value:   "lnkr.to",
		},
		&cli.StringFlag{
			Name:    "cname-target",
			Usage:   "Hostname tenants must point their CNAME at",
			EnvVars: []string{"LNKR_CNAME_TARGET"},
			Value:   "custom.lnkr.to",
		},
		&cli.StringFlag{
			Name:    "backend-host",
			Usage:   "Canonical backend host accepted as DNS verification evidence",
			EnvVars: []string{"LNKR_BACKEND_HOST"},
			Value:   "lnkr-redirector.onrender.com",
		},
		&cli.StringSliceFlag{
			Name:    "edge-fragment",
			Usage:   "Edge-provider hostname fragments accepted as DNS verification evidence",
			EnvVars: []string{"LNKR_EDGE_FRAGMENTS"},
			Value:   cli.NewStringSlice("workers.dev", "cloudflare"),
		},
		&cli.StringSliceFlag{
			Name:    "infra-host-fragment",
			Usage:   "Proxy/render hostname fragments that are not custom-domain signals",
			EnvVars: []string{"LNKR_INFRA_HOST_FRAGMENTS"},
			Value:   cli.NewStringSlice("onrender.com", "workers.dev"),
		},
		&cli.StringSliceFlag{
			Name:    "domain-blacklist",
			Usage:   "Domain names that may never be claimed",
			EnvVars: []string{"LNKR_DOMAIN_BLACKLIST"},
		},
		&cli.StringFlag{
			Name:    "public-url",
			Usage:   "Public base URL of this service, used in verification URLs",
			EnvVars: []string{"LNKR_PUBLIC_URL"},
			Value:   "https://api.lnkr.to",
		},
		&cli.StringFlag{
			Name:    "ssl-provider",
			Usage:   "SSL provisioning backend: saas, edge, or none",
			EnvVars: []string{"LNKR_SSL_PROVIDER"},
			Value:   "none",
		},
		&cli.StringFlag{
			Name:    "ssl-api-url",
			EnvVars: []string{"LNKR_SSL_API_URL"},
		},
		&cli.StringFlag{
			Name:    "ssl-api-token",
			EnvVars: []string{"LNKR_SSL_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "route53-zone-id",
			EnvVars: []string{"LNKR_ROUTE53_ZONE_ID"},
		},
		&cli.StringFlag{
			Name:    "edge-worker-host",
			EnvVars: []string{"LNKR_EDGE_WORKER_HOST"},
		},
		&cli.Int64Flag{
			Name:    "record-ttl-seconds",
			EnvVars: []string{"LNKR_RECORD_TTL_SECONDS"},
			Value:   300,
		},
		&cli.Int64Flag{
			Name:    "dns-timeout-seconds",
			EnvVars: []string{"LNKR_DNS_TIMEOUT_SECONDS"},
			Value:   5,
		},
		&cli.Int64Flag{
			Name:    "reservation-ttl-seconds",
			EnvVars: []string{"LNKR_RESERVATION_TTL_SECONDS"},
			Value:   900,
		},
		&cli.Int64Flag{
			Name:    "reclaim-interval-seconds",
			EnvVars: []string{"LNKR_RECLAIM_INTERVAL_SECONDS"},
			Value:   300,
		},
		&cli.StringFlag{
			Name:    "plan-caps",
			Usage:   "Domain cap overrides per plan, e.g. free=0,pro=1,business=3",
			EnvVars: []string{"LNKR_PLAN_CAPS"},
		},
	}

	return &cli.Command{
		Name:   "api-server",
		Usage:  "custom-domain and redirect api server",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
