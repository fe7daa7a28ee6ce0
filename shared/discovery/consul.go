package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// ConsulRegistrar registers a service instance with the local Consul agent.
type ConsulRegistrar struct {
	client *api.Client
	logger *zerolog.Logger
}

// Registration describes the instance announced to Consul. GRPCAddr is the
// host:port that Consul's gRPC health check dials.
type Registration struct {
	ID       string
	Name     string
	GRPCAddr string
	Tags     []string
}

// NewConsulRegistrar creates a registrar talking to the Consul agent at addr.
func NewConsulRegistrar(addr string, logger *zerolog.Logger) (*ConsulRegistrar, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &ConsulRegistrar{client: client, logger: logger}, nil
}

// Register announces the instance and returns a function that deregisters it.
func (r *ConsulRegistrar) Register(reg Registration) (func(), error) {
	host, portStr, err := net.SplitHostPort(reg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid grpc address %q: %w", reg.GRPCAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid grpc port %q: %w", portStr, err)
	}

	registration := &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: host,
		Port:    port,
		Tags:    reg.Tags,
		Check: &api.AgentServiceCheck{
			GRPC:                           reg.GRPCAddr,
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return nil, err
	}

	r.logger.Info().Str("service_id", reg.ID).Str("grpc_addr", reg.GRPCAddr).Msg("registered with consul")

	return func() {
		if err := r.client.Agent().ServiceDeregister(reg.ID); err != nil {
			r.logger.Error().Err(err).Str("service_id", reg.ID).Msg("failed to deregister from consul")
		}
	}, nil
}
