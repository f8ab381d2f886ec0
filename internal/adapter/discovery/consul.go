package discovery

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/consul/api"
)

type Registration struct {
	ServiceID   string
	ServiceName string
	Host        string
	Port        string
	Tags        []string
}

type ConsulClient struct {
	client *api.Client
}

func NewConsulClient(address string) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulClient{client: client}, nil
}

// RegisterService announces the service with an HTTP check against /health.
func (c *ConsulClient) RegisterService(reg Registration) error {
	port, err := strconv.Atoi(reg.Port)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", reg.Port, err)
	}

	return c.client.Agent().ServiceRegister(serviceRegistration(reg, port))
}

func (c *ConsulClient) DeregisterService(serviceID string) error {
	return c.client.Agent().ServiceDeregister(serviceID)
}

func serviceRegistration(reg Registration, port int) *api.AgentServiceRegistration {
	host := reg.Host
	if host == "" {
		host = reg.ServiceID
	}
	return &api.AgentServiceRegistration{
		ID:      reg.ServiceID,
		Name:    reg.ServiceName,
		Address: host,
		Port:    port,
		Tags:    reg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", host, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
}
