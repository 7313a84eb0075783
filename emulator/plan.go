// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"fmt"
	"net/netip"

	"github.com/rbmk-project/chainemu/topology"
	"gopkg.in/yaml.v3"
)

// Plan describes the addressing of a chain so that operators can
// configure the hosts behind the OS interfaces.
type Plan struct {
	Routers   int            `yaml:"routers"`
	DataRate  string         `yaml:"datarate"`
	Delay     string         `yaml:"delay"`
	Zone      string         `yaml:"zone,omitempty"`
	Endpoints []PlanEndpoint `yaml:"endpoints"`
	Links     []PlanLink     `yaml:"links"`
	Hosts     []PlanHost     `yaml:"hosts"`
}

// PlanEndpoint describes an endpoint.
type PlanEndpoint struct {
	Name  string   `yaml:"name"`
	Role  string   `yaml:"role"`
	Addrs []string `yaml:"addrs,omitempty"`
}

// PlanLink describes a link.
type PlanLink struct {
	Index   int          `yaml:"index"`
	Subnet  string       `yaml:"subnet"`
	Mask    string       `yaml:"mask"`
	Devices []PlanDevice `yaml:"devices"`
}

// PlanDevice describes a device attached to a link.
type PlanDevice struct {
	Endpoint string `yaml:"endpoint"`
	MAC      string `yaml:"mac"`
	Addr     string `yaml:"addr,omitempty"`
}

// PlanHost describes how to configure the host behind an OS interface.
type PlanHost struct {
	Side      string   `yaml:"side"`
	Interface string   `yaml:"interface"`
	Namespace string   `yaml:"namespace,omitempty"`
	Addr      string   `yaml:"addr"`
	Gateway   string   `yaml:"gateway"`
	Routes    []string `yaml:"routes"`
}

// NewPlan returns the [*Plan] of a chain built using config.
func NewPlan(config *Config, chain *topology.Chain) *Plan {
	plan := &Plan{
		Routers:  len(chain.Routers()),
		DataRate: chain.Links()[0].DataRate().String(),
		Delay:    chain.Links()[0].Delay().String(),
		Zone:     config.Zone(),
	}

	for _, ep := range chain.Endpoints() {
		pe := PlanEndpoint{Name: ep.Name(), Role: ep.Role().String()}
		for _, dev := range ep.Devices() {
			if addr, ok := dev.Addr(); ok {
				pe.Addrs = append(pe.Addrs, addr.String())
			}
		}
		plan.Endpoints = append(plan.Endpoints, pe)
	}

	for _, lnk := range chain.Links() {
		pl := PlanLink{
			Index:  lnk.Index(),
			Subnet: lnk.Subnet().String(),
			Mask:   lnk.Subnet().Mask(),
		}
		for _, dev := range lnk.Devices() {
			pd := PlanDevice{Endpoint: dev.Endpoint().Name(), MAC: dev.NIC().MAC().String()}
			if addr, ok := dev.Addr(); ok {
				pd.Addr = addr.String()
			}
			pl.Devices = append(pl.Devices, pd)
		}
		plan.Links = append(plan.Links, pl)
	}

	bridges := config.Bridges()
	for _, side := range topology.Sides {
		plan.Hosts = append(plan.Hosts, PlanHost{
			Side:      side.String(),
			Interface: bridges[side].Interface,
			Namespace: bridges[side].Namespace,
			Addr:      chain.HostAddr(side).String(),
			Gateway:   chain.Gateway(side).Addr().String(),
			Routes:    []string{topology.Supernet.String()},
		})
	}
	return plan
}

// Host returns the plan of the host behind the given side.
func (p *Plan) Host(side topology.Side) (PlanHost, error) {
	for _, host := range p.Hosts {
		if host.Side == side.String() {
			return host, nil
		}
	}
	return PlanHost{}, fmt.Errorf("no host for side %s", side)
}

// Marshal returns the YAML representation of the plan.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// ParsePlan parses the YAML representation of a plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	for _, host := range plan.Hosts {
		if _, err := netip.ParsePrefix(host.Addr); err != nil {
			return nil, fmt.Errorf("host %s: %w", host.Side, err)
		}
	}
	return &plan, nil
}
