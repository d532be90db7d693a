// Package domain defines the core domain models for converge.
package domain

import (
	"fmt"
	"sort"
)

// Deployment is the desired configuration of the whole cluster.
//
// A Deployment is treated as immutable once it has been handed to the
// configuration store: a change produces a new value rather than an
// in-place edit. The same shape is used to describe aggregated cluster
// state (see ClusterStateService.AsDeployment), which lets both travel
// through one codec.
type Deployment struct {
	Nodes map[string]*Node `cbor:"1,keyasint" json:"nodes" yaml:"nodes"`
}

// Node is the configuration (or observed state) of a single node.
type Node struct {
	Hostname       string                    `cbor:"1,keyasint" json:"hostname" yaml:"hostname"`
	Applications   map[string]*Application   `cbor:"2,keyasint" json:"applications" yaml:"applications"`
	Manifestations map[string]*Manifestation `cbor:"3,keyasint" json:"manifestations" yaml:"manifestations"`
}

// Application is a container application scheduled on a node.
type Application struct {
	Name          string            `cbor:"1,keyasint" json:"name" yaml:"name"`
	Image         string            `cbor:"2,keyasint" json:"image" yaml:"image"`
	Ports         []Port            `cbor:"3,keyasint" json:"ports" yaml:"ports"`
	Links         []Link            `cbor:"4,keyasint" json:"links" yaml:"links"`
	Environment   map[string]string `cbor:"5,keyasint" json:"environment" yaml:"environment"`
	Volume        *AttachedVolume   `cbor:"6,keyasint" json:"volume" yaml:"volume"`
	MemoryLimit   int64             `cbor:"7,keyasint" json:"memory_limit" yaml:"memory_limit"`
	CPUShares     int64             `cbor:"8,keyasint" json:"cpu_shares" yaml:"cpu_shares"`
	RestartPolicy string            `cbor:"9,keyasint" json:"restart_policy" yaml:"restart_policy"`
	Running       bool              `cbor:"10,keyasint" json:"running" yaml:"running"`
}

// Port maps a container port to a host port.
type Port struct {
	InternalPort uint16 `cbor:"1,keyasint" json:"internal_port" yaml:"internal_port"`
	ExternalPort uint16 `cbor:"2,keyasint" json:"external_port" yaml:"external_port"`
}

// Link connects a local port to a port on another application.
type Link struct {
	LocalPort  uint16 `cbor:"1,keyasint" json:"local_port" yaml:"local_port"`
	RemotePort uint16 `cbor:"2,keyasint" json:"remote_port" yaml:"remote_port"`
	Alias      string `cbor:"3,keyasint" json:"alias" yaml:"alias"`
}

// AttachedVolume mounts a manifestation into an application.
type AttachedVolume struct {
	ManifestationID string `cbor:"1,keyasint" json:"manifestation_id" yaml:"manifestation_id"`
	MountPoint      string `cbor:"2,keyasint" json:"mount_point" yaml:"mount_point"`
}

// Manifestation is a dataset present on a node.
type Manifestation struct {
	Dataset *Dataset `cbor:"1,keyasint" json:"dataset" yaml:"dataset"`
	Primary bool     `cbor:"2,keyasint" json:"primary" yaml:"primary"`
}

// Dataset describes a volume's identity and limits.
type Dataset struct {
	DatasetID   string            `cbor:"1,keyasint" json:"dataset_id" yaml:"dataset_id"`
	Deleted     bool              `cbor:"2,keyasint" json:"deleted" yaml:"deleted"`
	MaximumSize int64             `cbor:"3,keyasint" json:"maximum_size" yaml:"maximum_size"`
	Metadata    map[string]string `cbor:"4,keyasint" json:"metadata" yaml:"metadata"`
}

// NewDeployment returns an empty deployment.
func NewDeployment() *Deployment {
	return &Deployment{Nodes: make(map[string]*Node)}
}

// Validate checks the structural invariants of a deployment.
func (d *Deployment) Validate() error {
	if d == nil {
		return ErrDeploymentInvalid.WithDetails("deployment is nil")
	}
	for key, node := range d.Nodes {
		if node == nil {
			return ErrDeploymentInvalid.WithDetails(fmt.Sprintf("node %q is nil", key))
		}
		if node.Hostname == "" {
			return ErrDeploymentInvalid.WithDetails(fmt.Sprintf("node %q has no hostname", key))
		}
		if node.Hostname != key {
			return ErrDeploymentInvalid.WithDetails(
				fmt.Sprintf("node key %q does not match hostname %q", key, node.Hostname))
		}
		for name, app := range node.Applications {
			if app == nil || app.Name != name {
				return ErrDeploymentInvalid.WithDetails(
					fmt.Sprintf("node %q: application key %q does not match its name", key, name))
			}
			if app.Volume != nil {
				if _, ok := node.Manifestations[app.Volume.ManifestationID]; !ok {
					return ErrDeploymentInvalid.WithDetails(
						fmt.Sprintf("node %q: application %q mounts unknown manifestation %q",
							key, name, app.Volume.ManifestationID))
				}
			}
		}
		for id, m := range node.Manifestations {
			if m == nil || m.Dataset == nil || m.Dataset.DatasetID != id {
				return ErrDeploymentInvalid.WithDetails(
					fmt.Sprintf("node %q: manifestation key %q does not match its dataset", key, id))
			}
		}
	}
	return nil
}

// Hostnames returns the node hostnames in sorted order.
func (d *Deployment) Hostnames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Nodes))
	for name := range d.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplicationCount returns the number of applications across all nodes.
func (d *Deployment) ApplicationCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, node := range d.Nodes {
		if node != nil {
			n += len(node.Applications)
		}
	}
	return n
}

// Normalize fills node hostnames, application names and dataset IDs from
// their map keys when a hand-written document leaves them blank.
func (d *Deployment) Normalize() {
	if d == nil {
		return
	}
	if d.Nodes == nil {
		d.Nodes = make(map[string]*Node)
	}
	for key, node := range d.Nodes {
		if node == nil {
			continue
		}
		if node.Hostname == "" {
			node.Hostname = key
		}
		for name, app := range node.Applications {
			if app != nil && app.Name == "" {
				app.Name = name
			}
		}
		for id, m := range node.Manifestations {
			if m != nil && m.Dataset != nil && m.Dataset.DatasetID == "" {
				m.Dataset.DatasetID = id
			}
		}
	}
}
