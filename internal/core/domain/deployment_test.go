package domain

import (
	"errors"
	"reflect"
	"testing"
)

func sampleDeployment() *Deployment {
	return &Deployment{Nodes: map[string]*Node{
		"node-a": {
			Hostname: "node-a",
			Applications: map[string]*Application{
				"web": {
					Name:  "web",
					Image: "nginx:1.27",
					Ports: []Port{{InternalPort: 80, ExternalPort: 8080}},
					Volume: &AttachedVolume{
						ManifestationID: "ds-1",
						MountPoint:      "/var/www",
					},
				},
			},
			Manifestations: map[string]*Manifestation{
				"ds-1": {Dataset: &Dataset{DatasetID: "ds-1"}, Primary: true},
			},
		},
		"node-b": {Hostname: "node-b"},
	}}
}

func TestDeployment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Deployment)
		wantErr bool
	}{
		{name: "valid", mutate: func(d *Deployment) {}},
		{name: "empty", mutate: func(d *Deployment) { d.Nodes = nil }},
		{
			name:    "hostname mismatch",
			mutate:  func(d *Deployment) { d.Nodes["node-b"].Hostname = "node-c" },
			wantErr: true,
		},
		{
			name:    "nil node",
			mutate:  func(d *Deployment) { d.Nodes["node-c"] = nil },
			wantErr: true,
		},
		{
			name: "application name mismatch",
			mutate: func(d *Deployment) {
				d.Nodes["node-a"].Applications["web"].Name = "api"
			},
			wantErr: true,
		},
		{
			name: "unknown manifestation",
			mutate: func(d *Deployment) {
				d.Nodes["node-a"].Applications["web"].Volume.ManifestationID = "ds-9"
			},
			wantErr: true,
		},
		{
			name: "dataset id mismatch",
			mutate: func(d *Deployment) {
				d.Nodes["node-a"].Manifestations["ds-1"].Dataset.DatasetID = "ds-2"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDeployment()
			tt.mutate(d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrDeploymentInvalid) {
				t.Errorf("error should match ErrDeploymentInvalid, got %v", err)
			}
		})
	}
}

func TestDeployment_NilValidate(t *testing.T) {
	var d *Deployment
	if err := d.Validate(); !errors.Is(err, ErrDeploymentInvalid) {
		t.Fatalf("Validate(nil) = %v", err)
	}
}

func TestDeployment_HostnamesAndCount(t *testing.T) {
	d := sampleDeployment()

	if got := d.Hostnames(); !reflect.DeepEqual(got, []string{"node-a", "node-b"}) {
		t.Errorf("Hostnames() = %v", got)
	}
	if got := d.ApplicationCount(); got != 1 {
		t.Errorf("ApplicationCount() = %d, want 1", got)
	}

	var empty *Deployment
	if empty.Hostnames() != nil || empty.ApplicationCount() != 0 {
		t.Error("nil deployment should report nothing")
	}
}

func TestDeployment_Normalize(t *testing.T) {
	d := &Deployment{Nodes: map[string]*Node{
		"node-a": {
			Applications: map[string]*Application{"web": {Image: "nginx"}},
			Manifestations: map[string]*Manifestation{
				"ds-1": {Dataset: &Dataset{}},
			},
		},
	}}

	d.Normalize()

	node := d.Nodes["node-a"]
	if node.Hostname != "node-a" {
		t.Errorf("Hostname = %q", node.Hostname)
	}
	if node.Applications["web"].Name != "web" {
		t.Errorf("Name = %q", node.Applications["web"].Name)
	}
	if node.Manifestations["ds-1"].Dataset.DatasetID != "ds-1" {
		t.Errorf("DatasetID = %q", node.Manifestations["ds-1"].Dataset.DatasetID)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("normalized deployment should validate: %v", err)
	}
}
