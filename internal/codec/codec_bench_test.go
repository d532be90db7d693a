package codec

import (
	"fmt"
	"testing"

	"github.com/yndnr/converge/internal/core/domain"
)

// NodeCounts are the cluster sizes benchmarked.
var NodeCounts = []int{10, 100, 1000}

func clusterOf(nodes int) *domain.Deployment {
	d := domain.NewDeployment()
	for i := 0; i < nodes; i++ {
		host := fmt.Sprintf("node%04d", i)
		node := &domain.Node{
			Hostname:       host,
			Applications:   make(map[string]*domain.Application),
			Manifestations: make(map[string]*domain.Manifestation),
		}
		for j := 0; j < 5; j++ {
			name := fmt.Sprintf("app%d", j)
			node.Applications[name] = &domain.Application{
				Name:        name,
				Image:       "registry.local/" + name + ":1.0",
				Ports:       []domain.Port{{InternalPort: 80, ExternalPort: uint16(8000 + j)}},
				Environment: map[string]string{"ROLE": name},
			}
		}
		d.Nodes[host] = node
	}
	return d
}

func BenchmarkDeployment_Encode(b *testing.B) {
	for _, n := range NodeCounts {
		d := clusterOf(n)
		b.Run(fmt.Sprintf("nodes=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Deployment.Encode(d); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDeployment_Decode(b *testing.B) {
	for _, n := range NodeCounts {
		data, err := Deployment.Encode(clusterOf(n))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("nodes=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := Deployment.Decode(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
