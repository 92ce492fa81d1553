package device

import (
	"context"
	"fmt"
	"testing"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
)

// setupBenchRegistry creates a registry pre-populated with n devices.
func setupBenchRegistry(b *testing.B, n int) *Registry {
	b.Helper()
	repo := NewMockRepository()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		port := 6053
		if i%3 == 0 {
			port = 80
		}
		dev := &Device{
			ID:       fmt.Sprintf("dev-%04d", i),
			Name:     fmt.Sprintf("Device %d", i),
			Host:     fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			Port:     port,
			Protocol: connectivity.ProtocolForPort(port),
			Type:     TypeLight,
		}
		if err := repo.Create(ctx, dev); err != nil {
			b.Fatalf("creating device %d: %v", i, err)
		}
	}

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		b.Fatalf("refreshing cache: %v", err)
	}
	return reg
}

func BenchmarkRegistryGetDevice(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.GetDevice(ctx, "dev-0050") //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryGetDevice_Parallel(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			reg.GetDevice(ctx, "dev-0050") //nolint:errcheck // benchmark
		}
	})
}

func BenchmarkRegistryMarkReachability(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.MarkReachability(ctx, "dev-0050", i%2 == 0) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryListDevices(b *testing.B) {
	reg := setupBenchRegistry(b, 200)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.ListDevices(ctx) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryRefreshCache(b *testing.B) {
	repo := NewMockRepository()
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		dev := &Device{
			ID:       fmt.Sprintf("dev-%04d", i),
			Name:     fmt.Sprintf("Device %d", i),
			Host:     fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			Port:     6053,
			Protocol: connectivity.ProtocolNative,
			Type:     TypeLight,
		}
		if err := repo.Create(ctx, dev); err != nil {
			b.Fatalf("creating device %d: %v", i, err)
		}
	}

	reg := NewRegistry(repo)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.RefreshCache(ctx) //nolint:errcheck // benchmark
	}
}
