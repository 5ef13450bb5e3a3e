package platform

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

// MockDetector is a test implementation of Detector.
type MockDetector struct {
	info *Info
	err  error
}

// Detect returns the pre-configured info and error.
func (m *MockDetector) Detect(ctx context.Context) (*Info, error) {
	return m.info, m.err
}

func TestRealDetector_Detect(t *testing.T) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		t.Skipf("unsupported test architecture %s", runtime.GOARCH)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
}

func TestDetect_Lookup(t *testing.T) {
	tests := []struct {
		name       string
		goos       string
		goarch     string
		lookup     platformInfoFunc
		wantErr    bool
		wantArch   string
		wantID     string
		wantFamily string
	}{
		{
			name:   "fedora",
			goos:   "linux",
			goarch: "amd64",
			lookup: func(ctx context.Context) (string, string, string, error) {
				return "Fedora", "fedora", "40", nil
			},
			wantArch:   "amd64",
			wantID:     "fedora",
			wantFamily: FamilyFedora,
		},
		{
			name:   "family_from_platform_id",
			goos:   "linux",
			goarch: "arm64",
			lookup: func(ctx context.Context) (string, string, string, error) {
				return "ubuntu", "", "24.04", nil
			},
			wantArch:   "arm64",
			wantID:     "ubuntu",
			wantFamily: FamilyDebian,
		},
		{
			name:   "lookup_failure_falls_back",
			goos:   "linux",
			goarch: "amd64",
			lookup: func(ctx context.Context) (string, string, string, error) {
				return "", "", "", errors.New("no os-release")
			},
			wantArch: "amd64",
		},
		{
			name:   "unsupported_arch",
			goos:   "linux",
			goarch: "mips",
			lookup: func(ctx context.Context) (string, string, string, error) {
				t.Fatal("lookup must not run for unsupported arch")
				return "", "", "", nil
			},
			wantErr: true,
		},
		{
			name:   "non_linux_skips_lookup",
			goos:   "darwin",
			goarch: "arm64",
			lookup: func(ctx context.Context) (string, string, string, error) {
				t.Fatal("lookup must not run on non-linux")
				return "", "", "", nil
			},
			wantArch: "arm64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := detect(context.Background(), tt.goos, tt.goarch, tt.lookup)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("detect() error = %v", err)
			}
			if info.Arch != tt.wantArch {
				t.Errorf("Arch = %q, want %q", info.Arch, tt.wantArch)
			}
			if info.Platform != tt.wantID {
				t.Errorf("Platform = %q, want %q", info.Platform, tt.wantID)
			}
			if info.Family != tt.wantFamily {
				t.Errorf("Family = %q, want %q", info.Family, tt.wantFamily)
			}
		})
	}
}

func TestDetect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detect(ctx, "linux", "amd64", func(ctx context.Context) (string, string, string, error) {
		return "", "", "", ctx.Err()
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
