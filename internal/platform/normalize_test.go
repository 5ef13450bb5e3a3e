package platform

import "testing"

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"amd64", "amd64", false},
		{"x86_64", "amd64", false},
		{"aarch64", "arm64", false},
		{"armv7l", "arm", false},
		{"i686", "386", false},
		{" ARM64 ", "arm64", false},
		{"riscv64", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeArch(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeArch(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("normalizeArch(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInfo_RuntimeArch(t *testing.T) {
	tests := []struct {
		arch    string
		want    string
		wantErr bool
	}{
		{"amd64", "x86_64", false},
		{"arm64", "aarch64", false},
		{"arm", "armhf", false},
		{"386", "i686", false},
		{"ppc64le", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.arch, func(t *testing.T) {
			info := &Info{OS: "linux", Arch: tt.arch}
			got, err := info.RuntimeArch()
			if (err != nil) != tt.wantErr {
				t.Fatalf("RuntimeArch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RuntimeArch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapFamily(t *testing.T) {
	tests := []struct {
		family   string
		platform string
		want     string
	}{
		{"fedora", "fedora", FamilyFedora},
		{"", "silverblue", FamilyFedora},
		{"debian", "linuxmint", FamilyDebian},
		{"rhel", "rocky", FamilyRHEL},
		{"", "nixos", FamilyUnknown},
	}

	for _, tt := range tests {
		if got := mapFamily(tt.family, tt.platform); got != tt.want {
			t.Errorf("mapFamily(%q, %q) = %q, want %q", tt.family, tt.platform, got, tt.want)
		}
	}
}
