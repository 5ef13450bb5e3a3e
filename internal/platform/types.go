// Package platform detects the host OS, architecture and Linux distribution,
// maps them to AppImage runtime naming, and exposes them to Lua app
// definitions as a read-only table.
//
// Distribution details come from gopsutil; when that detection fails the
// package falls back to OS and architecture only.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora, Silverblue (toolbox hosts)
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux"
	Arch     string // normalized GOARCH: "amd64", "arm64", "arm", "386"
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g., "fedora")
	Family   string // canonical family (e.g., "fedora", "debian")
	Version  string // distro version (e.g., "40")
}

// Distro contains Linux distribution information.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// GetDistro returns distro information, or nil when it is unknown.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsFedoraFamily reports a Fedora-based host. These usually ship toolbox,
// which the npm stager falls back to.
func (i *Info) IsFedoraFamily() bool {
	return i.OS == "linux" && i.Family == FamilyFedora
}

// IsDebianFamily returns true if the Linux distribution is Debian-based.
func (i *Info) IsDebianFamily() bool {
	return i.OS == "linux" && i.Family == FamilyDebian
}

// RuntimeArch returns the architecture suffix used by AppImage runtime
// release assets (runtime-x86_64, runtime-aarch64, ...).
func (i *Info) RuntimeArch() (string, error) {
	return runtimeArch(i.Arch)
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
