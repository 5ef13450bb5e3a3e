package platform

import (
	"fmt"
	"strings"
)

// familyMap maps distribution and family strings reported by gopsutil to
// canonical family names.
var familyMap = map[string]string{
	"debian":     FamilyDebian,
	"ubuntu":     FamilyDebian,
	"linuxmint":  FamilyDebian,
	"rhel":       FamilyRHEL,
	"centos":     FamilyRHEL,
	"rocky":      FamilyRHEL,
	"almalinux":  FamilyRHEL,
	"fedora":     FamilyFedora,
	"silverblue": FamilyFedora,
	"suse":       FamilySUSE,
	"opensuse":   FamilySUSE,
	"arch":       FamilyArch,
	"manjaro":    FamilyArch,
}

// runtimeArchMap maps normalized architectures to AppImage runtime suffixes.
var runtimeArchMap = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"arm":   "armhf",
	"386":   "i686",
}

// normalizeArch converts GOARCH (or uname -m style) values to GOARCH names.
func normalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "arm", "armhf", "armv7l":
		return "arm", nil
	case "386", "i686", "i386":
		return "386", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

func runtimeArch(arch string) (string, error) {
	if name, ok := runtimeArchMap[arch]; ok {
		return name, nil
	}
	return "", fmt.Errorf("no AppImage runtime for architecture %q", arch)
}

// normalizePlatform lowercases and trims platform IDs.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps the reported family to a canonical name. gopsutil reports
// an empty family for some distributions, so the distro ID is tried next.
func mapFamily(family, platform string) string {
	if canonical, ok := familyMap[normalizePlatform(family)]; ok {
		return canonical
	}
	if canonical, ok := familyMap[normalizePlatform(platform)]; ok {
		return canonical
	}
	return FamilyUnknown
}
