package config

import "sort"

// Profile names.
const (
	ProfileDesktop = "desktop"
	ProfileMinimal = "minimal"
	ProfileServer  = "server"
)

// Profile is a named set of default item lists. A list left empty in the
// configuration file takes the profile's list.
type Profile struct {
	Name            string
	Description     string
	RsyncStyleItems []string
	DirectCopyItems []string
	ExcludePatterns []string
	PrivilegedItems []string
}

var commonExcludes = []string{
	".cache/*",
	"**/Cache/*",
	"**/CachedData/*",
	"**/GPUCache/*",
	"**/Code Cache/*",
	"**/Service Worker/CacheStorage/*",
	"**/node_modules",
	"**/__pycache__",
	"**/.venv",
	"*.log",
	"*.tmp",
	"*.sock",
	".local/share/Trash/*",
	"**/Crash Reports/*",
}

var commonDotfiles = []string{
	".bashrc",
	".bash_profile",
	".bash_aliases",
	".profile",
	".zshrc",
	".zprofile",
	".gitconfig",
	".vimrc",
	".tmux.conf",
	".inputrc",
}

var profiles = map[string]Profile{
	ProfileDesktop: {
		Name:        ProfileDesktop,
		Description: "workstation with a graphical session",
		RsyncStyleItems: []string{
			".config",
			".local/share/applications",
			".local/share/fonts",
			".local/share/gnome-shell/extensions",
			".local/bin",
			".ssh",
			".gnupg",
			".mozilla",
			".themes",
			".icons",
		},
		DirectCopyItems: append(append([]string{}, commonDotfiles...),
			".xprofile",
			".Xresources",
		),
		ExcludePatterns: append(append([]string{}, commonExcludes...),
			".mozilla/firefox/*/cache2/*",
			".config/google-chrome/*/Service Worker/*",
			".config/Code/logs/*",
			".gnupg/S.*",
		),
		PrivilegedItems: []string{
			"/etc/fstab",
			"/etc/hosts",
			"/etc/hostname",
			"/etc/default/grub",
			"/etc/ssh/sshd_config",
			"/etc/apt/sources.list",
			"/etc/apt/sources.list.d",
			"/etc/NetworkManager/system-connections",
			"/etc/X11/xorg.conf.d",
			"/etc/sudoers.d",
		},
	},
	ProfileMinimal: {
		Name:            ProfileMinimal,
		Description:     "dotfiles and a few config directories only",
		RsyncStyleItems: []string{".config/nvim", ".config/git", ".ssh"},
		DirectCopyItems: append([]string{}, commonDotfiles...),
		ExcludePatterns: append([]string{}, commonExcludes...),
	},
	ProfileServer: {
		Name:        ProfileServer,
		Description: "headless host, system configuration first",
		RsyncStyleItems: []string{
			".config",
			".ssh",
			".local/bin",
		},
		DirectCopyItems: append([]string{}, commonDotfiles...),
		ExcludePatterns: append([]string{}, commonExcludes...),
		PrivilegedItems: []string{
			"/etc/fstab",
			"/etc/hosts",
			"/etc/hostname",
			"/etc/ssh",
			"/etc/sudoers.d",
			"/etc/systemd/system",
			"/etc/cron.d",
			"/etc/logrotate.d",
			"/etc/nginx",
			"/etc/apt/sources.list.d",
			"/etc/netplan",
			"/etc/sysctl.d",
		},
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames returns the known profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
