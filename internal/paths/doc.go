// Package paths resolves the filesystem locations dotsave works with.
//
// It wraps github.com/adrg/xdg for the XDG base directories used by the
// configuration file, and resolves the invoking user's home directory with
// awareness of sudo (SUDO_USER), so that user-relative backup items such as
// ".config/nvim" land on the real user's files even when dotsave itself runs
// as root.
//
//	home, _ := paths.ResolveHome()
//	src := paths.ResolveItem(".config/nvim", home) // /home/me/.config/nvim
//	paths.IsUnder(src, home)                       // true
package paths
