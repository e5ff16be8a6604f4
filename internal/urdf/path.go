package urdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// ResolvePath resolves the path notations a robot description may use into
// an absolute filesystem path:
//
//	${env:VAR}           expanded anywhere in the string
//	package://pkg/rest   resolved against the installed package share dirs
//	$(find pkg)/rest     likewise
//	file://path          stripped and resolved
//	anything else        made absolute against the working directory
//
// An unresolvable package reference yields the empty string; callers treat
// that as "skip this value".
func ResolvePath(ctx context.Context, path string) string {
	log := ctxlog.FromContext(ctx)
	if path == "" {
		return ""
	}
	path = expandEnv(ctx, path)

	switch {
	case strings.HasPrefix(path, "package://"):
		rest := strings.TrimPrefix(path, "package://")
		pkg, rel, _ := strings.Cut(rest, "/")
		share, ok := findPackageShare(pkg)
		if !ok {
			log.Warn("could not resolve package, is it installed?", "package", pkg)
			return ""
		}
		return absPath(filepath.Join(share, rel))

	case strings.HasPrefix(path, "file://"):
		p := strings.TrimPrefix(path, "file://")
		if resolved, isFind := resolveFind(ctx, p); isFind {
			return resolved
		}
		if _, err := os.Stat(p); err == nil {
			return absPath(p)
		}
		return absPath(strings.TrimLeft(p, "/"))
	}

	if resolved, isFind := resolveFind(ctx, path); isFind {
		return resolved
	}
	return absPath(path)
}

// expandEnv substitutes every ${env:VAR} occurrence. Unset variables stay as
// literals so the problem is visible in the output.
func expandEnv(ctx context.Context, s string) string {
	const marker = "${env:"
	if !strings.Contains(s, marker) {
		return s
	}
	log := ctxlog.FromContext(ctx)
	var b strings.Builder
	i := 0
	for {
		j := strings.Index(s[i:], marker)
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		j += i
		k := strings.Index(s[j:], "}")
		if k < 0 {
			b.WriteString(s[i:])
			break
		}
		k += j
		name := s[j+len(marker) : k]
		b.WriteString(s[i:j])
		if val, ok := os.LookupEnv(name); ok {
			b.WriteString(val)
		} else {
			log.Warn("environment variable not set", "name", name)
			b.WriteString(s[j : k+1])
		}
		i = k + 1
	}
	return b.String()
}

// resolveFind handles the "$(find pkg)/rest" notation. The second return is
// true when the string is a find expression at all; the first is empty when
// the package cannot be located.
func resolveFind(ctx context.Context, s string) (string, bool) {
	const prefix = "$(find"
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	close := strings.IndexByte(s, ')')
	if close < 0 {
		return "", false
	}
	pkg := strings.TrimSpace(s[len(prefix):close])
	rest := strings.TrimPrefix(s[close+1:], "/")
	share, ok := findPackageShare(pkg)
	if !ok {
		ctxlog.FromContext(ctx).Warn("could not resolve package, is it installed?", "package", pkg)
		return "", true
	}
	return absPath(filepath.Join(share, rest)), true
}

// findPackageShare locates an installed package's share directory via
// AMENT_PREFIX_PATH, falling back to ROS_PACKAGE_PATH entries.
func findPackageShare(pkg string) (string, bool) {
	if pkg == "" {
		return "", false
	}
	for _, prefix := range filepath.SplitList(os.Getenv("AMENT_PREFIX_PATH")) {
		if prefix == "" {
			continue
		}
		dir := filepath.Join(prefix, "share", pkg)
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir, true
		}
	}
	for _, root := range filepath.SplitList(os.Getenv("ROS_PACKAGE_PATH")) {
		if root == "" {
			continue
		}
		dir := filepath.Join(root, pkg)
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir, true
		}
	}
	return "", false
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
