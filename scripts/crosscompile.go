// crosscompile builds flood-sensor-map for the release platforms.
//
//	go run ./scripts --out binaries
//
// The version is GITHUB_RUN_NUMBER when set, otherwise the commit count, with
// a -dirty suffix for uncommitted changes. Binaries land in
// <out>/<version>/<os>/<arch>/ and <out>/latest points at the newest version.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const binaryName = "flood-sensor-map"

// target is one GOOS/GOARCH pair.
type target struct {
	OS   string
	Arch string
}

// defaultTargets are the platforms the pure-Go SQLite driver supports, so
// every release binary can read SQL snapshots without cgo.
var defaultTargets = []target{
	{"linux", "amd64"}, {"linux", "arm64"}, {"linux", "386"},
	{"linux", "riscv64"}, {"linux", "ppc64le"}, {"linux", "s390x"},
	{"darwin", "amd64"}, {"darwin", "arm64"},
	{"windows", "amd64"}, {"windows", "arm64"},
	{"freebsd", "amd64"}, {"openbsd", "amd64"}, {"openbsd", "arm64"},
	{"netbsd", "amd64"},
}

func (t target) String() string { return t.OS + "/" + t.Arch }

// dir is the folder name of a target; macOS builds go to "mac".
func (t target) dir() string {
	if t.OS == "darwin" {
		return filepath.Join("mac", t.Arch)
	}
	return filepath.Join(t.OS, t.Arch)
}

func (t target) binary() string {
	if t.OS == "windows" {
		return binaryName + ".exe"
	}
	return binaryName
}

// parseTargets reads "linux/amd64,darwin/arm64". Empty means defaultTargets.
func parseTargets(s string) ([]target, error) {
	if strings.TrimSpace(s) == "" {
		return defaultTargets, nil
	}
	var out []target
	for _, part := range strings.Split(s, ",") {
		osName, arch, ok := strings.Cut(strings.TrimSpace(part), "/")
		if !ok || osName == "" || arch == "" {
			return nil, fmt.Errorf("bad target %q, want os/arch", part)
		}
		out = append(out, target{osName, arch})
	}
	return out, nil
}

// versionString joins a build number and the dirty flag.
func versionString(run string, dirty bool) string {
	if dirty {
		return run + "-dirty"
	}
	return run
}

func gitVersion(ctx context.Context) (string, error) {
	run := os.Getenv("GITHUB_RUN_NUMBER")
	if run == "" {
		out, err := exec.CommandContext(ctx, "git", "rev-list", "--count", "HEAD").Output()
		if err != nil {
			return "", fmt.Errorf("git rev-list: %w", err)
		}
		run = strings.TrimSpace(string(out))
	}
	out, err := exec.CommandContext(ctx, "git", "status", "--porcelain").Output()
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	return versionString(run, len(strings.TrimSpace(string(out))) > 0), nil
}

func build(ctx context.Context, log zerolog.Logger, root, outDir, version string, t target) error {
	dir := filepath.Join(outDir, version, t.dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(dir, t.binary())
	cmd := exec.CommandContext(ctx, "go", "build",
		"-trimpath",
		"-ldflags", fmt.Sprintf("-s -w -X 'main.CompileVersion=%s'", version),
		"-o", out, ".")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS="+t.OS, "GOARCH="+t.Arch, "CGO_ENABLED=0")
	if msg, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("%s: %w\n%s", t, err, msg)
	}
	log.Info().Str("target", t.String()).Str("out", out).Msg("built")
	return nil
}

func main() {
	fs := pflag.NewFlagSet("crosscompile", pflag.ExitOnError)
	outDir := fs.String("out", "binaries", "output directory")
	targetsFlag := fs.String("targets", "", "comma-separated os/arch list (default: release platforms)")
	jobs := fs.Int("jobs", runtime.NumCPU(), "parallel builds")
	deploy := fs.String("deploy", "", "rsync destination host:path; empty skips deployment")
	_ = fs.Parse(os.Args[1:])

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	targets, err := parseTargets(*targetsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("targets")
	}
	rootOut, err := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		log.Fatal().Err(err).Msg("not inside a git checkout")
	}
	root := strings.TrimSpace(string(rootOut))
	version, err := gitVersion(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("version")
	}
	out := *outDir
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}
	log.Info().Str("version", version).Int("targets", len(targets)).Msg("building")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, *jobs))
	failed := make(chan string, len(targets))
	for _, t := range targets {
		g.Go(func() error {
			if err := build(gctx, log, root, out, version, t); err != nil {
				// One unsupported target should not stop the others.
				log.Warn().Err(err).Msg("build failed")
				failed <- t.String()
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failed)
	var bad []string
	for t := range failed {
		bad = append(bad, t)
	}

	latest := filepath.Join(out, "latest")
	_ = os.Remove(latest)
	if err := os.Symlink(version, latest); err != nil {
		log.Warn().Err(err).Msg("latest symlink")
	}

	if *deploy != "" {
		rsync := exec.CommandContext(ctx, "rsync", "-avP", out+"/", *deploy)
		rsync.Stdout, rsync.Stderr = os.Stdout, os.Stderr
		if err := rsync.Run(); err != nil {
			log.Fatal().Err(err).Msg("deploy")
		}
	}
	if len(bad) > 0 {
		log.Fatal().Strs("failed", bad).Msg("some targets failed")
	}
}
