/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package appcli implements the mkosimage/rfosimage command surface on
// top of pkg/cli's flag parsing/validation/output and the full
// resolution-assembly-orchestration pipeline. Both binaries are thin
// cobra wrappers around Run; the only difference between them is whether
// Reprovision is forced on.
package appcli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sshoecraft/osimager/pkg/buildassembly"
	"github.com/sshoecraft/osimager/pkg/cli"
	"github.com/sshoecraft/osimager/pkg/config"
	"github.com/sshoecraft/osimager/pkg/credentials"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/sshoecraft/osimager/pkg/globalconfig"
	"github.com/sshoecraft/osimager/pkg/logging"
	"github.com/sshoecraft/osimager/pkg/orchestrator"
	"github.com/sshoecraft/osimager/pkg/packer"
	"github.com/sshoecraft/osimager/pkg/specindex"
	"github.com/sshoecraft/osimager/pkg/template"
)

// Options is the fully parsed input to Run, shared by mkosimage and
// rfosimage. Reprovision is the one field a cobra wrapper sets itself
// rather than taking from a flag: rfosimage always forces it on.
type Options struct {
	cli.BuildCLIOptions
	Reprovision bool
}

// Run validates opts, loads settings, and either serves a listing/dump mode
// or drives one build through the Build Orchestrator to completion,
// streaming its events to stdout/stderr as they arrive. The returned int is
// the process exit code.
func Run(ctx context.Context, programName string, opts Options) int {
	validator := cli.NewValidator()
	if err := validator.ValidateBuildOptions(opts.BuildCLIOptions); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return 1
	}

	cfg, err := globalconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: loading settings: %v\n", programName, err)
		return 1
	}

	parser := cli.NewParser()
	settings, err := parser.ParseSettings(opts.Settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return 1
	}
	applySettingOverrides(cfg, settings)

	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format, false, opts.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "%s: initializing logging: %v\n", programName, err)
		return 1
	}

	formatter := cli.NewOutputFormatter("table")
	assembler, resolver, dataDir, _ := NewAssembler(cfg, opts.LocalOnly)

	switch {
	case opts.List:
		return runListSpecs(resolver, formatter)
	case opts.ListPlatforms:
		return runListPlatforms(dataDir, formatter)
	case opts.ListDefs:
		return runListDefs(dataDir, formatter)
	}

	target, err := buildassembly.ParseTarget(opts.Target)
	if err != nil {
		logging.Error(err)
		return oerrors.ConfigParseError.ExitCode()
	}

	defines, err := parser.ParseDefines(opts.Defines)
	if err != nil {
		logging.Error(err)
		return 1
	}
	if opts.FQDN != "" {
		if defines == nil {
			defines = make(map[string]string, 1)
		}
		defines["fqdn"] = opts.FQDN
	}

	req := buildassembly.Request{
		Target:      target,
		Name:        opts.Name,
		IP:          opts.IP,
		Defines:     defines,
		Debug:       opts.Debug,
		Reprovision: opts.Reprovision,
	}

	if opts.DumpDefs || opts.DumpConfig || opts.Dry {
		return runPreview(assembler, req, opts, formatter)
	}

	return runBuild(ctx, cfg, assembler, req, opts, programName)
}

// NewAssembler builds the Assembler and its supporting Spec Index/Loader
// from a loaded Config, the same construction Run uses for every
// mkosimage/rfosimage invocation. Exported so a long-running process (the
// control-plane daemon) can build the identical pipeline without
// duplicating the wiring.
func NewAssembler(cfg *globalconfig.Config, localOnly bool) (*buildassembly.Assembler, *specindex.Resolver, string, string) {
	dataDir := filepath.Dir(cfg.SpecDirs.Platforms)
	userDir := filepath.Dir(cfg.SpecDirs.Locations)
	isoDir := filepath.Join(filepath.Dir(cfg.SpecDirs.Specs), "isos")
	resolver := specindex.NewResolver(cfg.SpecDirs.Specs, isoDir)

	loader := config.NewLoader(dataDir, userDir)
	loader.SpecPath = resolver.SpecPath

	assembler := &buildassembly.Assembler{
		Loader:           loader,
		SpecIndex:        resolver,
		InstallerRoot:    cfg.SpecDirs.Installer,
		IsoDir:           isoDir,
		CredentialSource: cfg.CredentialSource,
		Credentials:      buildCredentialProvider(cfg),
		DNS:              template.NewDNSResolver(nil, nil),
		ForceLocalISO:    localOnly,
	}
	return assembler, resolver, dataDir, userDir
}

// runListSpecs serves --list/--avail.
func runListSpecs(resolver *specindex.Resolver, formatter *cli.OutputFormatter) int {
	idx, err := resolver.Index()
	if err != nil {
		logging.Error(err)
		return exitCodeForErr(err)
	}
	entries := make([]cli.SpecEntry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		entries = append(entries, cli.SpecEntry{Dist: e.Dist, Version: e.Version, Arch: e.Arch})
	}
	if err := formatter.DisplaySpecList(entries); err != nil {
		logging.Error(err)
		return 1
	}
	return 0
}

// runListPlatforms serves --list-platforms: the platform names found under
// the shipped platforms directory, independent of any resolved target.
func runListPlatforms(dataDir string, formatter *cli.OutputFormatter) int {
	names, err := platformNames(dataDir)
	if err != nil {
		logging.Error(err)
		return 1
	}
	if err := formatter.DisplayPlatformList(names); err != nil {
		logging.Error(err)
		return 1
	}
	return 0
}

// runListDefs serves --list-defs: a diagnostic listing of every platform
// file's own raw defs, read independently (no location/spec resolution, no
// Specific-Section Processor), for an operator checking what a platform
// contributes before picking a target.
func runListDefs(dataDir string, formatter *cli.OutputFormatter) int {
	names, err := platformNames(dataDir)
	if err != nil {
		logging.Error(err)
		return 1
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		path, err := findPlatformFile(dataDir, name)
		if err != nil {
			logging.Error(err)
			continue
		}
		layer, err := config.LoadRawLayer(path)
		if err != nil {
			logging.Error(err)
			continue
		}
		out[name] = layer.Defs
	}
	if err := formatter.DisplayDefs(out); err != nil {
		logging.Error(err)
		return 1
	}
	return 0
}

// runPreview serves --dry/--dump-defs/--dump-config: it runs a full
// assembly but never hands the result to the Build Orchestrator or Packer.
func runPreview(assembler *buildassembly.Assembler, req buildassembly.Request, opts Options, formatter *cli.OutputFormatter) int {
	assembled, err := assembler.Assemble(req)
	if err != nil {
		logging.Error(err)
		return exitCodeForErr(err)
	}

	switch {
	case opts.DumpDefs:
		if err := formatter.DisplayDefs(assembled.Accumulator.Defs); err != nil {
			logging.Error(err)
			return 1
		}
		return 0
	case opts.DumpConfig:
		doc, err := toMap(assembled.Document)
		if err != nil {
			logging.Error(err)
			return 1
		}
		if err := formatter.DisplayConfig(doc); err != nil {
			logging.Error(err)
			return 1
		}
		return 0
	default: // opts.Dry
		fmt.Println(dryRunInvocation(assembled, opts))
		return 0
	}
}

// dryRunInvocation renders the packer build command line a real invocation
// would run, without writing a workspace or spawning anything.
func dryRunInvocation(assembled *buildassembly.Assembled, opts Options) string {
	name := opts.Name
	if name == "" {
		if n, ok := assembled.Accumulator.Defs["name"].(string); ok && n != "" {
			name = n
		}
	}
	workspace, _ := assembled.Accumulator.Defs["workspace"].(string)

	args := []string{"packer", "build"}
	if opts.Timestamp {
		args = append(args, "-timestamp-ui")
	}
	if opts.OnError != "" {
		args = append(args, "-on-error="+opts.OnError)
	}
	if opts.Force {
		args = append(args, "-force")
	}
	if opts.Debug {
		args = append(args, "-debug")
	}
	args = append(args, filepath.Join(workspace, name+".json"))
	return strings.Join(args, " ")
}

// runBuild submits req to a single-worker Orchestrator and blocks until it
// reaches a terminal state, streaming its events live.
func runBuild(ctx context.Context, cfg *globalconfig.Config, assembler *buildassembly.Assembler, req buildassembly.Request, opts Options, programName string) int {
	orch := orchestrator.New(assembler, &packer.Supervisor{})
	orch.Workers = 1
	orch.CancelGrace = cfg.Build.CancelGrace
	orch.RetentionWindow = cfg.Build.Retention
	orch.LogRingSize = cfg.Build.LogRingCapacity

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startErrCh := make(chan error, 1)
	go func() { startErrCh <- orch.Start(runCtx) }()

	timeout, err := parseTemp(opts.Temp)
	if err != nil {
		logging.Error(err)
		return 1
	}

	submitted, err := orch.Submit(orchestrator.BuildRequest{
		Target:      req.Target,
		Name:        req.Name,
		IP:          req.IP,
		Defines:     req.Defines,
		Timeout:     timeout,
		Keep:        opts.Keep,
		Reprovision: req.Reprovision,
		OnError:     opts.OnError,
		Debug:       req.Debug,
		Force:       opts.Force,
		Timestamp:   opts.Timestamp,
	})
	if err != nil {
		logging.Error(err)
		cancel()
		<-startErrCh
		return 1
	}

	final := streamBuild(orch, submitted.ID, programName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Build.CancelGrace+5*time.Second)
	defer shutdownCancel()
	_ = orch.Shutdown(shutdownCtx)
	<-startErrCh

	return exitCodeForSnapshot(final)
}

// streamBuild follows one build's events to a terminal state, writing log
// lines to stdout (pipeable program output) and status transitions to
// stderr (diagnostics), per pkg/logging's Output/Info split.
func streamBuild(orch *orchestrator.Orchestrator, buildID, programName string) orchestrator.Snapshot {
	sub, final, ok := orch.SubscribeBuild(buildID)
	if !ok {
		return orchestrator.Snapshot{}
	}
	defer orch.Unsubscribe(sub)

eventLoop:
	for ev := range sub.Events() {
		switch ev.Kind {
		case orchestrator.EventLog:
			if entry, ok := ev.Payload.(orchestrator.LogEntry); ok {
				logging.Output(entry.Line)
			}
		case orchestrator.EventStatus:
			if payload, ok := ev.Payload.(orchestrator.StatusPayload); ok {
				logging.Info("%s: %s -> %s", programName, payload.From, payload.To)
			}
		case orchestrator.EventProgress:
			if payload, ok := ev.Payload.(orchestrator.ProgressPayload); ok {
				logging.Debug("%s: %s", programName, payload.Step)
			}
		case orchestrator.EventCompleted, orchestrator.EventFailed, orchestrator.EventCancelled:
			if snap, ok := orch.Get(buildID); ok {
				final = snap
			}
			break eventLoop
		}
	}
	return final
}

// exitCodeForErr maps a synchronous resolution/assembly error to a process
// exit code. Unlike Kind.ExitCode's own "" case (reserved for "no error"),
// a bare error with no attached Kind here means "unclassified failure",
// which maps to 1.
func exitCodeForErr(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := oerrors.KindOf(err)
	if !ok {
		return 1
	}
	return kind.ExitCode()
}

func exitCodeForSnapshot(snap orchestrator.Snapshot) int {
	switch snap.State {
	case orchestrator.StateCompleted:
		return 0
	case orchestrator.StateCancelled:
		return oerrors.Cancelled.ExitCode()
	case orchestrator.StateTimedOut:
		return oerrors.TimedOut.ExitCode()
	default:
		if snap.Kind == "" {
			return 1
		}
		return snap.Kind.ExitCode()
	}
}

// buildCredentialProvider constructs the configured Credential Provider
// variant. It returns nil rather than an error when a local provider's
// secrets file is absent or unreadable: Assembler.Assemble only requires a
// provider when the resolved build actually references a secret, so a
// missing file shouldn't break a build that never needed one.
func buildCredentialProvider(cfg *globalconfig.Config) credentials.Provider {
	switch cfg.CredentialSource {
	case "remote":
		token := readTokenFile(cfg.Vault.TokenFile)
		return credentials.NewRemoteProvider(cfg.Vault.Addr, token, cfg.Vault.Mount)
	default: // "local" and the zero value both mean local
		if cfg.CredentialsFile == "" {
			return nil
		}
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil
		}
		p, err := credentials.LoadLocalProvider(cfg.CredentialsFile)
		if err != nil {
			return nil
		}
		return p
	}
}

func readTokenFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// applySettingOverrides applies --set key=value pairs onto an
// already-loaded Config, mirroring the dotted-key taxonomy
// globalconfig.bindEnvVars binds from the environment.
func applySettingOverrides(cfg *globalconfig.Config, settings map[string]string) {
	for key, value := range settings {
		switch key {
		case "credential_source":
			cfg.CredentialSource = value
		case "credentials_file":
			cfg.CredentialsFile = value
		case "vault.addr":
			cfg.Vault.Addr = value
		case "vault.token_file":
			cfg.Vault.TokenFile = value
		case "vault.mount":
			cfg.Vault.Mount = value
		case "build.concurrency":
			if n, err := parseInt(value); err == nil {
				cfg.Build.Concurrency = n
			}
		case "build.log_ring_capacity":
			if n, err := parseInt(value); err == nil {
				cfg.Build.LogRingCapacity = n
			}
		case "build.retention":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.Build.Retention = d
			}
		case "build.cancel_grace":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.Build.CancelGrace = d
			}
		case "log.level":
			cfg.Log.Level = value
		case "log.format":
			cfg.Log.Format = value
		case "spec_dirs.platforms":
			cfg.SpecDirs.Platforms = value
		case "spec_dirs.locations":
			cfg.SpecDirs.Locations = value
		case "spec_dirs.specs":
			cfg.SpecDirs.Specs = value
		case "spec_dirs.installer":
			cfg.SpecDirs.Installer = value
		}
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseTemp(temp string) (time.Duration, error) {
	if temp == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(temp)
	if err != nil {
		return 0, fmt.Errorf("invalid --temp duration %q: %w", temp, err)
	}
	return d, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("appcli: marshalling document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("appcli: unmarshalling document: %w", err)
	}
	return m, nil
}

// platformNames lists the logical platform names available under
// <dataDir>/platforms, sorted, deduplicating a name shipped in more than
// one candidate extension.
func platformNames(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "platforms")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("appcli: reading %s: %w", dir, err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".toml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func findPlatformFile(dataDir, name string) (string, error) {
	dir := filepath.Join(dataDir, "platforms")
	for _, ext := range []string{".json", ".toml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("appcli: %q not found under %s", name, dir)
}
