package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/state"
	"github.com/jxwalker/assetfetch/internal/system"
)

// check is one diagnostic. Critical failures make doctor exit non-zero.
type check struct {
	name     string
	critical bool
	run      func(ctx context.Context) checkResult
}

type checkResult struct {
	passed     bool
	warning    bool
	message    string
	suggestion string
}

func ok(msg string) checkResult { return checkResult{passed: true, message: msg} }

func warn(msg, fix string) checkResult {
	return checkResult{passed: true, warning: true, message: msg, suggestion: fix}
}

func fail(msg, fix string) checkResult { return checkResult{message: msg, suggestion: fix} }

func failErr(err error, fix string) checkResult { return fail(err.Error(), fix) }

func newDoctorCmd(g *globalFlags) *cobra.Command {
	var (
		network bool
		hosts   []string
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, roots, disk space and the state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := loadConfig(g)
			if err != nil {
				return err
			}
			checks := doctorChecks(c, p)
			if network {
				if len(hosts) == 0 {
					hosts = []string{"huggingface.co", "civitai.com"}
				}
				for _, h := range hosts {
					checks = append(checks, hostCheck(h))
				}
			}
			return runChecks(cmd.Context(), cmd.OutOrStdout(), checks)
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "Also check that download hosts are reachable")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "Hosts to check with --network (default huggingface.co,civitai.com)")
	return cmd
}

func runChecks(ctx context.Context, w io.Writer, checks []check) error {
	failed := 0
	for _, c := range checks {
		r := c.run(ctx)
		mark := "ok  "
		switch {
		case !r.passed && c.critical:
			mark = "FAIL"
			failed++
		case !r.passed || r.warning:
			mark = "warn"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", mark, c.name, r.message)
		if r.suggestion != "" && mark != "ok  " {
			for _, line := range strings.Split(r.suggestion, "\n") {
				fmt.Fprintf(w, "       %s\n", line)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d critical checks failed", failed)
	}
	return nil
}

func doctorChecks(c *config.Config, cfgPath string) []check {
	checks := []check{{
		name:     "config",
		critical: true,
		run: func(context.Context) checkResult {
			src := cfgPath
			if src == "" {
				src = "built-in defaults"
			}
			if errs := c.ValidateDetailed(); len(errs) > 0 {
				var b strings.Builder
				for _, e := range errs {
					fmt.Fprintf(&b, "%s: %s\n", e.Field, e.Suggestion)
				}
				return warn(fmt.Sprintf("%s (%d warnings)", src, len(errs)), strings.TrimSpace(b.String()))
			}
			return ok(src)
		},
	}}
	for _, name := range config.RootNames {
		dir, _ := c.Roots.RootFor(name)
		checks = append(checks, rootCheck(name, dir))
	}
	checks = append(checks,
		check{
			name:     "state database",
			critical: true,
			run: func(context.Context) checkResult {
				st, err := state.Open(c)
				if err != nil {
					return failErr(err, "Check that general.data_root is writable")
				}
				defer st.Close()
				if err := st.CheckIntegrity(); err != nil {
					return failErr(err, "Move the database aside; history will start fresh:\n  mv "+st.Path+" "+st.Path+".bak")
				}
				return ok(st.Path)
			},
		},
		tokenCheck("HuggingFace token", c.Sources.HuggingFace.TokenEnv, "HF_TOKEN", "https://huggingface.co/settings/tokens"),
		tokenCheck("CivitAI token", c.Sources.CivitAI.TokenEnv, "CIVITAI_TOKEN", "https://civitai.com/user/account"),
		check{
			name: "proxy",
			run: func(context.Context) checkResult {
				px := system.ProxySettings()
				if len(px) == 0 {
					return ok("none")
				}
				keys := make([]string, 0, len(px))
				for k := range px {
					keys = append(keys, k+"="+px[k])
				}
				sort.Strings(keys)
				return ok(strings.Join(keys, " "))
			},
		},
	)
	return checks
}

// rootCheck creates the root if needed, proves it is writable and reports
// free space and leftover staging files.
func rootCheck(name, dir string) check {
	return check{
		name:     "root " + name,
		critical: true,
		run: func(context.Context) checkResult {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return failErr(err, "Create the directory or point roots."+name+" elsewhere")
			}
			probe, err := os.CreateTemp(dir, ".doctor-*")
			if err != nil {
				return failErr(err, "Make "+dir+" writable")
			}
			_ = probe.Close()
			_ = os.Remove(probe.Name())

			msg := dir
			if avail, err := system.AvailableSpace(dir); err == nil {
				msg += fmt.Sprintf(" (%s free)", humanize.IBytes(avail))
			}
			staged, _ := downloader.CleanStaged(dir, time.Hour, true)
			if len(staged) > 0 {
				return warn(fmt.Sprintf("%s, %d stale staging files under %s", msg, len(staged), filepath.Base(dir)),
					"Remove them with:\n  assetfetch clean --older-than 1h")
			}
			return ok(msg)
		},
	}
}

func tokenCheck(name, configured, def, docs string) check {
	env := strings.TrimSpace(configured)
	if env == "" {
		env = def
	}
	return check{
		name: name,
		run: func(context.Context) checkResult {
			if os.Getenv(env) == "" {
				return warn(env+" not set", "Needed only for gated files:\n  export "+env+"=...\n  Get one at: "+docs)
			}
			return ok(env + " set")
		},
	}
}

func hostCheck(host string) check {
	return check{
		name:     "reach " + host,
		critical: true,
		run: func(ctx context.Context) checkResult {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := system.CheckHostReachable(ctx, host, "443"); err != nil {
				fe := fetcherrors.Friendly(err)
				return fail(fe.Message, fe.Suggestion)
			}
			return ok("tcp/443 open")
		},
	}
}
