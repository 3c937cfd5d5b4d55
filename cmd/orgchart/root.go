package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/client"
	"github.com/isola513i/hari-hr-system/internal/adapters/tui"
	"github.com/isola513i/hari-hr-system/internal/core/canvas"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
)

// hierarchyAPI はサブコマンドが使うサーバー操作です。
type hierarchyAPI interface {
	canvas.Backend
	GetSubtree(ctx context.Context, rootID string) ([]hierarchy.Node, error)
	DeleteNode(ctx context.Context, id string) (*hierarchy.DeleteNodeResult, error)
}

type options struct {
	addr       string
	actor      string
	canMutate  bool
	department string
	timeout    time.Duration
	verbose    bool
}

type app struct {
	opts   options
	api   hierarchyAPI
	close func() error
}

// dial は opts に従って API クライアントを用意します。テストでは差し替えます。
var dial = func(opts options) (hierarchyAPI, func() error, error) {
	c, conn, err := client.Dial(opts.addr, hierarchy.Actor{ID: opts.actor, CanMutate: opts.canMutate})
	if err != nil {
		return nil, nil, err
	}
	return c, conn.Close, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "orgchart",
		Short:        "Browse and edit the reporting hierarchy",
		Long:         "orgchart talks to the hierarchy service over gRPC. Without a subcommand it opens the interactive canvas.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if a.opts.verbose {
				level = "debug"
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logging.New(cmd.ErrOrStderr(), level)))

			api, closeFn, err := dial(a.opts)
			if err != nil {
				return err
			}
			a.api, a.close = api, closeFn
			logging.FromContext(cmd.Context()).Debug("connected", "addr", a.opts.addr, "actor", a.opts.actor, "canMutate", a.opts.canMutate)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.close == nil {
				return nil
			}
			return a.close()
		},
		RunE: a.runView,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.addr, "addr", envOr("ORGCHART_ADDR", "localhost:50051"), "hierarchy service gRPC address")
	flags.StringVar(&a.opts.actor, "actor", os.Getenv("ORGCHART_ACTOR"), "caller identity sent with every request")
	flags.BoolVar(&a.opts.canMutate, "can-mutate", false, "request the mutate capability")
	flags.StringVar(&a.opts.department, "department", "", "limit the view to one department (ancestors are kept)")
	flags.DurationVar(&a.opts.timeout, "timeout", 10*time.Second, "per-request timeout for one-shot commands")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "view",
			Short: "Open the interactive canvas",
			Args:  cobra.NoArgs,
			RunE:  a.runView,
		},
		&cobra.Command{
			Use:   "tree [root-id]",
			Short: "Print the hierarchy, or one subtree, as an outline",
			Args:  cobra.MaximumNArgs(1),
			RunE:  a.runTree,
		},
		&cobra.Command{
			Use:   "find <term>",
			Short: "Search people by name or role and show their reporting line",
			Args:  cobra.MinimumNArgs(1),
			RunE:  a.runFind,
		},
		&cobra.Command{
			Use:   "move <node-id> [new-parent-id]",
			Short: "Reassign a node to a new manager (omit the manager to make it top-level)",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  a.runMove,
		},
		&cobra.Command{
			Use:   "rm <node-id>",
			Short: "Delete a node; its reports move to the nearest active manager",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runRemove,
		},
	)
	return root
}

func (a *app) runView(cmd *cobra.Command, _ []string) error {
	cv := canvas.New(a.api, canvas.Options{
		CanMutate:  a.opts.canMutate,
		Department: a.department(),
	})
	p := tea.NewProgram(tui.New(cmd.Context(), cv),
		tea.WithContext(cmd.Context()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}

func (a *app) runTree(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
	defer cancel()

	var (
		nodes []hierarchy.Node
		err   error
	)
	if len(args) == 1 {
		nodes, err = a.api.GetSubtree(ctx, args[0])
	} else {
		nodes, err = a.api.ListHierarchy(ctx, a.department())
	}
	if err != nil {
		return err
	}
	printForest(cmd.OutOrStdout(), hierarchy.BuildForest(nodes))
	return nil
}

func (a *app) runFind(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
	defer cancel()

	nodes, err := a.api.ListHierarchy(ctx, a.department())
	if err != nil {
		return err
	}
	term := strings.Join(args, " ")
	matches := hierarchy.RankMatches(nodes, term)
	if len(matches) == 0 {
		return fmt.Errorf("no match for %q", term)
	}

	byID := make(map[string]hierarchy.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := cmd.OutOrStdout()
	for _, m := range matches {
		chain, err := hierarchy.AncestorChain(nodes, m.ID)
		if err != nil {
			return err
		}
		line := make([]string, 0, len(chain)+1)
		for i := len(chain) - 1; i >= 0; i-- {
			line = append(line, byID[chain[i]].Name)
		}
		line = append(line, m.Name)
		fmt.Fprintf(out, "%s\t%s\t%s\n", m.ID, m.Role, strings.Join(line, " > "))
	}
	return nil
}

func (a *app) runMove(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
	defer cancel()

	var parent *string
	if len(args) == 2 {
		parent = &args[1]
	}
	result, err := a.api.Reassign(ctx, args[0], parent)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case result.NoOp:
		fmt.Fprintf(out, "%s already reports there\n", result.Node.Name)
	case result.Node.IsRoot():
		fmt.Fprintf(out, "%s is now top-level\n", result.Node.Name)
	default:
		fmt.Fprintf(out, "%s now reports to %s\n", result.Node.Name, *result.Node.ParentID)
	}
	return nil
}

func (a *app) runRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
	defer cancel()

	result, err := a.api.DeleteNode(ctx, args[0])
	if err != nil {
		return err
	}
	target := "top level"
	if result.NewParentID != nil {
		target = *result.NewParentID
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s; %d report(s) moved to %s\n", args[0], result.Reparented, target)
	return nil
}

func (a *app) department() *string {
	if d := strings.TrimSpace(a.opts.department); d != "" {
		return &d
	}
	return nil
}

// printForest はフォレストを字下げした一覧で出力します。
func printForest(w io.Writer, forest []*hierarchy.TreeNode) {
	hierarchy.Walk(forest, func(n *hierarchy.TreeNode, depth int) bool {
		fmt.Fprintf(w, "%s%s (%s)", strings.Repeat("  ", depth), n.Name, n.Role)
		if n.Status != hierarchy.StatusActive {
			fmt.Fprintf(w, " [%s]", n.Status)
		}
		if n.DirectReportCount > 0 {
			fmt.Fprintf(w, " · %d", n.DirectReportCount)
		}
		fmt.Fprintln(w)
		return true
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
