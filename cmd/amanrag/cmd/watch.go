package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

type watchOptions struct {
	dir     string
	noScan  bool
	polling bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Add text files dropped into an inbox directory",
		Long: `Watch an inbox directory and add every .txt or .md file written there.

Files already present are added first unless --no-scan is given. Each document
records its file path as "source". Rewriting a file adds the new content as a
new document; deleting a file does not remove anything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.dir = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(a *app.App) error {
				out := output.New(cmd.OutOrStdout())
				dir := opts.dir
				if dir == "" {
					dir = a.Config.Watch.Dir
				}
				out.Statusf("👀", "Watching %s (Ctrl+C to stop)", dir)

				return a.RunInbox(ctx, app.InboxOptions{
					Dir:          dir,
					ScanExisting: !opts.noScan,
					ForcePolling: opts.polling,
					OnIngest: func(path string, res rag.AddResult, err error) {
						switch {
						case err != nil:
							out.Errorf("%s: %v", path, err)
						case res.Duplicate:
							out.Warningf("%s: already stored", path)
						default:
							out.Successf("%s: added at position %d", path, res.Position)
						}
					},
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.noScan, "no-scan", false, "Skip files already in the inbox")
	cmd.Flags().BoolVar(&opts.polling, "poll", false, "Poll instead of using file system notifications")

	return cmd
}
