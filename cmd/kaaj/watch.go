package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"kaaj/internal/connectivity"
	"kaaj/internal/session"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow connectivity and session changes until interrupted",
	Long: `Follow connectivity and session changes until interrupted.

Profile updates, verification and sign-outs made on other devices are
applied as the server pushes them.`,
	RunE: withEnv(runWatch),
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string, e *env) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stamp := func() string { return mutedStyle.Render(time.Now().Format("15:04:05")) }

	defer e.monitor.Subscribe(func(st connectivity.State) {
		switch {
		case st.Retrying:
			fmt.Println(stamp(), "retrying...")
		case st.Online:
			fmt.Println(stamp(), successStyle.Render("online"))
		default:
			fmt.Println(stamp(), errorStyle.Render("offline"))
		}
	})()

	last := e.session.State().Status
	defer e.session.Subscribe(func(st session.State) {
		if st.Status == last {
			return
		}
		last = st.Status
		fmt.Println(stamp(), "session", st.Status)
		if st.Status == session.StatusSignedOut {
			stop()
		}
	})()
	defer e.session.InitSessionListener(ctx)()

	go e.monitor.Watch(ctx)

	if _, ok := e.session.CurrentUserID(); !ok {
		fmt.Println(mutedStyle.Render("Not signed in; watching connectivity only."))
		<-ctx.Done()
		return nil
	}

	fmt.Println(stamp(), "watching session of", e.session.State().User.Email)
	err := e.client.Listen(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
